package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// FileDisputeInput — заявление спора по этапу.
type FileDisputeInput struct {
	ProjectID    int64   `json:"project_id"`
	MilestoneNum int     `json:"milestone_num"`
	Reason       string  `json:"reason"`
	EvidenceURL  *string `json:"evidence_url,omitempty"`
	DisputeTxID  *string `json:"dispute_tx_id,omitempty"`
}

// DisputeService — арбитраж: подача спора, решение администратором,
// возврат в обычный цикл без движения средств.
type DisputeService struct {
	disputes    DisputeStore
	projects    ProjectStore
	submissions SubmissionStore
	coordinator *Coordinator
	bridge      chain.Bridge
	contract    chain.Contract
	notifier    Notifier
	releaseMode string
}

func NewDisputeService(
	disputes DisputeStore,
	projects ProjectStore,
	submissions SubmissionStore,
	coordinator *Coordinator,
	bridge chain.Bridge,
	contract chain.Contract,
	notifier Notifier,
	releaseMode string,
) *DisputeService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &DisputeService{
		disputes:    disputes,
		projects:    projects,
		submissions: submissions,
		coordinator: coordinator,
		bridge:      bridge,
		contract:    contract,
		notifier:    notifier,
		releaseMode: releaseMode,
	}
}

// File открывает спор. Escrow-статус этапа не меняется: "disputed"
// для этапа — производное отображение, средства остаются под
// контрактом до решения.
func (s *DisputeService) File(ctx context.Context, filedBy uuid.UUID, input FileDisputeInput) (*models.Dispute, error) {
	if err := validation.ValidateReason(input.Reason); err != nil {
		return nil, err
	}

	unlock := s.coordinator.locks.Lock(input.ProjectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Status != valueobject.ProjectStatusActive {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор можно открыть только на активном проекте")
	}
	if project.ClientID != filedBy && (project.FreelancerID == nil || *project.FreelancerID != filedBy) {
		return nil, apperror.ErrForbidden
	}
	milestone, ok := project.Milestone(input.MilestoneNum)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if milestone.Status.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "по этапу средства уже двигались")
	}

	open, err := s.disputes.FindOpenByMilestone(ctx, input.ProjectID, input.MilestoneNum)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if open != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по этапу уже открыт спор")
	}

	dispute := &models.Dispute{
		ProjectID:    input.ProjectID,
		MilestoneNum: input.MilestoneNum,
		FiledBy:      filedBy,
		Reason:       input.Reason,
		EvidenceURL:  input.EvidenceURL,
		Status:       valueobject.DisputeStatusOpen,
		DisputeTxID:  input.DisputeTxID,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось открыть спор")
	}

	// Последняя сдача этапа помечается disputed, чтобы приёмка по ней
	// была заблокирована до решения.
	if latest, err := s.submissions.LatestByMilestone(ctx, input.ProjectID, input.MilestoneNum); err == nil &&
		latest.Status == valueobject.SubmissionStatusSubmitted {
		if err := s.submissions.UpdateStatus(ctx, latest.ID, valueobject.SubmissionStatusDisputed, nil); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить сдачу")
		}
	}

	project.Status = valueobject.ProjectStatusDisputed
	if err := s.projects.Update(ctx, project, valueobject.ProjectStatusActive); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить проект")
	}

	other := project.ClientID
	if filedBy == project.ClientID && project.FreelancerID != nil {
		other = *project.FreelancerID
	}
	s.notifier.Notify(other, "dispute.filed", dispute)
	return dispute, nil
}

// Resolve закрывает спор решением администратора. Если tx id решения
// не передан, вызов admin-resolve-dispute подписывается через мост;
// переданный tx id означает уже подтверждённую транзакцию.
func (s *DisputeService) Resolve(ctx context.Context, disputeID int64, adminID uuid.UUID, resolution string, resolutionTxID *string, favorFreelancer bool) (*models.Dispute, error) {
	if err := validation.ValidateReason(resolution); err != nil {
		return nil, err
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	var sign chain.SignFn
	if resolutionTxID != nil && *resolutionTxID != "" {
		sign = chain.Preconfirmed(*resolutionTxID)
	} else {
		sign = func(ctx context.Context) chain.SignResult {
			project, err := s.projects.GetByID(ctx, dispute.ProjectID)
			if err != nil {
				return chain.SignResult{Outcome: chain.OutcomeFailed, Err: err}
			}
			if project.OnChainID == nil {
				return chain.SignResult{Outcome: chain.OutcomeFailed, Err: fmt.Errorf("проект %d без on-chain индекса", project.ID)}
			}
			call := s.contract.AdminResolveDispute(project.Token, *project.OnChainID, dispute.MilestoneNum, favorFreelancer)
			return s.bridge.Sign(ctx, call)
		}
	}

	flow := ChainFlow{
		ProjectID:  dispute.ProjectID,
		EntityKind: models.ReconciliationEntityDispute,
		EntityID:   disputeID,
		Transition: "open->resolved",
		ReplayParams: map[string]interface{}{
			"resolution":       resolution,
			"favor_freelancer": favorFreelancer,
			"resolved_by":      adminID,
		},
		Validate: func(ctx context.Context) error {
			d, err := s.disputes.GetByID(ctx, disputeID)
			if err != nil {
				return err
			}
			if d.Status != valueobject.DisputeStatusOpen {
				return apperror.New(apperror.ErrCodeInvalidState, "спор уже закрыт")
			}
			return nil
		},
		Sign: sign,
		Commit: func(ctx context.Context, txID string) error {
			return s.commitResolve(ctx, disputeID, adminID, resolution, txID, favorFreelancer, false)
		},
	}

	if _, err := s.coordinator.Execute(ctx, flow); err != nil {
		return nil, err
	}

	resolved, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if project, err := s.projects.GetByID(ctx, dispute.ProjectID); err == nil {
		s.notifier.Notify(project.ClientID, "dispute.resolved", resolved)
		if project.FreelancerID != nil {
			s.notifier.Notify(*project.FreelancerID, "dispute.resolved", resolved)
		}
	}
	return resolved, nil
}

// commitResolve — идемпотентная запись решения спора; путь общий с
// ручным повтором после orphaned-коммита.
func (s *DisputeService) commitResolve(ctx context.Context, disputeID int64, adminID uuid.UUID, resolution, txID string, favorFreelancer, replay bool) error {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return err
	}
	if dispute.Status != valueobject.DisputeStatusOpen && !replay {
		return apperror.New(apperror.ErrCodeInvalidState, "спор уже закрыт")
	}

	project, err := s.projects.GetByID(ctx, dispute.ProjectID)
	if err != nil {
		return err
	}
	milestone, ok := project.Milestone(dispute.MilestoneNum)
	if !ok {
		return apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if milestone.Status.IsTerminal() {
		// Средства по этапу уже двигались. Записывать нечего, но сам
		// спор обязан дойти до терминального статуса, а проект — выйти
		// из disputed, иначе они застревают навсегда.
		if dispute.Status == valueobject.DisputeStatusOpen {
			if err := s.disputes.Close(ctx, disputeID, valueobject.DisputeStatusResolved, resolution, &adminID, &txID); err != nil {
				return err
			}
		}
		if project.Status == valueobject.ProjectStatusDisputed {
			project.Status = valueobject.ProjectStatusActive
			if project.AllMilestonesApproved() {
				project.Status = valueobject.ProjectStatusCompleted
			}
			return s.projects.Update(ctx, project, valueobject.ProjectStatusDisputed)
		}
		return nil
	}

	// Повтор после частичной записи: спор мог быть уже закрыт,
	// а этап и проект — нет. Доводим состояние до конца.
	if dispute.Status == valueobject.DisputeStatusOpen {
		if err := s.disputes.Close(ctx, disputeID, valueobject.DisputeStatusResolved, resolution, &adminID, &txID); err != nil {
			return err
		}
	}

	if favorFreelancer {
		milestone.Status = valueobject.MilestoneStatusApproved
		milestone.ReleaseTxID = &txID
		if latest, err := s.submissions.LatestByMilestone(ctx, project.ID, dispute.MilestoneNum); err == nil &&
			latest.Status == valueobject.SubmissionStatusDisputed {
			if err := s.submissions.UpdateStatus(ctx, latest.ID, valueobject.SubmissionStatusApproved, &txID); err != nil {
				return err
			}
		}
	} else {
		milestone.Status = valueobject.MilestoneStatusRefunded
		milestone.RefundTxID = &txID
	}
	unlockMilestones(project, dispute.MilestoneNum+1, s.releaseMode)

	// Проект возвращается в работу; завершение — только если каждый
	// этап принят, возвраты завершения не дают.
	expected := project.Status
	project.Status = valueobject.ProjectStatusActive
	if project.AllMilestonesApproved() {
		project.Status = valueobject.ProjectStatusCompleted
	}
	return s.projects.Update(ctx, project, expected)
}

// Reset возвращает этап в обычный цикл без движения средств.
// Запрещён, если по этапу средства уже двигались.
func (s *DisputeService) Reset(ctx context.Context, disputeID int64, adminID uuid.UUID, note string) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.coordinator.locks.Lock(dispute.ProjectID)
	defer unlock()

	dispute, err = s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != valueobject.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор уже закрыт")
	}

	project, err := s.projects.GetByID(ctx, dispute.ProjectID)
	if err != nil {
		return nil, err
	}
	milestone, ok := project.Milestone(dispute.MilestoneNum)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if milestone.Status.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "по этапу средства уже двигались, сброс невозможен")
	}

	if err := s.disputes.Close(ctx, disputeID, valueobject.DisputeStatusReset, note, &adminID, nil); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось закрыть спор")
	}

	// Спорная сдача отклоняется, этап снова ждёт работы.
	if latest, err := s.submissions.LatestByMilestone(ctx, dispute.ProjectID, dispute.MilestoneNum); err == nil &&
		latest.Status == valueobject.SubmissionStatusDisputed {
		if err := s.submissions.UpdateStatus(ctx, latest.ID, valueobject.SubmissionStatusRejected, nil); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить сдачу")
		}
	}

	if milestone.Status == valueobject.MilestoneStatusSubmitted {
		milestone.Status = valueobject.MilestoneStatusPending
	}
	project.Status = valueobject.ProjectStatusActive
	if err := s.projects.Update(ctx, project, valueobject.ProjectStatusDisputed); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить проект")
	}

	dispute.Status = valueobject.DisputeStatusReset
	return dispute, nil
}

// OpenForMilestone возвращает открытый спор по этапу, если он есть.
func (s *DisputeService) OpenForMilestone(ctx context.Context, projectID int64, milestoneNum int) (*models.Dispute, error) {
	return s.disputes.FindOpenByMilestone(ctx, projectID, milestoneNum)
}

// resolveForced закрывает открытый спор по этапу, исход которого уже
// определён принудительным действием администратора. Средства не
// двигаются, пишется только запись спора.
func (s *DisputeService) resolveForced(ctx context.Context, projectID int64, milestoneNum int, adminID uuid.UUID, resolution, txID string) error {
	open, err := s.disputes.FindOpenByMilestone(ctx, projectID, milestoneNum)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.disputes.Close(ctx, open.ID, valueobject.DisputeStatusResolved, resolution, &adminID, &txID)
}

func (s *DisputeService) ListByProject(ctx context.Context, projectID int64) ([]models.Dispute, error) {
	return s.disputes.ListByProject(ctx, projectID)
}

func (s *DisputeService) Get(ctx context.Context, disputeID int64) (*models.Dispute, error) {
	return s.disputes.GetByID(ctx, disputeID)
}

package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

// AdminService — административное восстановление: принудительный
// release и refund по уже подтверждённым транзакциям, ручной повтор
// осиротевших коммитов. Мост эти операции не трогают.
type AdminService struct {
	projects   ProjectStore
	markers    ReconciliationStore
	milestones *MilestoneService
	disputes   *DisputeService
	locks      *ProjectLocker
	notifier   Notifier
}

func NewAdminService(
	projects ProjectStore,
	markers ReconciliationStore,
	milestones *MilestoneService,
	disputes *DisputeService,
	locks *ProjectLocker,
	notifier Notifier,
) *AdminService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &AdminService{
		projects:   projects,
		markers:    markers,
		milestones: milestones,
		disputes:   disputes,
		locks:      locks,
		notifier:   notifier,
	}
}

// ForceRelease закрывает этап в обход сдачи и приёмки по внешне
// подтверждённой транзакции. Этап помечается forced, действие
// пишется в журнал — принудительные закрытия должны быть различимы.
func (s *AdminService) ForceRelease(ctx context.Context, projectID int64, milestoneNum int, txID string, adminID uuid.UUID) (*models.Project, error) {
	if txID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "txId обязателен")
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	milestone, ok := project.Milestone(milestoneNum)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if !milestone.Status.CanForceRelease() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап уже в терминальном статусе")
	}

	// Принудительная выплата поверх открытого спора оставила бы спор
	// без достижимого терминального статуса — сначала решение.
	open, err := s.disputes.OpenForMilestone(ctx, projectID, milestoneNum)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if open != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по этапу открыт спор, сначала решите или сбросьте его")
	}

	milestone.Status = valueobject.MilestoneStatusApproved
	milestone.ReleaseTxID = &txID
	milestone.Forced = true
	unlockMilestones(project, milestoneNum+1, s.milestones.releaseMode)

	expected := project.Status
	if project.AllMilestonesApproved() && project.Status == valueobject.ProjectStatusActive {
		project.Status = valueobject.ProjectStatusCompleted
	}
	if err := s.projects.Update(ctx, project, expected); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить проект")
	}

	logger.Log.WithFields(logrus.Fields{
		"project_id":    projectID,
		"milestone_num": milestoneNum,
		"tx_id":         txID,
		"admin_id":      adminID,
	}).Warn("admin: принудительный release этапа")

	s.milestones.invalidateProgress(ctx, projectID)
	if project.FreelancerID != nil {
		s.notifier.Notify(*project.FreelancerID, "milestone.approved", project)
	}
	return project, nil
}

// ForceRefund переводит все незакрытые этапы в refunded, проект — в
// refunded. Идемпотентен: повтор на уже возвращённом проекте отдаёт
// текущее состояние без ошибки.
func (s *AdminService) ForceRefund(ctx context.Context, projectID int64, txID string, adminID uuid.UUID) (*models.Project, error) {
	if txID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "txId обязателен")
	}

	unlock := s.locks.Lock(projectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == valueobject.ProjectStatusRefunded {
		return project, nil
	}
	if project.Status == valueobject.ProjectStatusCompleted || project.Status == valueobject.ProjectStatusCancelled {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "проект уже закрыт")
	}
	if project.Status == valueobject.ProjectStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "проект не фондирован, возвращать нечего")
	}

	for i := range project.Milestones {
		m := &project.Milestones[i]
		if m.Status.IsTerminal() {
			continue
		}
		// Открытый спор по возвращаемому этапу закрывается этим же
		// решением: возврат и есть его исход.
		if err := s.disputes.resolveForced(ctx, projectID, m.Num, adminID, "Закрыт принудительным возвратом проекта.", txID); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось закрыть спор")
		}
		m.Status = valueobject.MilestoneStatusRefunded
		m.RefundTxID = &txID
		m.Forced = true
	}

	expected := project.Status
	project.Status = valueobject.ProjectStatusRefunded
	if err := s.projects.Update(ctx, project, expected); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить проект")
	}

	logger.Log.WithFields(logrus.Fields{
		"project_id": projectID,
		"tx_id":      txID,
		"admin_id":   adminID,
	}).Warn("admin: принудительный возврат проекта")

	s.milestones.invalidateProgress(ctx, projectID)
	s.notifier.Notify(project.ClientID, "project.refunded", project)
	if project.FreelancerID != nil {
		s.notifier.Notify(*project.FreelancerID, "project.refunded", project)
	}
	return project, nil
}

// ListMarkers возвращает ожидающие ручной сверки маркеры.
func (s *AdminService) ListMarkers(ctx context.Context) ([]models.ReconciliationMarker, error) {
	return s.markers.ListPending(ctx)
}

// Replay повторяет off-chain запись осиротевшего перехода по маркеру.
// Коммиты идемпотентны: если запись всё же прошла раньше, повтор
// просто закрывает маркер.
func (s *AdminService) Replay(ctx context.Context, markerID int64, adminID uuid.UUID) (*models.ReconciliationMarker, error) {
	marker, err := s.markers.GetByID(ctx, markerID)
	if err != nil {
		return nil, err
	}
	if marker.Status != models.ReconciliationStatusPending {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "маркер уже обработан")
	}

	unlock := s.locks.Lock(marker.ProjectID)
	replayErr := s.replayMarker(ctx, marker)
	unlock()
	if replayErr != nil {
		return nil, apperror.Wrap(replayErr, apperror.ErrCodeDatabaseError, "повтор записи не удался, маркер остаётся открытым")
	}

	if err := s.markers.MarkReplayed(ctx, markerID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось закрыть маркер")
	}

	logger.Log.WithFields(logrus.Fields{
		"marker_id":  markerID,
		"project_id": marker.ProjectID,
		"tx_id":      marker.TxID,
		"transition": marker.IntendedTransition,
		"admin_id":   adminID,
	}).Info("admin: осиротевший переход записан повторно")

	s.milestones.invalidateProgress(ctx, marker.ProjectID)
	marker.Status = models.ReconciliationStatusReplayed
	return marker, nil
}

func (s *AdminService) replayMarker(ctx context.Context, marker *models.ReconciliationMarker) error {
	switch marker.EntityKind {
	case models.ReconciliationEntityProject:
		var params struct {
			EscrowTxID string `json:"escrow_tx_id"`
			OnChainID  int64  `json:"on_chain_id"`
		}
		if err := json.Unmarshal([]byte(marker.Details), &params); err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "маркер с нечитаемыми параметрами")
		}
		return s.milestones.commitActivate(ctx, marker.ProjectID, marker.TxID, params.OnChainID, true)

	case models.ReconciliationEntitySubmission:
		return s.milestones.commitApprove(ctx, marker.EntityID, marker.TxID, true)

	case models.ReconciliationEntityDispute:
		var params struct {
			Resolution      string    `json:"resolution"`
			FavorFreelancer bool      `json:"favor_freelancer"`
			ResolvedBy      uuid.UUID `json:"resolved_by"`
		}
		if err := json.Unmarshal([]byte(marker.Details), &params); err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "маркер с нечитаемыми параметрами")
		}
		return s.disputes.commitResolve(ctx, marker.EntityID, params.ResolvedBy, params.Resolution, marker.TxID, params.FavorFreelancer, true)
	}
	return apperror.New(apperror.ErrCodeInternal, "маркер неизвестного вида: "+marker.EntityKind)
}

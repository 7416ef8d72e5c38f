package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// ProgressCache хранит снимки прогресса для чтения. Чтения могут
// отставать от записи на один шаг, это допустимо.
type ProgressCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const progressCacheTTL = 30 * time.Second

// MilestoneInput — этап при создании проекта; сумма в десятичной
// строке токена проекта.
type MilestoneInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

// CreateProjectInput — заявка клиента на новый контракт.
type CreateProjectInput struct {
	Category    string            `json:"category"`
	Token       valueobject.Token `json:"token"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Milestones  []MilestoneInput  `json:"milestones"`
}

// MilestoneProgress — производное состояние одного этапа для чтения.
// DisplayStatus показывает "disputed" при открытом споре, не трогая
// escrow-статус этапа.
type MilestoneProgress struct {
	Num           int                         `json:"num"`
	Title         string                      `json:"title"`
	AmountMicro   int64                       `json:"amount_micro"`
	Amount        string                      `json:"amount"`
	Status        valueobject.MilestoneStatus `json:"status"`
	DisplayStatus string                      `json:"display_status"`
	Forced        bool                        `json:"forced,omitempty"`
}

// ProjectProgress — снимок прогресса проекта.
type ProjectProgress struct {
	ProjectID      int64                     `json:"project_id"`
	Status         valueobject.ProjectStatus `json:"status"`
	Token          valueobject.Token         `json:"token"`
	TotalMicro     int64                     `json:"total_micro"`
	ReleasedMicro  int64                     `json:"released_micro"`
	RefundedMicro  int64                     `json:"refunded_micro"`
	ApprovedCount  int                       `json:"approved_count"`
	MilestoneCount int                       `json:"milestone_count"`
	Milestones     []MilestoneProgress       `json:"milestones"`
}

// MilestoneService ведёт проект от создания до завершения: эскроу,
// сдачи этапов, приёмка, производный прогресс.
type MilestoneService struct {
	projects    ProjectStore
	proposals   ProposalStore
	submissions SubmissionStore
	disputes    DisputeStore
	coordinator *Coordinator
	cache       ProgressCache
	notifier    Notifier
	releaseMode string
}

func NewMilestoneService(
	projects ProjectStore,
	proposals ProposalStore,
	submissions SubmissionStore,
	disputes DisputeStore,
	coordinator *Coordinator,
	cache ProgressCache,
	notifier Notifier,
	releaseMode string,
) *MilestoneService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MilestoneService{
		projects:    projects,
		proposals:   proposals,
		submissions: submissions,
		disputes:    disputes,
		coordinator: coordinator,
		cache:       cache,
		notifier:    notifier,
		releaseMode: releaseMode,
	}
}

// CreateProject создаёт открытый проект с 1–4 этапами. Бюджет не
// передаётся отдельно, он равен сумме этапов по построению.
func (s *MilestoneService) CreateProject(ctx context.Context, clientID uuid.UUID, input CreateProjectInput) (*models.Project, error) {
	if err := validation.ValidateTitle(input.Title); err != nil {
		return nil, err
	}
	if err := validation.ValidateDescription(input.Description); err != nil {
		return nil, err
	}
	if !input.Token.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный расчётный токен")
	}
	if len(input.Milestones) < models.MinMilestones || len(input.Milestones) > models.MaxMilestones {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("проект должен содержать от %d до %d этапов", models.MinMilestones, models.MaxMilestones))
	}

	milestones := make(models.Milestones, 0, len(input.Milestones))
	var budget int64
	for i, m := range input.Milestones {
		if err := validation.ValidateTitle(m.Title); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("этап %d: пустое или слишком длинное название", i+1))
		}
		micro, err := valueobject.MicroUnits(m.Amount, input.Token)
		if err != nil {
			return nil, err
		}
		if micro <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("этап %d: сумма должна быть больше нуля", i+1))
		}
		budget += micro
		milestones = append(milestones, models.Milestone{
			Num:         i + 1,
			Title:       m.Title,
			Description: m.Description,
			AmountMicro: micro,
			Status:      valueobject.MilestoneStatusLocked,
		})
	}

	project := &models.Project{
		ClientID:      clientID,
		Category:      input.Category,
		Token:         input.Token,
		Title:         input.Title,
		Description:   input.Description,
		BudgetMicro:   budget,
		NumMilestones: len(milestones),
		Milestones:    milestones,
		Status:        valueobject.ProjectStatusOpen,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать проект")
	}
	return project, nil
}

// Activate фиксирует фондирование escrow: браузерный кошелёк уже
// подтвердил create-project, сюда приходят tx id и on-chain индекс.
// Повторный вызов с тем же tx id на уже активном проекте — успех.
func (s *MilestoneService) Activate(ctx context.Context, projectID int64, callerID uuid.UUID, escrowTxID string, onChainID int64) (*models.Project, error) {
	if escrowTxID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "escrowTxId обязателен")
	}

	flow := ChainFlow{
		ProjectID:    projectID,
		EntityKind:   models.ReconciliationEntityProject,
		EntityID:     projectID,
		Transition:   "open->active",
		ReplayParams: map[string]interface{}{"escrow_tx_id": escrowTxID, "on_chain_id": onChainID},
		Validate: func(ctx context.Context) error {
			project, err := s.projects.GetByID(ctx, projectID)
			if err != nil {
				return err
			}
			if project.ClientID != callerID {
				return apperror.ErrForbidden
			}
			if project.Status == valueobject.ProjectStatusActive &&
				project.EscrowTxID != nil && *project.EscrowTxID == escrowTxID {
				// Повтор после сбоя ответа: состояние уже записано.
				return errAlreadyApplied
			}
			if project.Status != valueobject.ProjectStatusOpen {
				return apperror.New(apperror.ErrCodeInvalidState, "проект уже фондирован или закрыт")
			}
			_, err = s.proposals.FindAccepted(ctx, projectID)
			if errors.Is(err, common.ErrNotFound) {
				return apperror.New(apperror.ErrCodePrecondition, "нет принятой заявки, фондировать нечего")
			}
			return err
		},
		Sign: chain.Preconfirmed(escrowTxID),
		Commit: func(ctx context.Context, txID string) error {
			return s.commitActivate(ctx, projectID, txID, onChainID, false)
		},
	}

	_, err := s.coordinator.Execute(ctx, flow)
	if err != nil && !errors.Is(err, errAlreadyApplied) {
		return nil, err
	}

	project, getErr := s.projects.GetByID(ctx, projectID)
	if getErr != nil {
		return nil, getErr
	}
	s.invalidateProgress(ctx, projectID)
	if project.FreelancerID != nil {
		s.notifier.Notify(*project.FreelancerID, "project.activated", project)
	}
	return project, nil
}

// commitActivate — идемпотентная запись фондирования; путь общий с
// ручным повтором после orphaned-коммита.
func (s *MilestoneService) commitActivate(ctx context.Context, projectID int64, txID string, onChainID int64, replay bool) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status != valueobject.ProjectStatusOpen {
		if replay && project.EscrowTxID != nil && *project.EscrowTxID == txID {
			return nil
		}
		return apperror.New(apperror.ErrCodeInvalidState, "проект уже фондирован или закрыт")
	}
	accepted, err := s.proposals.FindAccepted(ctx, projectID)
	if err != nil {
		return err
	}
	project.Status = valueobject.ProjectStatusActive
	project.FreelancerID = &accepted.FreelancerID
	project.EscrowTxID = &txID
	project.OnChainID = &onChainID
	unlockMilestones(project, 1, s.releaseMode)
	return s.projects.Update(ctx, project, valueobject.ProjectStatusOpen)
}

// SubmitWork создаёт сдачу этапа и переводит этап в submitted.
func (s *MilestoneService) SubmitWork(ctx context.Context, projectID int64, milestoneNum int, freelancerID uuid.UUID, deliverableURL, note string) (*models.MilestoneSubmission, error) {
	if err := validation.ValidateURL(deliverableURL); err != nil {
		return nil, err
	}

	unlock := s.coordinator.locks.Lock(projectID)
	defer unlock()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != valueobject.ProjectStatusActive {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "сдавать этапы можно только на активном проекте")
	}
	if project.FreelancerID == nil || *project.FreelancerID != freelancerID {
		return nil, apperror.ErrForbidden
	}
	milestone, ok := project.Milestone(milestoneNum)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if milestone.Status != valueobject.MilestoneStatusPending {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "этап не ожидает сдачи")
	}

	submission := &models.MilestoneSubmission{
		ProjectID:      projectID,
		MilestoneNum:   milestoneNum,
		FreelancerID:   freelancerID,
		DeliverableURL: deliverableURL,
		Status:         valueobject.SubmissionStatusSubmitted,
	}
	if note != "" {
		submission.Note = &note
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить сдачу этапа")
	}

	milestone.Status = valueobject.MilestoneStatusSubmitted
	if err := s.projects.Update(ctx, project, valueobject.ProjectStatusActive); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить этап")
	}

	s.invalidateProgress(ctx, projectID)
	s.notifier.Notify(project.ClientID, "milestone.submitted", submission)
	return submission, nil
}

// Approve принимает последнюю сдачу этапа и записывает release.
// Отсутствие открытого спора проверяется здесь, в момент приёмки:
// спор мог появиться после сдачи.
func (s *MilestoneService) Approve(ctx context.Context, submissionID int64, callerID uuid.UUID, releaseTxID string) (*models.Project, error) {
	if releaseTxID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "releaseTxId обязателен")
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	flow := ChainFlow{
		ProjectID:    submission.ProjectID,
		EntityKind:   models.ReconciliationEntitySubmission,
		EntityID:     submissionID,
		Transition:   "submitted->approved",
		ReplayParams: map[string]interface{}{"release_tx_id": releaseTxID},
		Validate: func(ctx context.Context) error {
			return s.validateApprove(ctx, submissionID, callerID)
		},
		Sign: chain.Preconfirmed(releaseTxID),
		Commit: func(ctx context.Context, txID string) error {
			return s.commitApprove(ctx, submissionID, txID, false)
		},
	}

	if _, err := s.coordinator.Execute(ctx, flow); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, submission.ProjectID)
	if err != nil {
		return nil, err
	}
	s.invalidateProgress(ctx, submission.ProjectID)
	if project.FreelancerID != nil {
		s.notifier.Notify(*project.FreelancerID, "milestone.approved", submission)
	}
	return project, nil
}

func (s *MilestoneService) validateApprove(ctx context.Context, submissionID int64, callerID uuid.UUID) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.Status != valueobject.SubmissionStatusSubmitted {
		return apperror.New(apperror.ErrCodeInvalidState, "сдача уже рассмотрена")
	}
	project, err := s.projects.GetByID(ctx, submission.ProjectID)
	if err != nil {
		return err
	}
	if project.ClientID != callerID {
		return apperror.ErrForbidden
	}
	latest, err := s.submissions.LatestByMilestone(ctx, submission.ProjectID, submission.MilestoneNum)
	if err != nil {
		return err
	}
	if latest.ID != submissionID {
		return apperror.New(apperror.ErrCodeInvalidState, "есть более поздняя сдача этого этапа")
	}
	open, err := s.disputes.FindOpenByMilestone(ctx, submission.ProjectID, submission.MilestoneNum)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if open != nil {
		return apperror.New(apperror.ErrCodeConflict, "по этапу открыт спор, приёмка заблокирована")
	}
	return nil
}

// commitApprove — идемпотентная запись release; переиспользуется
// ручным повтором после orphaned-коммита.
func (s *MilestoneService) commitApprove(ctx context.Context, submissionID int64, txID string, replay bool) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if submission.Status == valueobject.SubmissionStatusApproved && !replay {
		return apperror.New(apperror.ErrCodeInvalidState, "сдача уже принята")
	}

	// Подпись ждали без блокировки проекта, за это время мог быть
	// подан спор. Первая запись перепроверяет его и уходит в маркер:
	// средства на цепочке уже выпущены, off-chain запись откладывается
	// до решения спора. Повтор по маркеру проверку не проходит заново.
	if !replay {
		open, err := s.disputes.FindOpenByMilestone(ctx, submission.ProjectID, submission.MilestoneNum)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if open != nil {
			return apperror.New(apperror.ErrCodeConflict, "по этапу открыт спор, приёмка заблокирована")
		}
	}

	project, err := s.projects.GetByID(ctx, submission.ProjectID)
	if err != nil {
		return err
	}
	milestone, ok := project.Milestone(submission.MilestoneNum)
	if !ok {
		return apperror.New(apperror.ErrCodeNotFound, "этап не найден")
	}
	if milestone.Status == valueobject.MilestoneStatusApproved {
		// Запись уже дошла до конца, повторять нечего.
		return nil
	}

	// Повтор после частичной записи: сдача могла быть уже принята,
	// а этап — нет. Доводим состояние до конца, не переписывая
	// сделанное.
	if submission.Status != valueobject.SubmissionStatusApproved {
		if err := s.submissions.UpdateStatus(ctx, submissionID, valueobject.SubmissionStatusApproved, &txID); err != nil {
			return err
		}
	}

	milestone.Status = valueobject.MilestoneStatusApproved
	milestone.ReleaseTxID = &txID
	unlockMilestones(project, submission.MilestoneNum+1, s.releaseMode)

	expected := project.Status
	if project.AllMilestonesApproved() {
		project.Status = valueobject.ProjectStatusCompleted
	}
	return s.projects.Update(ctx, project, expected)
}

// RejectSubmission возвращает этап в pending, средства не двигаются.
func (s *MilestoneService) RejectSubmission(ctx context.Context, submissionID int64, callerID uuid.UUID) (*models.MilestoneSubmission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	unlock := s.coordinator.locks.Lock(submission.ProjectID)
	defer unlock()

	submission, err = s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status != valueobject.SubmissionStatusSubmitted {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "сдача уже рассмотрена")
	}

	project, err := s.projects.GetByID(ctx, submission.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != callerID {
		return nil, apperror.ErrForbidden
	}

	if err := s.submissions.UpdateStatus(ctx, submissionID, valueobject.SubmissionStatusRejected, nil); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить сдачу")
	}

	milestone, ok := project.Milestone(submission.MilestoneNum)
	if ok && milestone.Status == valueobject.MilestoneStatusSubmitted {
		milestone.Status = valueobject.MilestoneStatusPending
		if err := s.projects.Update(ctx, project, project.Status); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить этап")
		}
	}

	submission.Status = valueobject.SubmissionStatusRejected
	s.invalidateProgress(ctx, submission.ProjectID)
	s.notifier.Notify(submission.FreelancerID, "milestone.rejected", submission)
	return submission, nil
}

// Progress возвращает производный снимок прогресса, через кэш.
func (s *MilestoneService) Progress(ctx context.Context, projectID int64) (*ProjectProgress, error) {
	key := progressKey(projectID)
	if s.cache != nil {
		var cached ProjectProgress
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Log.WithError(err).Warn("progress: кэш недоступен, читаем из базы")
		} else if hit {
			return &cached, nil
		}
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	progress := &ProjectProgress{
		ProjectID:      project.ID,
		Status:         project.Status,
		Token:          project.Token,
		TotalMicro:     project.BudgetMicro,
		MilestoneCount: project.NumMilestones,
		Milestones:     make([]MilestoneProgress, 0, len(project.Milestones)),
	}
	for _, m := range project.Milestones {
		display := string(m.Status)
		if m.Status != valueobject.MilestoneStatusApproved && m.Status != valueobject.MilestoneStatusRefunded {
			if open, err := s.disputes.FindOpenByMilestone(ctx, projectID, m.Num); err == nil && open != nil {
				display = "disputed"
			}
		}
		switch m.Status {
		case valueobject.MilestoneStatusApproved:
			progress.ApprovedCount++
			progress.ReleasedMicro += m.AmountMicro
		case valueobject.MilestoneStatusRefunded:
			progress.RefundedMicro += m.AmountMicro
		}
		progress.Milestones = append(progress.Milestones, MilestoneProgress{
			Num:           m.Num,
			Title:         m.Title,
			AmountMicro:   m.AmountMicro,
			Amount:        valueobject.DecimalString(m.AmountMicro, project.Token),
			Status:        m.Status,
			DisplayStatus: display,
			Forced:        m.Forced,
		})
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, progress, progressCacheTTL); err != nil {
			logger.Log.WithError(err).Debug("progress: не удалось записать кэш")
		}
	}
	return progress, nil
}

// unlockMilestones открывает этапы к сдаче начиная с from: в
// последовательном режиме только первый ещё запертый, в независимом —
// все сразу.
func unlockMilestones(project *models.Project, from int, releaseMode string) {
	for i := range project.Milestones {
		m := &project.Milestones[i]
		if m.Num < from || m.Status != valueobject.MilestoneStatusLocked {
			continue
		}
		m.Status = valueobject.MilestoneStatusPending
		if releaseMode == config.ReleaseModeSequential {
			return
		}
	}
}

func (s *MilestoneService) invalidateProgress(ctx context.Context, projectID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, progressKey(projectID)); err != nil {
		logger.Log.WithFields(logrus.Fields{"project_id": projectID}).WithError(err).Debug("progress: не удалось сбросить кэш")
	}
}

func progressKey(projectID int64) string {
	return fmt.Sprintf("progress:%d", projectID)
}

// GetProject и List — тонкие обёртки для чтения.
func (s *MilestoneService) GetProject(ctx context.Context, projectID int64) (*models.Project, error) {
	return s.projects.GetByID(ctx, projectID)
}

func (s *MilestoneService) ListProjects(ctx context.Context, status valueobject.ProjectStatus, category string, limit, offset int) ([]models.Project, error) {
	return s.projects.List(ctx, status, category, limit, offset)
}

func (s *MilestoneService) ListSubmissions(ctx context.Context, projectID int64) ([]models.MilestoneSubmission, error) {
	return s.submissions.ListByProject(ctx, projectID)
}

// errAlreadyApplied сигнализирует идемпотентный повтор: нужное
// состояние уже записано, выполнять переход заново не нужно.
var errAlreadyApplied = errors.New("переход уже применён")

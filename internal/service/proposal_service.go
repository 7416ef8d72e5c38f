package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// ProposalService управляет заявками фрилансеров: подача, принятие
// с автоматическим отклонением конкурентов, отклонение, отзыв.
type ProposalService struct {
	proposals ProposalStore
	projects  ProjectStore
	locks     *ProjectLocker
	notifier  Notifier
}

func NewProposalService(proposals ProposalStore, projects ProjectStore, locks *ProjectLocker, notifier Notifier) *ProposalService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ProposalService{proposals: proposals, projects: projects, locks: locks, notifier: notifier}
}

// Submit создаёт заявку на открытый проект.
func (s *ProposalService) Submit(ctx context.Context, projectID int64, freelancerID uuid.UUID, coverLetter string) (*models.Proposal, error) {
	if err := validation.ValidateCoverLetter(coverLetter); err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != valueobject.ProjectStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "проект не принимает заявки")
	}
	if project.ClientID == freelancerID {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "нельзя подать заявку на собственный проект")
	}

	existing, err := s.proposals.FindActiveByFreelancer(ctx, projectID, freelancerID)
	if err == nil && existing != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "вы уже подали заявку на этот проект")
	}

	proposal := &models.Proposal{
		ProjectID:    projectID,
		FreelancerID: freelancerID,
		CoverLetter:  coverLetter,
		Status:       valueobject.ProposalStatusPending,
	}
	if err := s.proposals.Create(ctx, proposal); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать заявку")
	}

	s.notifier.Notify(project.ClientID, "proposal.submitted", proposal)
	return proposal, nil
}

// Accept принимает заявку и в той же атомарной операции отклоняет
// остальные ожидающие заявки проекта. Повторный вызов для уже
// принятой заявки — успех без изменений.
func (s *ProposalService) Accept(ctx context.Context, proposalID int64, callerID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(proposal.ProjectID)
	defer unlock()

	// Перечитываем под локом: параллельный Accept мог уже отработать.
	proposal, err = s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, proposal.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != callerID {
		return nil, apperror.ErrForbidden
	}

	if proposal.Status == valueobject.ProposalStatusAccepted {
		return proposal, nil
	}
	if proposal.Status != valueobject.ProposalStatusPending {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "заявка уже рассмотрена")
	}
	if project.Status != valueobject.ProjectStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "заявки принимаются только на открытом проекте")
	}

	if err := s.proposals.Accept(ctx, proposalID, proposal.ProjectID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось принять заявку")
	}

	proposal.Status = valueobject.ProposalStatusAccepted
	s.notifier.Notify(proposal.FreelancerID, "proposal.accepted", proposal)
	return proposal, nil
}

// Reject отклоняет ожидающую заявку. Принятие escrow не трогает.
func (s *ProposalService) Reject(ctx context.Context, proposalID int64, callerID uuid.UUID) (*models.Proposal, error) {
	return s.close(ctx, proposalID, callerID, valueobject.ProposalStatusRejected, false)
}

// Withdraw отзывает собственную заявку фрилансера.
func (s *ProposalService) Withdraw(ctx context.Context, proposalID int64, callerID uuid.UUID) (*models.Proposal, error) {
	return s.close(ctx, proposalID, callerID, valueobject.ProposalStatusWithdrawn, true)
}

func (s *ProposalService) close(ctx context.Context, proposalID int64, callerID uuid.UUID, target valueobject.ProposalStatus, byFreelancer bool) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(proposal.ProjectID)
	defer unlock()

	proposal, err = s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if byFreelancer {
		if proposal.FreelancerID != callerID {
			return nil, apperror.ErrForbidden
		}
	} else {
		project, err := s.projects.GetByID(ctx, proposal.ProjectID)
		if err != nil {
			return nil, err
		}
		if project.ClientID != callerID {
			return nil, apperror.ErrForbidden
		}
	}

	if !proposal.Status.CanTransitionTo(target) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "заявка уже рассмотрена")
	}

	if err := s.proposals.UpdateStatus(ctx, proposalID, target); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить заявку")
	}
	proposal.Status = target
	return proposal, nil
}

// ListByProject возвращает заявки проекта для его клиента.
func (s *ProposalService) ListByProject(ctx context.Context, projectID int64) ([]models.Proposal, error) {
	return s.proposals.ListByProject(ctx, projectID)
}

package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// Интерфейсы хранилищ, которыми пользуются сервисы. Реализуются
// sqlx-репозиториями; в тестах подменяются моками или картами.

type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	List(ctx context.Context, status valueobject.ProjectStatus, category string, limit, offset int) ([]models.Project, error)
	Update(ctx context.Context, p *models.Project, expectedStatus valueobject.ProjectStatus) error
}

type ProposalStore interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id int64) (*models.Proposal, error)
	ListByProject(ctx context.Context, projectID int64) ([]models.Proposal, error)
	FindActiveByFreelancer(ctx context.Context, projectID int64, freelancerID uuid.UUID) (*models.Proposal, error)
	FindAccepted(ctx context.Context, projectID int64) (*models.Proposal, error)
	UpdateStatus(ctx context.Context, id int64, status valueobject.ProposalStatus) error
	Accept(ctx context.Context, proposalID, projectID int64) error
}

type SubmissionStore interface {
	Create(ctx context.Context, s *models.MilestoneSubmission) error
	GetByID(ctx context.Context, id int64) (*models.MilestoneSubmission, error)
	LatestByMilestone(ctx context.Context, projectID int64, milestoneNum int) (*models.MilestoneSubmission, error)
	ListByProject(ctx context.Context, projectID int64) ([]models.MilestoneSubmission, error)
	UpdateStatus(ctx context.Context, id int64, status valueobject.SubmissionStatus, releaseTxID *string) error
}

type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id int64) (*models.Dispute, error)
	FindOpenByMilestone(ctx context.Context, projectID int64, milestoneNum int) (*models.Dispute, error)
	ListByProject(ctx context.Context, projectID int64) ([]models.Dispute, error)
	Close(ctx context.Context, id int64, status valueobject.DisputeStatus, resolution string, resolvedBy *uuid.UUID, resolutionTxID *string) error
}

type ReconciliationStore interface {
	Create(ctx context.Context, m *models.ReconciliationMarker) error
	GetByID(ctx context.Context, id int64) (*models.ReconciliationMarker, error)
	ListPending(ctx context.Context) ([]models.ReconciliationMarker, error)
	MarkReplayed(ctx context.Context, id int64) error
}

// Notifier доставляет событие жизненного цикла пользователю
// (websocket хаб). Отправка не должна ронять основной поток.
type Notifier interface {
	Notify(userID uuid.UUID, event string, data interface{})
}

// noopNotifier используется, когда хаб не подключён (тесты, CLI).
type noopNotifier struct{}

func (noopNotifier) Notify(uuid.UUID, string, interface{}) {}

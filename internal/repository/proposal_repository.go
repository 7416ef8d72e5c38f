package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	query := `
		INSERT INTO proposals (project_id, freelancer_id, cover_letter, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, p.ProjectID, p.FreelancerID, p.CoverLetter, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProposalRepository) GetByID(ctx context.Context, id int64) (*models.Proposal, error) {
	return common.GetByID[models.Proposal](ctx, r.db, "proposals", id, apperror.ErrProposalNotFound)
}

func (r *ProposalRepository) ListByProject(ctx context.Context, projectID int64) ([]models.Proposal, error) {
	proposals := []models.Proposal{}
	err := r.db.SelectContext(ctx, &proposals, `
		SELECT * FROM proposals WHERE project_id = $1 ORDER BY created_at ASC, id ASC
	`, projectID)
	return proposals, err
}

// FindActiveByFreelancer ищет неотозванную заявку фрилансера на проект.
func (r *ProposalRepository) FindActiveByFreelancer(ctx context.Context, projectID int64, freelancerID uuid.UUID) (*models.Proposal, error) {
	var p models.Proposal
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM proposals
		WHERE project_id = $1 AND freelancer_id = $2 AND status <> 'withdrawn'
		ORDER BY id DESC LIMIT 1
	`, projectID, freelancerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return &p, err
}

// FindAccepted возвращает принятую заявку проекта, если она есть.
func (r *ProposalRepository) FindAccepted(ctx context.Context, projectID int64) (*models.Proposal, error) {
	var p models.Proposal
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM proposals WHERE project_id = $1 AND status = 'accepted' LIMIT 1
	`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return &p, err
}

func (r *ProposalRepository) UpdateStatus(ctx context.Context, id int64, status valueobject.ProposalStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE proposals SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	return err
}

// Accept атомарно принимает заявку и отклоняет все остальные
// ожидающие заявки того же проекта в одной транзакции. Инвариант
// "не более одной принятой заявки на проект" держится именно здесь.
func (r *ProposalRepository) Accept(ctx context.Context, proposalID, projectID int64) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = 'accepted', updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
		`, proposalID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE proposals SET status = 'rejected', updated_at = NOW()
			WHERE project_id = $1 AND id <> $2 AND status = 'pending'
		`, projectID, proposalID)
		return err
	})
}

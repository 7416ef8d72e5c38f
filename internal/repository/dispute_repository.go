package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (project_id, milestone_num, filed_by, reason, evidence_url, status, dispute_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		d.ProjectID, d.MilestoneNum, d.FiledBy, d.Reason, d.EvidenceURL, d.Status, d.DisputeTxID).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *DisputeRepository) GetByID(ctx context.Context, id int64) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, apperror.ErrDisputeNotFound)
}

// FindOpenByMilestone ищет открытый спор по паре (проект, этап).
// При гипотетических дублях авторитетна запись с большим id.
func (r *DisputeRepository) FindOpenByMilestone(ctx context.Context, projectID int64, milestoneNum int) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes
		WHERE project_id = $1 AND milestone_num = $2 AND status = 'open'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, projectID, milestoneNum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return &d, err
}

func (r *DisputeRepository) ListByProject(ctx context.Context, projectID int64) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE project_id = $1 ORDER BY created_at DESC, id DESC
	`, projectID)
	return disputes, err
}

// Close записывает терминальный исход спора (resolved или reset).
func (r *DisputeRepository) Close(ctx context.Context, id int64, status valueobject.DisputeStatus, resolution string, resolvedBy *uuid.UUID, resolutionTxID *string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_by = $4, resolution_tx_id = $5, resolved_at = $6
		WHERE id = $1
	`, id, status, resolution, resolvedBy, resolutionTxID, now)
	return err
}

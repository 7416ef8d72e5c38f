package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type ReconciliationRepository struct {
	db *sqlx.DB
}

func NewReconciliationRepository(db *sqlx.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) Create(ctx context.Context, m *models.ReconciliationMarker) error {
	query := `
		INSERT INTO reconciliation_markers (project_id, entity_kind, entity_id, tx_id, intended_transition, details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		m.ProjectID, m.EntityKind, m.EntityID, m.TxID, m.IntendedTransition, m.Details, m.Status).
		Scan(&m.ID, &m.CreatedAt)
}

func (r *ReconciliationRepository) GetByID(ctx context.Context, id int64) (*models.ReconciliationMarker, error) {
	return common.GetByID[models.ReconciliationMarker](ctx, r.db, "reconciliation_markers", id,
		apperror.New(apperror.ErrCodeNotFound, "маркер сверки не найден"))
}

func (r *ReconciliationRepository) ListPending(ctx context.Context) ([]models.ReconciliationMarker, error) {
	markers := []models.ReconciliationMarker{}
	err := r.db.SelectContext(ctx, &markers, `
		SELECT * FROM reconciliation_markers WHERE status = 'pending' ORDER BY created_at ASC
	`)
	return markers, err
}

func (r *ReconciliationRepository) MarkReplayed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconciliation_markers SET status = 'replayed', resolved_at = NOW() WHERE id = $1
	`, id)
	return err
}

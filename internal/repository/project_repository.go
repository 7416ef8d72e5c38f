package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (client_id, category, token, title, description,
			budget_micro, num_milestones, milestones, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		p.ClientID, p.Category, p.Token, p.Title, p.Description,
		p.BudgetMicro, p.NumMilestones, p.Milestones, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	return common.GetByID[models.Project](ctx, r.db, "projects", id, apperror.ErrProjectNotFound)
}

func (r *ProjectRepository) List(ctx context.Context, status valueobject.ProjectStatus, category string, limit, offset int) ([]models.Project, error) {
	query := `SELECT * FROM projects WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	projects := []models.Project{}
	err := r.db.SelectContext(ctx, &projects, query, args...)
	return projects, err
}

func (r *ProjectRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error) {
	projects := []models.Project{}
	err := r.db.SelectContext(ctx, &projects, `
		SELECT * FROM projects WHERE client_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	return projects, err
}

// Update записывает изменяемые поля проекта целиком, включая jsonb
// колонку этапов. expectedStatus защищает от конкурентной записи:
// если статус строки уже другой, обновление не применяется.
func (r *ProjectRepository) Update(ctx context.Context, p *models.Project, expectedStatus valueobject.ProjectStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET freelancer_id = $2, milestones = $3, status = $4,
			on_chain_id = $5, escrow_tx_id = $6, updated_at = NOW()
		WHERE id = $1 AND status = $7
	`, p.ID, p.FreelancerID, p.Milestones, p.Status, p.OnChainID, p.EscrowTxID, expectedStatus)
	if err != nil {
		return fmt.Errorf("project update: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("project update: %w", err)
	}
	if affected == 0 {
		// Либо строки нет, либо статус уже сменился.
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, p.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrProjectNotFound
			}
			return err
		}
		if !exists {
			return apperror.ErrProjectNotFound
		}
		return common.ErrStaleUpdate
	}
	return nil
}

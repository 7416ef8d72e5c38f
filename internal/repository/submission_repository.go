package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type SubmissionRepository struct {
	db *sqlx.DB
}

func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *models.MilestoneSubmission) error {
	query := `
		INSERT INTO milestone_submissions (project_id, milestone_num, freelancer_id,
			deliverable_url, note, status, completion_tx_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, submitted_at
	`
	return r.db.QueryRowContext(ctx, query,
		s.ProjectID, s.MilestoneNum, s.FreelancerID, s.DeliverableURL, s.Note, s.Status, s.CompletionTxID).
		Scan(&s.ID, &s.SubmittedAt)
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*models.MilestoneSubmission, error) {
	return common.GetByID[models.MilestoneSubmission](ctx, r.db, "milestone_submissions", id, apperror.ErrSubmissionNotFound)
}

// LatestByMilestone возвращает авторитетную (последнюю) сдачу этапа.
// Индексный запрос вместо сканирования коллекции: сортировка по
// времени сдачи, при равенстве побеждает больший id.
func (r *SubmissionRepository) LatestByMilestone(ctx context.Context, projectID int64, milestoneNum int) (*models.MilestoneSubmission, error) {
	var s models.MilestoneSubmission
	err := r.db.GetContext(ctx, &s, `
		SELECT * FROM milestone_submissions
		WHERE project_id = $1 AND milestone_num = $2
		ORDER BY submitted_at DESC, id DESC
		LIMIT 1
	`, projectID, milestoneNum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return &s, err
}

func (r *SubmissionRepository) ListByProject(ctx context.Context, projectID int64) ([]models.MilestoneSubmission, error) {
	submissions := []models.MilestoneSubmission{}
	err := r.db.SelectContext(ctx, &submissions, `
		SELECT * FROM milestone_submissions WHERE project_id = $1
		ORDER BY submitted_at DESC, id DESC
	`, projectID)
	return submissions, err
}

// UpdateStatus фиксирует итог ревью сдачи.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id int64, status valueobject.SubmissionStatus, releaseTxID *string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE milestone_submissions
		SET status = $2, release_tx_id = COALESCE($3, release_tx_id), reviewed_at = $4
		WHERE id = $1
	`, id, status, releaseTxID, now)
	return err
}

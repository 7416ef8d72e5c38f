package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// MilestoneSubmission — сдача работы по этапу. После отклонения
// фрилансер может сдать работу повторно, поэтому на один этап может
// приходиться несколько записей; авторитетна последняя по времени
// сдачи, при равенстве времени — с большим id.
type MilestoneSubmission struct {
	ID             int64                        `db:"id" json:"id"`
	ProjectID      int64                        `db:"project_id" json:"project_id"`
	MilestoneNum   int                          `db:"milestone_num" json:"milestone_num"`
	FreelancerID   uuid.UUID                    `db:"freelancer_id" json:"freelancer_id"`
	DeliverableURL string                       `db:"deliverable_url" json:"deliverable_url"`
	Note           *string                      `db:"note" json:"note,omitempty"`
	Status         valueobject.SubmissionStatus `db:"status" json:"status"`
	CompletionTxID *string                      `db:"completion_tx_id" json:"completion_tx_id,omitempty"`
	ReleaseTxID    *string                      `db:"release_tx_id" json:"release_tx_id,omitempty"`
	SubmittedAt    time.Time                    `db:"submitted_at" json:"submitted_at"`
	ReviewedAt     *time.Time                   `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

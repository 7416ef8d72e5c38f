package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Proposal — заявка фрилансера на проект. На проект одновременно
// может быть принята ровно одна заявка.
type Proposal struct {
	ID           int64                      `db:"id" json:"id"`
	ProjectID    int64                      `db:"project_id" json:"project_id"`
	FreelancerID uuid.UUID                  `db:"freelancer_id" json:"freelancer_id"`
	CoverLetter  string                     `db:"cover_letter" json:"cover_letter"`
	Status       valueobject.ProposalStatus `db:"status" json:"status"`
	CreatedAt    time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                  `db:"updated_at" json:"updated_at"`
}

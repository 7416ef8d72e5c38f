package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Dispute — спор по этапу проекта. На пару (проект, этап) может быть
// не более одного открытого спора; после reset допускается новый.
type Dispute struct {
	ID             int64                     `db:"id" json:"id"`
	ProjectID      int64                     `db:"project_id" json:"project_id"`
	MilestoneNum   int                       `db:"milestone_num" json:"milestone_num"`
	FiledBy        uuid.UUID                 `db:"filed_by" json:"filed_by"`
	Reason         string                    `db:"reason" json:"reason"`
	EvidenceURL    *string                   `db:"evidence_url" json:"evidence_url,omitempty"`
	Status         valueobject.DisputeStatus `db:"status" json:"status"`
	Resolution     *string                   `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy     *uuid.UUID                `db:"resolved_by" json:"resolved_by,omitempty"`
	DisputeTxID    *string                   `db:"dispute_tx_id" json:"dispute_tx_id,omitempty"`
	ResolutionTxID *string                   `db:"resolution_tx_id" json:"resolution_tx_id,omitempty"`
	CreatedAt      time.Time                 `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time                `db:"resolved_at" json:"resolved_at,omitempty"`
}

package models

import "time"

// Статусы маркеров ручной сверки.
const (
	ReconciliationStatusPending  = "pending"
	ReconciliationStatusReplayed = "replayed"
)

// Виды сущностей, к которым относится незавершённая запись.
const (
	ReconciliationEntityProject    = "project"
	ReconciliationEntityMilestone  = "milestone"
	ReconciliationEntityDispute    = "dispute"
	ReconciliationEntitySubmission = "submission"
)

// ReconciliationMarker фиксирует "осиротевшую" транзакцию: on-chain
// вызов подтверждён, но off-chain запись перехода не удалась.
// Система никогда не откатывает подтверждённый вызов и никогда не
// ретраит запись сама — маркер ждёт ручного повтора администратором.
type ReconciliationMarker struct {
	ID                 int64      `db:"id" json:"id"`
	ProjectID          int64      `db:"project_id" json:"project_id"`
	EntityKind         string     `db:"entity_kind" json:"entity_kind"`
	EntityID           int64      `db:"entity_id" json:"entity_id"`
	TxID               string     `db:"tx_id" json:"tx_id"`
	IntendedTransition string     `db:"intended_transition" json:"intended_transition"`
	Details            string     `db:"details" json:"details"`
	Status             string     `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt         *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// OwnershipState — производное от контракта состояние двухшаговой
// передачи владения; off-chain не хранится, только кэшируется.
type OwnershipState struct {
	Owner         string    `json:"owner"`
	ProposedOwner *string   `json:"proposed_owner,omitempty"`
	PolledAt      time.Time `json:"polled_at"`
}

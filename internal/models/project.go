package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Пределы количества этапов в проекте.
const (
	MinMilestones = 1
	MaxMilestones = 4
)

// Milestone — этап проекта. Этапы живут внутри строки проекта
// (jsonb колонка), отдельной таблицы у них нет.
type Milestone struct {
	Num         int                         `json:"num"`
	Title       string                      `json:"title"`
	Description string                      `json:"description,omitempty"`
	AmountMicro int64                       `json:"amount_micro"`
	Status      valueobject.MilestoneStatus `json:"status"`
	ReleaseTxID *string                     `json:"release_tx_id,omitempty"`
	RefundTxID  *string                     `json:"refund_tx_id,omitempty"`
	// Forced отмечает этап, закрытый принудительно администратором
	// в обход обычного цикла сдачи и приёмки.
	Forced bool `json:"forced,omitempty"`
}

// Milestones сериализуется в jsonb.
type Milestones []Milestone

func (m Milestones) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Milestones) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	}
	return fmt.Errorf("milestones: неподдерживаемый тип %T", src)
}

// Project — контракт клиента с 1–4 этапами и расчётным токеном.
type Project struct {
	ID           int64                     `db:"id" json:"id"`
	ClientID     uuid.UUID                 `db:"client_id" json:"client_id"`
	FreelancerID *uuid.UUID                `db:"freelancer_id" json:"freelancer_id,omitempty"`
	Category     string                    `db:"category" json:"category"`
	Token        valueobject.Token         `db:"token" json:"token"`
	Title        string                    `db:"title" json:"title"`
	Description  string                    `db:"description" json:"description"`
	BudgetMicro  int64                     `db:"budget_micro" json:"budget_micro"`
	NumMilestones int                      `db:"num_milestones" json:"num_milestones"`
	Milestones   Milestones                `db:"milestones" json:"milestones"`
	Status       valueobject.ProjectStatus `db:"status" json:"status"`
	OnChainID    *int64                    `db:"on_chain_id" json:"on_chain_id,omitempty"`
	EscrowTxID   *string                   `db:"escrow_tx_id" json:"escrow_tx_id,omitempty"`
	CreatedAt    time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time                 `db:"updated_at" json:"updated_at"`
}

// Milestone возвращает этап по номеру (1..NumMilestones).
func (p *Project) Milestone(num int) (*Milestone, bool) {
	for i := range p.Milestones {
		if p.Milestones[i].Num == num {
			return &p.Milestones[i], true
		}
	}
	return nil, false
}

// MilestonesSumMicro суммирует объявленные этапы; пустые слоты
// считаются нулём и в инвариант суммы не входят.
func (p *Project) MilestonesSumMicro() int64 {
	var sum int64
	for _, m := range p.Milestones {
		sum += m.AmountMicro
	}
	return sum
}

// AllMilestonesResolved: по каждому этапу средства уже двигались.
func (p *Project) AllMilestonesResolved() bool {
	for _, m := range p.Milestones {
		if !m.Status.IsTerminal() {
			return false
		}
	}
	return len(p.Milestones) > 0
}

// AllMilestonesApproved: проект можно считать завершённым только если
// каждый этап принят; возвраты по спорам завершение не дают.
func (p *Project) AllMilestonesApproved() bool {
	for _, m := range p.Milestones {
		if m.Status != valueobject.MilestoneStatusApproved {
			return false
		}
	}
	return len(p.Milestones) > 0
}

package service

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Фазы одного сквозного перехода chain + off-chain.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseAwaitingSignature Phase = "awaiting_signature"
	PhaseConfirmed         Phase = "confirmed"
	PhaseCommitted         Phase = "committed"
	PhaseCancelled         Phase = "cancelled"
	PhaseOrphanedOnChain   Phase = "orphaned_on_chain"
)

// ChainFlow описывает один переход, привязанный к on-chain вызову.
//
// Validate и Commit выполняются под локом проекта; Sign — вне лока,
// потому что подпись кошелька может длиться сколь угодно долго.
// ReplayParams — параметры, достаточные для ручного повтора Commit.
type ChainFlow struct {
	ProjectID    int64
	EntityKind   string
	EntityID     int64
	Transition   string
	ReplayParams interface{}
	Validate     func(ctx context.Context) error
	Sign         chain.SignFn
	Commit       func(ctx context.Context, txID string) error
}

// Coordinator владеет протоколом двухфазной записи: сначала
// подтверждение контракта, затем off-chain переход. Подтверждённый
// вызов контракта не откатывается никогда; неудавшаяся после него
// запись оставляет маркер ручной сверки.
type Coordinator struct {
	locks   *ProjectLocker
	markers ReconciliationStore
}

func NewCoordinator(locks *ProjectLocker, markers ReconciliationStore) *Coordinator {
	return &Coordinator{locks: locks, markers: markers}
}

// Execute проводит переход через все фазы и возвращает tx id.
//
//	Idle → AwaitingSignature → Confirmed → Committed
//	              ↘ Cancelled          ↘ OrphanedOnChain
func (c *Coordinator) Execute(ctx context.Context, flow ChainFlow) (string, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"project_id": flow.ProjectID,
		"entity":     flow.EntityKind,
		"entity_id":  flow.EntityID,
		"transition": flow.Transition,
	})

	// Шаг 1: проверка предусловий под локом, без обращения к контракту.
	unlock := c.locks.Lock(flow.ProjectID)
	err := flow.Validate(ctx)
	unlock()
	if err != nil {
		return "", err
	}

	// Шаг 2: ожидание подписи. Лок не держим — это человеческое время.
	log.WithField("phase", PhaseAwaitingSignature).Debug("coordinator: ожидание подписи")
	result := flow.Sign(ctx)

	switch result.Outcome {
	case chain.OutcomeCancelled:
		// Отмена до подтверждения: состояние не тронуто, можно повторить.
		log.WithField("phase", PhaseCancelled).Info("coordinator: подпись отменена")
		return "", apperror.New(apperror.ErrCodeCancelled, "подпись отменена, состояние не изменено")
	case chain.OutcomeFailed:
		log.WithField("phase", PhaseIdle).WithError(result.Err).Warn("coordinator: вызов контракта не прошёл")
		return "", apperror.Wrap(result.Err, apperror.ErrCodeBadRequest, "вызов контракта не выполнен")
	case chain.OutcomeConfirmed:
		// продолжаем
	default:
		return "", apperror.New(apperror.ErrCodeInternal, "неизвестный исход подписи")
	}

	log.WithFields(logrus.Fields{"phase": PhaseConfirmed, "tx_id": result.TxID}).Info("coordinator: транзакция подтверждена")

	// Шаг 5: off-chain запись под локом. Запись быстрая и не отменяется.
	unlock = c.locks.Lock(flow.ProjectID)
	commitErr := flow.Commit(context.WithoutCancel(ctx), result.TxID)
	unlock()

	if commitErr == nil {
		log.WithFields(logrus.Fields{"phase": PhaseCommitted, "tx_id": result.TxID}).Info("coordinator: переход записан")
		return result.TxID, nil
	}

	// Контракт уже исполнен, откатить нечем: фиксируем сироту для
	// ручного повтора и отдаём tx id наружу. Маркер обязан попасть
	// хотя бы в лог, даже если и его запись не удалась.
	marker := &models.ReconciliationMarker{
		ProjectID:          flow.ProjectID,
		EntityKind:         flow.EntityKind,
		EntityID:           flow.EntityID,
		TxID:               result.TxID,
		IntendedTransition: flow.Transition,
		Details:            marshalReplayParams(flow.ReplayParams),
		Status:             models.ReconciliationStatusPending,
	}
	if mErr := c.markers.Create(context.WithoutCancel(ctx), marker); mErr != nil {
		log.WithError(mErr).Error("coordinator: не удалось записать маркер сверки")
	}

	log.WithFields(logrus.Fields{
		"phase":  PhaseOrphanedOnChain,
		"tx_id":  result.TxID,
		"marker": marker.ID,
	}).WithError(commitErr).Error("coordinator: подтверждённая транзакция без off-chain записи")

	return result.TxID, apperror.NewOrphaned(result.TxID,
		"транзакция подтверждена, но запись состояния не удалась; не повторяйте вызов, обратитесь в поддержку", commitErr)
}

func marshalReplayParams(params interface{}) string {
	if params == nil {
		return "{}"
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

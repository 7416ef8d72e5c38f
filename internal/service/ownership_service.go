package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

const (
	ownershipCacheKey = "ownership:state"
	ownershipCacheTTL = 5 * time.Minute
)

// OwnershipService — двухшаговая передача владения контрактом.
// Источник истины — сам контракт: off-chain записи нет, состояние
// читается из контракта и кэшируется фоновым опросом.
type OwnershipService struct {
	bridge   chain.Bridge
	contract chain.Contract
	cache    ProgressCache

	// Principal, под которым бэкенд ожидает увидеть владельца.
	// Расхождение не блокирует работу, но подсвечивается в логах.
	expectedOwner string
}

func NewOwnershipService(bridge chain.Bridge, contract chain.Contract, cache ProgressCache, expectedOwner string) *OwnershipService {
	return &OwnershipService{bridge: bridge, contract: contract, cache: cache, expectedOwner: expectedOwner}
}

// Propose выдвигает нового владельца. Действует только текущий
// владелец — контракт сам отклонит чужой вызов.
func (s *OwnershipService) Propose(ctx context.Context, newOwner string) (string, error) {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return "", apperror.New(apperror.ErrCodeValidation, "principal нового владельца обязателен")
	}
	return s.sign(ctx, s.contract.ProposeOwnership(newOwner))
}

// Accept принимает предложенное владение от имени нового владельца.
func (s *OwnershipService) Accept(ctx context.Context) (string, error) {
	return s.sign(ctx, s.contract.AcceptOwnership())
}

func (s *OwnershipService) sign(ctx context.Context, call chain.Call) (string, error) {
	result := s.bridge.Sign(ctx, call)
	switch result.Outcome {
	case chain.OutcomeCancelled:
		return "", apperror.New(apperror.ErrCodeCancelled, "подпись отменена, состояние не изменено")
	case chain.OutcomeFailed:
		return "", apperror.Wrap(result.Err, apperror.ErrCodeBadRequest, "вызов контракта не выполнен")
	}

	// Кэш обновляем сразу, не дожидаясь планового опроса.
	if _, err := s.Poll(ctx); err != nil {
		logger.Log.WithError(err).Warn("ownership: не удалось обновить кэш после подписи")
	}
	return result.TxID, nil
}

// State отдаёт владельца и кандидата; кэш может отставать на один
// цикл опроса.
func (s *OwnershipService) State(ctx context.Context) (*models.OwnershipState, error) {
	if s.cache != nil {
		var cached models.OwnershipState
		hit, err := s.cache.GetJSON(ctx, ownershipCacheKey, &cached)
		if err == nil && hit {
			return &cached, nil
		}
	}
	return s.Poll(ctx)
}

// Poll читает get-contract-owner / get-proposed-owner из контракта и
// кладёт снимок в кэш; вызывается фоновой задачей раз в минуту.
func (s *OwnershipService) Poll(ctx context.Context) (*models.OwnershipState, error) {
	owner, err := s.bridge.ContractOwner(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "контракт недоступен")
	}
	proposed, err := s.bridge.ProposedOwner(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "контракт недоступен")
	}

	if s.expectedOwner != "" && owner != s.expectedOwner {
		logger.Log.WithFields(logrus.Fields{
			"owner":    owner,
			"expected": s.expectedOwner,
		}).Warn("ownership: владелец контракта отличается от настроенного")
	}

	state := &models.OwnershipState{
		Owner:         owner,
		ProposedOwner: proposed,
		PolledAt:      time.Now().UTC(),
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, ownershipCacheKey, state, ownershipCacheTTL); err != nil {
			logger.Log.WithError(err).Debug("ownership: не удалось записать кэш")
		}
	}
	return state, nil
}

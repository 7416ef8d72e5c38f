package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// RelayBridge реализует Bridge через wallet-relay: сервис, который
// показывает запрос на подпись владельцу ключа и возвращает итог.
// Подпись — человеческое ожидание: relay опрашивается без таймаута,
// пока пользователь не подтвердит, не откажется или не отменится
// контекст запроса.
type RelayBridge struct {
	baseURL    string
	httpClient *http.Client
	pollEvery  time.Duration
}

// NewRelayBridge создаёт мост к wallet-relay.
func NewRelayBridge(baseURL string) *RelayBridge {
	return &RelayBridge{
		baseURL: baseURL,
		// Без общего Timeout: каждый отдельный HTTP запрос короткий,
		// а длительность всего ожидания ограничивает только контекст.
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollEvery:  2 * time.Second,
	}
}

type signRequest struct {
	Function string        `json:"function"`
	Args     []interface{} `json:"args"`
}

type signResponse struct {
	RequestID string `json:"request_id"`
}

type signStatusResponse struct {
	Status string `json:"status"` // pending | confirmed | cancelled | failed
	TxID   string `json:"tx_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Sign отправляет вызов на подпись и ждёт итог.
func (b *RelayBridge) Sign(ctx context.Context, call Call) SignResult {
	requestID, err := b.submit(ctx, call)
	if err != nil {
		return SignResult{Outcome: OutcomeFailed, Err: err}
	}

	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Запрос брошен до подтверждения: off-chain ничего не
			// изменилось, считаем это отменой подписи.
			return SignResult{Outcome: OutcomeCancelled, Err: ctx.Err()}
		case <-ticker.C:
			status, err := b.poll(ctx, requestID)
			if err != nil {
				logger.Log.WithFields(logrus.Fields{
					"request_id": requestID,
					"function":   call.Function,
				}).WithError(err).Warn("chain: ошибка опроса wallet-relay, продолжаем ждать")
				continue
			}

			switch status.Status {
			case "confirmed":
				return SignResult{Outcome: OutcomeConfirmed, TxID: status.TxID}
			case "cancelled":
				return SignResult{Outcome: OutcomeCancelled}
			case "failed":
				return SignResult{Outcome: OutcomeFailed, Err: fmt.Errorf("chain: вызов %s отклонён: %s", call.Function, status.Error)}
			}
		}
	}
}

func (b *RelayBridge) submit(ctx context.Context, call Call) (string, error) {
	body, err := json.Marshal(signRequest{Function: call.Function, Args: call.Args})
	if err != nil {
		return "", fmt.Errorf("chain: не удалось сериализовать вызов: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sign-requests", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chain: wallet-relay недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chain: wallet-relay вернул статус %d", resp.StatusCode)
	}

	var parsed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("chain: некорректный ответ wallet-relay: %w", err)
	}
	return parsed.RequestID, nil
}

func (b *RelayBridge) poll(ctx context.Context, requestID string) (*signStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/sign-requests/"+requestID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain: wallet-relay вернул статус %d", resp.StatusCode)
	}

	var parsed signStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

type readOnlyResponse struct {
	Value *string `json:"value"`
}

// readOnly выполняет read-only вызов контракта через relay.
func (b *RelayBridge) readOnly(ctx context.Context, function string) (*string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/read-only/"+function, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain: wallet-relay недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain: read-only %s вернул статус %d", function, resp.StatusCode)
	}

	var parsed readOnlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Value, nil
}

// ContractOwner возвращает текущего владельца контракта.
func (b *RelayBridge) ContractOwner(ctx context.Context) (string, error) {
	value, err := b.readOnly(ctx, "get-contract-owner")
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("chain: get-contract-owner вернул пустое значение")
	}
	return *value, nil
}

// ProposedOwner возвращает предложенного владельца, если передача начата.
func (b *RelayBridge) ProposedOwner(ctx context.Context) (*string, error) {
	return b.readOnly(ctx, "get-proposed-owner")
}

package chain

import (
	"context"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Outcome — помеченный результат ожидания подписи кошелька.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// SignResult возвращается мостом после завершения интерактивной
// подписи. Вместо вложенных onFinish/onCancel колбэков — один
// результат, чтобы протокол двухфазной записи читался линейно.
type SignResult struct {
	Outcome Outcome
	TxID    string
	Err     error
}

// Call — один вызов функции контракта escrow.
type Call struct {
	Function string        `json:"function"`
	Args     []interface{} `json:"args"`
}

// Bridge выдаёт on-chain вызовы и читает состояние контракта.
// Sign блокируется до ответа кошелька: таймаута нет, отмена —
// только через контекст или явный отказ пользователя.
type Bridge interface {
	Sign(ctx context.Context, call Call) SignResult
	ContractOwner(ctx context.Context) (string, error)
	ProposedOwner(ctx context.Context) (*string, error)
}

// SignFn — функция получения подтверждения для одного вызова;
// координатор работает с ней, не зная, кто именно подписывает.
type SignFn func(ctx context.Context) SignResult

// Preconfirmed оборачивает транзакцию, уже подписанную и
// подтверждённую на стороне клиента (браузерный кошелёк), в тот же
// протокол, что и серверные вызовы.
func Preconfirmed(txID string) SignFn {
	return func(ctx context.Context) SignResult {
		return SignResult{Outcome: OutcomeConfirmed, TxID: txID}
	}
}

// Contract собирает вызовы контракта. Для sbtc-вариантов функций
// имя получает суффикс токена, а последним аргументом добавляется
// principal токен-контракта.
type Contract struct {
	Principal     string
	SBTCPrincipal string
}

func (c Contract) suffixed(base string, token valueobject.Token, args ...interface{}) Call {
	function := base + "-" + string(token)
	if token == valueobject.TokenSBTC {
		args = append(args, c.SBTCPrincipal)
	}
	return Call{Function: function, Args: args}
}

func (c Contract) CreateProject(token valueobject.Token, milestoneAmounts []int64) Call {
	args := make([]interface{}, 0, len(milestoneAmounts))
	for _, amount := range milestoneAmounts {
		args = append(args, amount)
	}
	return c.suffixed("create-project", token, args...)
}

func (c Contract) ReleaseMilestone(token valueobject.Token, onChainID int64, milestoneNum int) Call {
	return c.suffixed("release-milestone", token, onChainID, milestoneNum)
}

func (c Contract) FileDispute(onChainID int64, milestoneNum int) Call {
	return Call{Function: "file-dispute", Args: []interface{}{onChainID, milestoneNum}}
}

func (c Contract) RequestFullRefund(token valueobject.Token, onChainID int64) Call {
	return c.suffixed("request-full-refund", token, onChainID)
}

func (c Contract) EmergencyRefund(token valueobject.Token, onChainID int64) Call {
	return c.suffixed("emergency-refund", token, onChainID)
}

func (c Contract) AdminResolveDispute(token valueobject.Token, onChainID int64, milestoneNum int, releaseToFreelancer bool) Call {
	return c.suffixed("admin-resolve-dispute", token, onChainID, milestoneNum, releaseToFreelancer)
}

func (c Contract) AdminForceRefund(token valueobject.Token, onChainID int64) Call {
	return c.suffixed("admin-force-refund", token, onChainID)
}

func (c Contract) ProposeOwnership(newOwner string) Call {
	return Call{Function: "propose-ownership", Args: []interface{}{newOwner}}
}

func (c Contract) AcceptOwnership() Call {
	return Call{Function: "accept-ownership"}
}

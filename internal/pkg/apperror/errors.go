package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodePrecondition    ErrorCode = "PRECONDITION"
	ErrCodeCancelled       ErrorCode = "CANCELLED"
	ErrCodeOrphanedOnChain ErrorCode = "ORPHANED_ON_CHAIN"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	// TxID заполняется только для ORPHANED_ON_CHAIN: подтверждённая
	// on-chain транзакция, для которой не записан off-chain переход.
	TxID string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// NewOrphaned формирует ошибку для подтверждённой on-chain транзакции,
// off-chain запись которой не удалась. Транзакцию нельзя откатить —
// ошибка несёт tx id, чтобы администратор мог повторить запись вручную.
func NewOrphaned(txID, message string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeOrphanedOnChain,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
		TxID:       txID,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeInvalidState, ErrCodePrecondition:
		return http.StatusUnprocessableEntity
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeCancelled:
		// Пользователь сам отменил подпись: состояние не изменилось.
		return http.StatusRequestTimeout
	case ErrCodeOrphanedOnChain:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsConflict(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeConflict
}

func IsInvalidState(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidState
}

func IsCancelled(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeCancelled
}

func IsOrphaned(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeOrphanedOnChain
}

// OrphanedTxID возвращает tx id из ошибки ORPHANED_ON_CHAIN.
func OrphanedTxID(err error) (string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeOrphanedOnChain {
		return appErr.TxID, true
	}
	return "", false
}

var (
	ErrProjectNotFound    = New(ErrCodeNotFound, "проект не найден")
	ErrProposalNotFound   = New(ErrCodeNotFound, "предложение не найдено")
	ErrSubmissionNotFound = New(ErrCodeNotFound, "сдача этапа не найдена")
	ErrDisputeNotFound    = New(ErrCodeNotFound, "спор не найден")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden          = New(ErrCodeForbidden, "недостаточно прав")
)

package valueobject

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Token определяет расчётный токен проекта. Каждый токен имеет
// фиксированную точность; все суммы хранятся в целых микро-единицах.
type Token string

const (
	TokenSTX  Token = "stx"
	TokenSBTC Token = "sbtc"
)

func (t Token) IsValid() bool {
	return t == TokenSTX || t == TokenSBTC
}

// Decimals возвращает число знаков после запятой для токена.
func (t Token) Decimals() int {
	switch t {
	case TokenSTX:
		return 6
	case TokenSBTC:
		return 8
	}
	return 0
}

func NewToken(raw string) (Token, error) {
	t := Token(strings.ToLower(strings.TrimSpace(raw)))
	if !t.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "неизвестный расчётный токен")
	}
	return t, nil
}

// MicroUnits переводит десятичную строку в микро-единицы токена.
// Арифметика строго целочисленная: лишние знаки дробной части
// отбрасываются (floor), float64 не используется вовсе.
func MicroUnits(amount string, token Token) (int64, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма не указана")
	}
	if strings.HasPrefix(s, "-") {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, apperror.New(apperror.ErrCodeValidation, "некорректный формат суммы")
	}

	decimals := token.Decimals()
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	full := strings.TrimLeft(intPart+fracPart, "0")
	if full == "" {
		return 0, nil
	}
	micro, err := strconv.ParseInt(full, 10, 64)
	if err != nil {
		return 0, apperror.New(apperror.ErrCodeValidation, "сумма выходит за допустимый диапазон")
	}
	return micro, nil
}

// DecimalString переводит микро-единицы обратно в десятичную строку
// для отображения. Хвостовые нули дробной части обрезаются.
func DecimalString(micro int64, token Token) string {
	decimals := token.Decimals()
	digits := fmt.Sprintf("%0*d", decimals+1, micro)
	intPart := digits[:len(digits)-decimals]
	fracPart := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

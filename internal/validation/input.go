package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Константы валидации
const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MinCoverLetterLength = 10
	MaxCoverLetterLength = 2000
	MinReasonLength      = 5
	MaxReasonLength      = 2000
	MaxURLLength         = 500
	MaxCategoryLength    = 100
)

// ValidateLength проверяет длину строки в рунах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("%s должен быть не менее %d символов", fieldName, min))
	}
	if max > 0 && length > max {
		return apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("%s должен быть не более %d символов", fieldName, max))
	}
	return nil
}

// ValidateTitle проверяет название проекта или этапа.
func ValidateTitle(title string) error {
	return ValidateLength("название", strings.TrimSpace(title), MinTitleLength, MaxTitleLength)
}

// ValidateDescription проверяет описание; пустое допустимо.
func ValidateDescription(description string) error {
	return ValidateLength("описание", description, 0, MaxDescriptionLength)
}

// ValidateCoverLetter проверяет сопроводительное письмо заявки.
func ValidateCoverLetter(coverLetter string) error {
	return ValidateLength("сопроводительное письмо", strings.TrimSpace(coverLetter), MinCoverLetterLength, MaxCoverLetterLength)
}

// ValidateReason проверяет текст причины спора или решения.
func ValidateReason(reason string) error {
	return ValidateLength("текст", strings.TrimSpace(reason), MinReasonLength, MaxReasonLength)
}

// ValidateURL проверяет ссылку на артефакт: http(s) либо внутренний
// путь /uploads/... нашего хранилища.
func ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return apperror.New(apperror.ErrCodeValidation, "ссылка обязательна")
	}
	if len(rawURL) > MaxURLLength {
		return apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("ссылка не должна превышать %d символов", MaxURLLength))
	}
	if strings.HasPrefix(rawURL, "/uploads/") {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return apperror.New(apperror.ErrCodeValidation, "ссылка должна быть корректным http(s) адресом")
	}
	return nil
}

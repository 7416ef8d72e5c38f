package common

import "errors"

// Общие ошибки для всех репозиториев
var (
	ErrNotFound = errors.New("entity not found")
	// ErrStaleUpdate возвращается условным обновлением, когда строка
	// уже изменена конкурентным писателем и ожидаемый статус не совпал.
	ErrStaleUpdate = errors.New("stale conditional update")
)

package service

import "sync"

// ProjectLocker раздаёт взаимное исключение по id проекта.
// Конкурентные потоки, меняющие один проект, сериализуются здесь;
// разные проекты друг другу не мешают. Ожидание подписи кошелька
// обязано происходить вне этого лока — держать его часами нельзя.
type ProjectLocker struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewProjectLocker() *ProjectLocker {
	return &ProjectLocker{locks: make(map[int64]*sync.Mutex)}
}

// Lock захватывает лок проекта и возвращает функцию освобождения.
func (l *ProjectLocker) Lock(projectID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Минимальный валидный заголовок PNG для определения типа.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func newTestStorage(t *testing.T, maxMB int64) *EvidenceStorage {
	t.Helper()
	s, err := NewEvidenceStorage(t.TempDir(), maxMB)
	require.NoError(t, err)
	return s
}

func TestSaveAndDelete(t *testing.T) {
	s := newTestStorage(t, 1)
	userID := uuid.New()
	ctx := context.Background()

	payload := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x00}, 100)...)
	relative, size, err := s.Save(ctx, userID, "screenshot.png", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
	assert.Equal(t, userID.String(), filepath.Dir(relative))

	stored, err := os.ReadFile(filepath.Join(s.rootPath, relative))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	require.NoError(t, s.Delete(ctx, relative))
	_, err = os.Stat(filepath.Join(s.rootPath, relative))
	assert.True(t, os.IsNotExist(err))

	// Повторное удаление не ошибка.
	assert.NoError(t, s.Delete(ctx, relative))
}

func TestSaveRejectsUnknownType(t *testing.T) {
	s := newTestStorage(t, 1)

	_, _, err := s.Save(context.Background(), uuid.New(), "evil.png", bytes.NewReader([]byte("#!/bin/sh\nrm -rf /")))
	assert.Error(t, err)
}

func TestSaveRejectsOversized(t *testing.T) {
	s := newTestStorage(t, 1)

	payload := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x00}, 2*1024*1024)...)
	_, _, err := s.Save(context.Background(), uuid.New(), "big.png", bytes.NewReader(payload))
	assert.Error(t, err)

	// Временных файлов после отказа не остаётся.
	entries, err := os.ReadDir(s.rootPath)
	require.NoError(t, err)
	for _, entry := range entries {
		sub, err := os.ReadDir(filepath.Join(s.rootPath, entry.Name()))
		require.NoError(t, err)
		assert.Empty(t, sub)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "file", sanitizeFilename(""))
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
}

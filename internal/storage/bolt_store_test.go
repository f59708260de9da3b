package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagload/internal/metrics"
)

func openTemp(t *testing.T, keep int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path, keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSaveAndGet(t *testing.T) {
	s, _ := openTemp(t, 0)

	rec := &RunRecord{
		StartedAt:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 3, 1, 9, 49, 0, 0, time.UTC),
		Endpoint:   "http://localhost:8080",
		Counters: []metrics.Sample{
			{Name: metrics.Errors, Endpoint: "GET /analysis", Tag: "epidemic peak", Value: 2},
			{Name: metrics.Errors, Endpoint: "POST /analysis", Tag: "normal circumstances", Value: 1},
			{Name: metrics.AnalysisCorrect, Endpoint: "GET /analysis", Tag: "normal circumstances", Value: 7},
		},
	}
	require.NoError(t, s.Save(rec))
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Endpoint, got.Endpoint)
	assert.Equal(t, 3.0, got.Counter(metrics.Errors))
	assert.Equal(t, 7.0, got.Counter(metrics.AnalysisCorrect))
	assert.Equal(t, 49*time.Minute, got.Elapsed())

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s, _ := openTemp(t, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(&RunRecord{Endpoint: fmt.Sprintf("http://svc-%d", i)}))
		time.Sleep(2 * time.Millisecond)
	}

	items, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "http://svc-2", items[0].Endpoint)
	assert.Equal(t, "http://svc-0", items[2].Endpoint)

	items, err = s.List(2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRetention(t *testing.T) {
	s, _ := openTemp(t, 2)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(&RunRecord{Endpoint: fmt.Sprintf("http://svc-%d", i)}))
		time.Sleep(2 * time.Millisecond)
	}

	items, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "http://svc-3", items[0].Endpoint)
	assert.Equal(t, "http://svc-2", items[1].Endpoint)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path, 0)
	require.NoError(t, err)
	rec := &RunRecord{Endpoint: "http://svc"}
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Close())

	s, err = Open(path, 0)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://svc", got.Endpoint)
}

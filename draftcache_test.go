package draftcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftcache/draftcache/internal/config"
	"github.com/draftcache/draftcache/pkg/cacheerr"
	"github.com/draftcache/draftcache/pkg/health"
)

func newTestSubsystem(t *testing.T) *Subsystem {
	t.Helper()

	cfg := config.Default()
	cfg.ResponseCache.Path = filepath.Join(t.TempDir(), "responses.db")
	cfg.ProjectCache.BudgetPerProject = "1MB"

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubsystem_ProjectIsolation(t *testing.T) {
	s := newTestSubsystem(t)

	a := s.ProjectCache("novel-a")
	b := s.ProjectCache("novel-b")

	require.NoError(t, a.Set("chapter:1", []byte("a draft")))
	require.NoError(t, b.Set("chapter:1", []byte("b draft")))

	got, ok := a.Get("chapter:1")
	require.True(t, ok)
	assert.Equal(t, []byte("a draft"), got)

	got, ok = b.Get("chapter:1")
	require.True(t, ok)
	assert.Equal(t, []byte("b draft"), got)

	// The registry hands back the same instance for the same ID.
	assert.Same(t, a, s.ProjectCache("novel-a"))

	s.CloseProject("novel-a")
	_, ok = s.ProjectCache("novel-a").Get("chapter:1")
	assert.False(t, ok, "closed project must come back empty")
}

func TestSubsystem_OpenText(t *testing.T) {
	s := newTestSubsystem(t)

	path := filepath.Join(t.TempDir(), "draft.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o600))

	ld, err := s.OpenText(path)
	require.NoError(t, err)
	assert.Equal(t, int64(18), ld.Size())

	it := ld.Lines()
	defer it.Close()
	var lines []string
	for it.Next() {
		lines = append(lines, it.Text())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"line one", "line two"}, lines)

	_, err = s.OpenText(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestSubsystem_ResponseRoundTrip(t *testing.T) {
	s := newTestSubsystem(t)
	ctx := context.Background()

	req := Request{
		Provider: "openai",
		Endpoint: "chat/completions",
		Model:    "gpt-4",
		Params:   map[string]string{"temperature": "0.7"},
	}
	fctx := FingerprintContext{
		ProjectID:     "novel-a",
		Genre:         "mystery",
		RecentContent: "The detective paused at the door.",
	}

	_, ok := s.LookupResponse(ctx, req, fctx)
	require.False(t, ok, "fresh store must miss")

	payload := []byte("She reached for the handle, then stopped.")
	require.NoError(t, s.CacheResponse(ctx, req, fctx, payload))

	got, ok := s.LookupResponse(ctx, req, fctx)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// A different context yields a different fingerprint and a miss.
	fctx.RecentContent = "The rain had stopped hours ago."
	_, ok = s.LookupResponse(ctx, req, fctx)
	assert.False(t, ok)
}

func TestSubsystem_ReadOnlyStoreDropsWrites(t *testing.T) {
	s := newTestSubsystem(t)
	ctx := context.Background()

	// Drive the store into the read-only state through write failures.
	writeErr := cacheerr.New(cacheerr.ErrCodeStorageWrite, "disk full")
	for i := 0; i < 3; i++ {
		s.Health().RecordError(ComponentResponseStore, writeErr)
	}
	require.Equal(t, health.StateReadOnly, s.Health().GetState(ComponentResponseStore))

	req := Request{Provider: "openai", Model: "gpt-4"}
	fctx := FingerprintContext{ProjectID: "novel-a"}

	require.NoError(t, s.CacheResponse(ctx, req, fctx, []byte("dropped")))
	_, ok := s.LookupResponse(ctx, req, fctx)
	assert.False(t, ok, "read-only store must not have accepted the write")
}

func TestSubsystem_StatsAndLifecycle(t *testing.T) {
	s := newTestSubsystem(t)

	require.NoError(t, s.ProjectCache("novel-a").Set("k", make([]byte, 100)))
	s.SetActiveProject("novel-a")

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.CacheBytes, int64(100))
	assert.Equal(t, 1, stats.RegisteredCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Close())
}

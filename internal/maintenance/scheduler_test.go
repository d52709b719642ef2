package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	pruneBefore time.Time
	clearedAt   time.Time
	pruneErr    error
	clearCalls  int
}

func (r *recordingStore) DeletePublishedOutboxMessagesBefore(ctx context.Context, before time.Time) (int64, error) {
	r.pruneBefore = before
	return 3, r.pruneErr
}

func (r *recordingStore) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	r.clearCalls++
	r.clearedAt = now
	return 1, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepUsesRetentionWindow(t *testing.T) {
	store := &recordingStore{}
	s := NewScheduler(store, time.Hour, 48*time.Hour, discard())
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, now.Add(-48*time.Hour), store.pruneBefore)
	assert.Equal(t, now, store.clearedAt)
}

func TestSweepStopsOnPruneFailure(t *testing.T) {
	store := &recordingStore{pruneErr: errors.New("db down")}
	s := NewScheduler(store, time.Hour, time.Hour, discard())

	assert.Error(t, s.Sweep(context.Background()))
	assert.Zero(t, store.clearCalls)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewScheduler(&recordingStore{}, time.Millisecond, time.Hour, discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

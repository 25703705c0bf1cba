package clicks_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shortlink/internal/clicks"
	"shortlink/internal/model"
	"shortlink/internal/repository"
)

func TestAccumulator_CountConvergesToN(t *testing.T) {
	store := repository.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode: "abc123", TargetURL: "https://example.com", IsActive: true,
	}))

	acc := clicks.NewAccumulator(store, zap.NewNop(), clicks.Options{
		QueueSize:  1000,
		Workers:    4,
		BatchSize:  16,
		FlushEvery: 10 * time.Millisecond,
	})
	runCtx, cancel := context.WithCancel(ctx)
	acc.Start(runCtx)

	const n = 250
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Record(model.ClickEvent{ID: "", ShortCode: "abc123", Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	// Shutdown drains and flushes whatever is still buffered.
	cancel()
	acc.Wait()

	rec, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(n), rec.ClickCount)
	assert.Zero(t, acc.Dropped())

	events, err := store.RecentClickEvents(ctx, "abc123", n+1)
	require.NoError(t, err)
	assert.Len(t, events, n)
}

func TestAccumulator_DropsWhenQueueFull(t *testing.T) {
	store := repository.NewMemStore()
	acc := clicks.NewAccumulator(store, zap.NewNop(), clicks.Options{QueueSize: 1, Workers: 1})
	// Workers never started: the queue cannot drain.

	acc.Record(model.ClickEvent{ShortCode: "a"})
	acc.Record(model.ClickEvent{ShortCode: "b"})
	acc.Record(model.ClickEvent{ShortCode: "c"})

	assert.Equal(t, int64(2), acc.Dropped())
}

func TestAccumulator_MissingLinkDoesNotStall(t *testing.T) {
	store := repository.NewMemStore()
	acc := clicks.NewAccumulator(store, zap.NewNop(), clicks.Options{
		QueueSize: 10, Workers: 1, BatchSize: 1, FlushEvery: 5 * time.Millisecond,
	})
	runCtx, cancel := context.WithCancel(context.Background())
	acc.Start(runCtx)

	// Event for a code that was swept between redirect and flush.
	acc.Record(model.ClickEvent{ID: "x", ShortCode: "gone", Timestamp: time.Now()})

	cancel()
	acc.Wait()

	// The raw event is still appended even though the increment target is gone.
	events, err := store.RecentClickEvents(context.Background(), "gone", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

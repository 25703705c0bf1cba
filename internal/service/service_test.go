package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shortlink/internal/model"
	"shortlink/internal/repository"
)

type recorderStub struct {
	mu     sync.Mutex
	events []model.ClickEvent
}

func (r *recorderStub) Record(ev model.ClickEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newTestService() (*Service, *repository.MemStore, *recorderStub) {
	store := repository.NewMemStore()
	rec := &recorderStub{}
	svc := NewService(store, nil, rec, zap.NewNop())
	return svc, store, rec
}

func TestCreate_GeneratedCode(t *testing.T) {
	svc, _, _ := newTestService()

	rec, err := svc.Create(context.Background(), model.CreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Len(t, rec.ShortCode, 6)
	assert.Equal(t, "https://example.com", rec.TargetURL)
	assert.True(t, rec.IsActive)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := svc.Info(context.Background(), rec.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, rec.ShortCode, got.ShortCode)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, model.CreateRequest{URL: "not a url"})
	assert.ErrorIs(t, err, model.ErrInvalidURL)

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, model.CreateRequest{URL: "https://example.com", ExpiresAt: &past})
	assert.ErrorIs(t, err, model.ErrInvalidURL)

	_, err = svc.Create(ctx, model.CreateRequest{URL: "https://example.com", CustomAlias: "has space"})
	assert.ErrorIs(t, err, model.ErrInvalidAlias)

	_, err = svc.Create(ctx, model.CreateRequest{URL: "https://example.com", CustomAlias: "admin"})
	assert.ErrorIs(t, err, model.ErrInvalidAlias)
}

func TestCreate_CustomAliasConflict(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, model.CreateRequest{URL: "https://example.com/1", CustomAlias: "mylink"})
	require.NoError(t, err)
	assert.Equal(t, "mylink", first.ShortCode)

	// A collision surfaces; the user's alias is never silently replaced.
	_, err = svc.Create(ctx, model.CreateRequest{URL: "https://example.com/2", CustomAlias: "mylink"})
	assert.ErrorIs(t, err, model.ErrAliasTaken)

	got, err := svc.Info(ctx, "mylink")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", got.TargetURL)
}

func TestCreate_ConcurrentSameAlias(t *testing.T) {
	svc, _, _ := newTestService()
	const n = 32

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), model.CreateRequest{
				URL:         "https://example.com",
				CustomAlias: "contested",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case model.IsAliasTaken(err):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicted)
}

func TestCreate_GenerationExhausted(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// A generator pinned to a single candidate saturates the space after
	// the first successful insert.
	svc.gen = func(int) string { return "stuck1" }

	_, err := svc.Create(ctx, model.CreateRequest{URL: "https://example.com/1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, model.CreateRequest{URL: "https://example.com/2"})
	assert.ErrorIs(t, err, model.ErrGenerationExhausted)
}

func TestResolve_Example(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode: "abc123",
		TargetURL: "https://example.com",
		IsActive:  true,
	}))

	rec, err := svc.Resolve(ctx, "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", rec.TargetURL)
}

func TestResolve_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Resolve(context.Background(), "missing", "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestResolve_Inactive(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Create(ctx, model.CreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rec.ShortCode, ""))

	_, err = svc.Resolve(ctx, rec.ShortCode, "")
	assert.ErrorIs(t, err, model.ErrInactive)
}

func TestResolve_ExpiredBeatsPassword(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode:    "locked",
		TargetURL:    "https://example.com",
		IsActive:     true,
		ExpiresAt:    &expired,
		PasswordHash: "$2a$10$fakehashfakehashfakehashfakehashfakehashfakehashfake",
	}))

	// An expired link is gone, not protected.
	_, err := svc.Resolve(ctx, "locked", "")
	assert.ErrorIs(t, err, model.ErrExpired)
}

func TestResolve_Password(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Create(ctx, model.CreateRequest{URL: "https://example.com", Password: "hunter2"})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, rec.ShortCode, "")
	assert.ErrorIs(t, err, model.ErrPasswordRequired)

	_, err = svc.Resolve(ctx, rec.ShortCode, "wrong")
	assert.ErrorIs(t, err, model.ErrPasswordIncorrect)

	got, err := svc.Resolve(ctx, rec.ShortCode, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.TargetURL)
}

func TestResolve_StoreUnavailablePassesThrough(t *testing.T) {
	svc, store, _ := newTestService()
	store.FailWith = model.ErrStoreUnavailable

	_, err := svc.Resolve(context.Background(), "any", "")
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

func TestRecordClick_TruncatesMetadata(t *testing.T) {
	svc, _, rec := newTestService()

	longUA := strings.Repeat("u", 600)
	svc.RecordClick("abc123", "203.0.113.9", longUA, "https://referer.example")

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "abc123", ev.ShortCode)
	assert.Len(t, ev.UserAgent, 500)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestCreateMany_OrderPreserved(t *testing.T) {
	svc, _, _ := newTestService()

	results := svc.CreateMany(context.Background(), []model.CreateRequest{
		{URL: "https://example.com/a"},
		{URL: "not a url"},
		{URL: "https://example.com/c"},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, model.ErrInvalidURL)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "https://example.com/a", results[0].Record.TargetURL)
	assert.Equal(t, "https://example.com/c", results[2].Record.TargetURL)
}

func TestCreateMany_FailureIsolated(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, model.CreateRequest{URL: "https://example.com", CustomAlias: "taken"})
	require.NoError(t, err)

	results := svc.CreateMany(ctx, []model.CreateRequest{
		{URL: "https://example.com/a", CustomAlias: "taken"},
		{URL: "https://example.com/b"},
	})
	assert.ErrorIs(t, results[0].Err, model.ErrAliasTaken)
	require.NoError(t, results[1].Err)

	// The failed item did not roll back its neighbor.
	_, err = svc.Info(ctx, results[1].Record.ShortCode)
	assert.NoError(t, err)
}

func TestSweep_Idempotent(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	pastGrace := time.Now().Add(-48 * time.Hour)
	withinGrace := time.Now().Add(-time.Hour)
	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode: "stale1", TargetURL: "https://example.com", IsActive: true, ExpiresAt: &pastGrace,
	}))
	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode: "recent", TargetURL: "https://example.com", IsActive: true, ExpiresAt: &withinGrace,
	}))
	require.NoError(t, store.Create(ctx, &model.LinkRecord{
		ShortCode: "alive1", TargetURL: "https://example.com", IsActive: true,
	}))

	cleaned, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned, "only links past expiry plus grace are removed")

	cleaned, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleaned, "second sweep with no new expirations cleans nothing")

	_, err = svc.Info(ctx, "alive1")
	assert.NoError(t, err, "active records are never swept")
	_, err = svc.Info(ctx, "recent")
	assert.NoError(t, err, "expired but within grace stays")
	_, err = svc.Info(ctx, "stale1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

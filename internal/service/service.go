package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shortlink/internal/model"
	"shortlink/internal/util"
)

const (
	defaultCodeLength = 6
	defaultAttempts   = 5
	defaultGrace      = 24 * time.Hour
	defaultRetention  = 90 * 24 * time.Hour
	maxMetadataBytes  = 500
	cacheTTL          = 24 * time.Hour
	recentEventLimit  = 20
)

// Store abstracts the durable link store. Repo implements it against
// Postgres; MemStore backs tests.
type Store interface {
	Create(ctx context.Context, rec *model.LinkRecord) error
	Get(ctx context.Context, code string) (*model.LinkRecord, error)
	SoftDelete(ctx context.Context, code, ownerID string) error
	IncrementClicks(ctx context.Context, code string, delta int64) error
	SweepExpired(ctx context.Context, now time.Time, grace time.Duration) (int64, error)
	RecentClickEvents(ctx context.Context, code string, limit int) ([]model.ClickEvent, error)
	PurgeClickEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

// Recorder receives click events off the redirect critical path.
type Recorder interface {
	Record(ev model.ClickEvent)
}

// CreateResult pairs one bulk input with its outcome.
type CreateResult struct {
	Record *model.LinkRecord
	Err    error
}

type Service struct {
	Store  Store
	Redis  *redis.Client // may be nil if disabled
	Clicks Recorder

	CodeLength     int
	Attempts       int
	SweepGrace     time.Duration
	EventRetention time.Duration

	log *zap.Logger
	gen func(length int) string
	now func() time.Time
}

func NewService(store Store, rdb *redis.Client, clicks Recorder, log *zap.Logger) *Service {
	return &Service{
		Store:          store,
		Redis:          rdb,
		Clicks:         clicks,
		CodeLength:     defaultCodeLength,
		Attempts:       defaultAttempts,
		SweepGrace:     defaultGrace,
		EventRetention: defaultRetention,
		log:            log,
		gen:            util.GenerateCode,
		now:            time.Now,
	}
}

// Create validates the request and persists one link. A custom alias gets a
// single atomic insert attempt; a collision surfaces as ErrAliasTaken rather
// than a silently substituted code. Generated codes retry on collision up to
// the bounded attempt budget.
func (s *Service) Create(ctx context.Context, req model.CreateRequest) (*model.LinkRecord, error) {
	if !util.ValidateURL(req.URL) {
		return nil, model.ErrInvalidURL
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(s.now()) {
		// Past expiry is not allowed.
		return nil, model.ErrInvalidURL
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}

	rec := &model.LinkRecord{
		TargetURL:    req.URL,
		ExpiresAt:    req.ExpiresAt,
		IsActive:     true,
		PasswordHash: passwordHash,
		OwnerID:      req.OwnerID,
	}

	if req.CustomAlias != "" {
		if !util.ValidateAlias(req.CustomAlias) {
			return nil, model.ErrInvalidAlias
		}
		rec.ShortCode = req.CustomAlias
		if err := s.Store.Create(ctx, rec); err != nil {
			return nil, err
		}
		s.cacheSet(ctx, rec)
		return rec, nil
	}

	for attempt := 0; attempt < s.Attempts; attempt++ {
		rec.ShortCode = s.gen(s.CodeLength)
		err := s.Store.Create(ctx, rec)
		if err == nil {
			s.cacheSet(ctx, rec)
			return rec, nil
		}
		if !model.IsAliasTaken(err) {
			return nil, err
		}
		// Collision; try a fresh candidate.
	}
	s.log.Warn("code generation exhausted",
		zap.Int("attempts", s.Attempts), zap.Int("code_length", s.CodeLength))
	return nil, model.ErrGenerationExhausted
}

// Resolve returns the record to redirect to, or the reason it cannot be
// served. Expiration takes precedence over the password check: an expired
// link is gone, not protected.
func (s *Service) Resolve(ctx context.Context, code, password string) (*model.LinkRecord, error) {
	if target, ok := s.cacheGet(ctx, code); ok {
		return &model.LinkRecord{ShortCode: code, TargetURL: target, IsActive: true}, nil
	}

	rec, err := s.Store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, model.ErrInactive
	}
	if rec.ExpiresAt != nil && !rec.ExpiresAt.After(s.now()) {
		return nil, model.ErrExpired
	}
	if rec.Protected() {
		if password == "" {
			return nil, model.ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
			return nil, model.ErrPasswordIncorrect
		}
	}
	s.cacheSet(ctx, rec)
	return rec, nil
}

// RecordClick hands a click to the accumulator. Fire-and-forget: a dropped
// or failed event never affects the redirect that triggered it.
func (s *Service) RecordClick(code, ip, userAgent, referer string) {
	if s.Clicks == nil {
		return
	}
	s.Clicks.Record(model.ClickEvent{
		ID:        uuid.NewString(),
		ShortCode: code,
		Timestamp: s.now(),
		IPAddress: ip,
		UserAgent: util.Truncate(userAgent, maxMetadataBytes),
		Referer:   util.Truncate(referer, maxMetadataBytes),
	})
}

// Info returns the record regardless of active/expired state; the password
// hash never serializes.
func (s *Service) Info(ctx context.Context, code string) (*model.LinkRecord, error) {
	return s.Store.Get(ctx, code)
}

// Analytics returns the eventually-consistent click count and recent raw
// events for a code.
func (s *Service) Analytics(ctx context.Context, code string) (*model.LinkStats, error) {
	rec, err := s.Store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	events, err := s.Store.RecentClickEvents(ctx, code, recentEventLimit)
	if err != nil {
		return nil, err
	}
	return &model.LinkStats{
		ShortCode:    code,
		ClickCount:   rec.ClickCount,
		RecentEvents: events,
	}, nil
}

// Delete soft-deletes the link and invalidates its cache entry.
func (s *Service) Delete(ctx context.Context, code, ownerID string) error {
	if err := s.Store.SoftDelete(ctx, code, ownerID); err != nil {
		return err
	}
	if s.Redis != nil {
		_ = s.Redis.Del(ctx, cacheKey(code)).Err()
	}
	return nil
}

// CreateMany processes each request independently and returns one result per
// input, in input order. A failed item never aborts or rolls back others.
func (s *Service) CreateMany(ctx context.Context, reqs []model.CreateRequest) []CreateResult {
	results := make([]CreateResult, len(reqs))
	for i, req := range reqs {
		rec, err := s.Create(ctx, req)
		results[i] = CreateResult{Record: rec, Err: err}
	}
	return results
}

// Sweep hard-deletes records past expiry plus grace and purges click events
// past the retention horizon. Idempotent; safe alongside live traffic.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	now := s.now()
	cleaned, err := s.Store.SweepExpired(ctx, now, s.SweepGrace)
	if err != nil {
		return 0, err
	}
	purged, err := s.Store.PurgeClickEvents(ctx, now.Add(-s.EventRetention))
	if err != nil {
		// Expired links are already gone; report the partial failure.
		s.log.Error("click event purge failed", zap.Error(err))
		return cleaned, nil
	}
	s.log.Info("sweep complete", zap.Int64("links_cleaned", cleaned), zap.Int64("events_purged", purged))
	return cleaned, nil
}

// ---- cache helpers ----

// Only unrestricted records (active, no expiry, no password) are cached.
// Anything whose serve decision depends on time or a secret always goes to
// the store.
func (s *Service) cacheSet(ctx context.Context, rec *model.LinkRecord) {
	if s.Redis == nil || !rec.IsActive || rec.ExpiresAt != nil || rec.Protected() {
		return
	}
	_ = s.Redis.Set(ctx, cacheKey(rec.ShortCode), rec.TargetURL, cacheTTL).Err()
}

func (s *Service) cacheGet(ctx context.Context, code string) (string, bool) {
	if s.Redis == nil {
		return "", false
	}
	val, err := s.Redis.Get(ctx, cacheKey(code)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func cacheKey(code string) string { return "target:" + code }

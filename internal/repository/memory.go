package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"shortlink/internal/model"
)

// MemStore is an in-memory store with the same semantics as Repo. It backs
// tests and local development without a database.
type MemStore struct {
	mu     sync.Mutex
	nextID int64
	links  map[string]*model.LinkRecord
	events []model.ClickEvent

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate an unavailable store.
	FailWith error
}

func NewMemStore() *MemStore {
	return &MemStore{links: make(map[string]*model.LinkRecord)}
}

func (m *MemStore) Create(ctx context.Context, rec *model.LinkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, exists := m.links[rec.ShortCode]; exists {
		return model.ErrAliasTaken
	}
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	m.links[rec.ShortCode] = &cp
	return nil
}

func (m *MemStore) Get(ctx context.Context, code string) (*model.LinkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	rec, ok := m.links[code]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) SoftDelete(ctx context.Context, code, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	rec, ok := m.links[code]
	if !ok {
		return model.ErrNotFound
	}
	if rec.OwnerID != "" && rec.OwnerID != ownerID {
		return model.ErrForbidden
	}
	rec.IsActive = false
	return nil
}

func (m *MemStore) IncrementClicks(ctx context.Context, code string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	rec, ok := m.links[code]
	if !ok {
		return model.ErrNotFound
	}
	rec.ClickCount += delta
	return nil
}

func (m *MemStore) SweepExpired(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	cutoff := now.Add(-grace)
	var n int64
	for code, rec := range m.links {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(cutoff) {
			delete(m.links, code)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertClickEvents(ctx context.Context, events []model.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *MemStore) RecentClickEvents(ctx context.Context, code string, limit int) ([]model.ClickEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	matched := make([]model.ClickEvent, 0, limit)
	for _, ev := range m.events {
		if ev.ShortCode == code {
			matched = append(matched, ev)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemStore) PurgeClickEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	kept := m.events[:0]
	var n int64
	for _, ev := range m.events {
		if ev.Timestamp.Before(olderThan) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	m.events = kept
	return n, nil
}

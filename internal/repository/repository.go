package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shortlink/internal/model"
)

const pgUniqueViolation = "23505"

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Migrate creates the schema if missing. The unique index on short_code is
// what makes Create an insert-if-absent primitive.
func (r *Repo) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		id BIGSERIAL PRIMARY KEY,
		short_code TEXT NOT NULL UNIQUE,
		target_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		password_hash TEXT NOT NULL DEFAULT '',
		click_count BIGINT NOT NULL DEFAULT 0,
		owner_id TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS click_events (
		id UUID PRIMARY KEY,
		short_code TEXT NOT NULL,
		clicked_at TIMESTAMPTZ NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		referer TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_click_events_code_time
		ON click_events (short_code, clicked_at DESC);
	`
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// classify maps driver errors onto the service error taxonomy. Anything not
// recognized as a business outcome is a transient infrastructure failure.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return model.ErrAliasTaken
	}
	return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
}

// Create atomically inserts the record; a short_code collision surfaces as
// ErrAliasTaken from the unique index, never from a prior existence check.
func (r *Repo) Create(ctx context.Context, rec *model.LinkRecord) error {
	q := `INSERT INTO links (short_code, target_url, expires_at, is_active, password_hash, owner_id)
	      VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err := r.DB.QueryRowContext(ctx, q,
		rec.ShortCode, rec.TargetURL, rec.ExpiresAt, rec.IsActive, rec.PasswordHash, rec.OwnerID).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, code string) (*model.LinkRecord, error) {
	q := `SELECT id, short_code, target_url, created_at, expires_at, is_active, password_hash, click_count, owner_id
	      FROM links WHERE short_code = $1`
	var rec model.LinkRecord
	var expires sql.NullTime
	err := r.DB.QueryRowContext(ctx, q, code).Scan(
		&rec.ID, &rec.ShortCode, &rec.TargetURL, &rec.CreatedAt, &expires,
		&rec.IsActive, &rec.PasswordHash, &rec.ClickCount, &rec.OwnerID)
	if err != nil {
		return nil, classify(err)
	}
	if expires.Valid {
		t := expires.Time
		rec.ExpiresAt = &t
	}
	return &rec, nil
}

// SoftDelete flips is_active off. Ownership is checked when the record has
// an owner; unowned records may be deleted by anyone holding the code.
func (r *Repo) SoftDelete(ctx context.Context, code, ownerID string) error {
	var owner string
	err := r.DB.QueryRowContext(ctx, `SELECT owner_id FROM links WHERE short_code = $1`, code).Scan(&owner)
	if err != nil {
		return classify(err)
	}
	if owner != "" && owner != ownerID {
		return model.ErrForbidden
	}
	if _, err := r.DB.ExecContext(ctx, `UPDATE links SET is_active = FALSE WHERE short_code = $1`, code); err != nil {
		return classify(err)
	}
	return nil
}

// IncrementClicks adds delta in the database, never read-modify-write, so
// concurrent flushes cannot lose updates.
func (r *Repo) IncrementClicks(ctx context.Context, code string, delta int64) error {
	q := `UPDATE links SET click_count = click_count + $2 WHERE short_code = $1`
	res, err := r.DB.ExecContext(ctx, q, code, delta)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SweepExpired hard-deletes records whose expiry plus grace is in the past.
// It only ever removes rows strictly past the grace window, so it is safe to
// run concurrently with live traffic and idempotent across runs.
func (r *Repo) SweepExpired(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	q := `DELETE FROM links WHERE expires_at IS NOT NULL AND expires_at < $1`
	res, err := r.DB.ExecContext(ctx, q, now.Add(-grace))
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// InsertClickEvents appends a batch of events in one transaction.
func (r *Repo) InsertClickEvents(ctx context.Context, events []model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO click_events (id, short_code, clicked_at, ip_address, user_agent, referer)
	                                     VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.ShortCode, ev.Timestamp, ev.IPAddress, ev.UserAgent, ev.Referer); err != nil {
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (r *Repo) RecentClickEvents(ctx context.Context, code string, limit int) ([]model.ClickEvent, error) {
	q := `SELECT id, short_code, clicked_at, ip_address, user_agent, referer
	      FROM click_events WHERE short_code = $1 ORDER BY clicked_at DESC LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, q, code, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	events := make([]model.ClickEvent, 0, limit)
	for rows.Next() {
		var ev model.ClickEvent
		if err := rows.Scan(&ev.ID, &ev.ShortCode, &ev.Timestamp, &ev.IPAddress, &ev.UserAgent, &ev.Referer); err != nil {
			return nil, classify(err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return events, nil
}

// PurgeClickEvents deletes raw events past the retention horizon. Aggregated
// click counts persist independently on the link rows.
func (r *Repo) PurgeClickEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM click_events WHERE clicked_at < $1`, olderThan)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

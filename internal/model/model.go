package model

import "time"

// LinkRecord is one shortened URL.
type LinkRecord struct {
	ID           int64      `db:"id" json:"-"`
	ShortCode    string     `db:"short_code" json:"short_code"`
	TargetURL    string     `db:"target_url" json:"target_url"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	PasswordHash string     `db:"password_hash" json:"-"`
	ClickCount   int64      `db:"click_count" json:"click_count"`
	OwnerID      string     `db:"owner_id" json:"owner_id,omitempty"`
}

// Protected reports whether resolving the link requires a password.
func (l *LinkRecord) Protected() bool { return l.PasswordHash != "" }

// ClickEvent is an append-only record of one redirect.
type ClickEvent struct {
	ID        string    `db:"id" json:"id"`
	ShortCode string    `db:"short_code" json:"short_code"`
	Timestamp time.Time `db:"clicked_at" json:"timestamp"`
	IPAddress string    `db:"ip_address" json:"-"`
	UserAgent string    `db:"user_agent" json:"user_agent,omitempty"`
	Referer   string    `db:"referer" json:"referer,omitempty"`
}

// CreateRequest is the input to create one shortened link.
type CreateRequest struct {
	URL         string     `json:"url"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Password    string     `json:"password,omitempty"`
	OwnerID     string     `json:"owner_id,omitempty"`
}

// LinkStats is the analytics view of a link: an eventually-consistent
// click count plus the most recent raw events.
type LinkStats struct {
	ShortCode    string       `json:"short_code"`
	ClickCount   int64        `json:"click_count"`
	RecentEvents []ClickEvent `json:"recent_events"`
}

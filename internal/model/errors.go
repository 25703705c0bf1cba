package model

import "errors"

// Validation errors: rejected before any storage interaction.
var (
	ErrInvalidURL   = errors.New("invalid url")
	ErrInvalidAlias = errors.New("invalid alias")
)

// Conflict and resource errors: terminal for the request.
var (
	ErrAliasTaken        = errors.New("alias already taken")
	ErrNotFound          = errors.New("link not found")
	ErrInactive          = errors.New("link inactive")
	ErrExpired           = errors.New("link expired")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("password incorrect")
	ErrForbidden         = errors.New("forbidden")
)

// ErrGenerationExhausted is returned when the generator fails to find a
// free code within its bounded attempt budget.
var ErrGenerationExhausted = errors.New("short code generation exhausted")

// ErrStoreUnavailable classifies transient storage failures. Callers may
// retry with backoff; the core never retries these internally.
var ErrStoreUnavailable = errors.New("store unavailable")

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAliasTaken reports whether err indicates a short-code uniqueness conflict.
func IsAliasTaken(err error) bool { return errors.Is(err, ErrAliasTaken) }

// IsUnavailable reports whether err is a retryable infrastructure failure
// rather than a terminal business outcome.
func IsUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

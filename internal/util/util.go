package util

import (
	"crypto/rand"
	"net/http"
	"net/url"
	"strings"
)

const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const (
	maxURLLength   = 2048
	minAliasLength = 1
	maxAliasLength = 32
)

// reservedAliases are path segments owned by the API surface; a custom
// alias matching one of these would shadow a route.
var reservedAliases = map[string]struct{}{
	"api":       {},
	"admin":     {},
	"shorten":   {},
	"bulk":      {},
	"info":      {},
	"analytics": {},
	"healthz":   {},
}

// GenerateCode returns a random base62 code of the given length.
func GenerateCode(length int) string {
	bytes := make([]byte, length)
	rand.Read(bytes)

	code := make([]byte, length)
	for i := 0; i < length; i++ {
		code[i] = base62Chars[bytes[i]%byte(len(base62Chars))]
	}
	return string(code)
}

// ValidateURL checks raw is an absolute http/https URL with a host.
func ValidateURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return false
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// ValidateAlias checks a candidate short code against the allowed alphabet,
// length bounds, and the reserved-word denylist. Generated codes pass the
// same check as user-supplied aliases.
func ValidateAlias(alias string) bool {
	if len(alias) < minAliasLength || len(alias) > maxAliasLength {
		return false
	}
	if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
		return false
	}
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		if c == '_' || c == '-' {
			continue
		}
		if !strings.ContainsRune(base62Chars, rune(c)) {
			return false
		}
	}
	return true
}

// ClientIP extracts the client address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ips := strings.Split(forwarded, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// Truncate caps client-supplied metadata; content is opaque and never
// trusted, only bounded.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

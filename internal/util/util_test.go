package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCode(t *testing.T) {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	for _, length := range []int{1, 6, 32} {
		code := GenerateCode(length)
		assert.Len(t, code, length)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(alphabet, c), "character %q outside alphabet", c)
		}
	}

	// Codes should vary between calls.
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[GenerateCode(6)] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://example.com",
		"http://example.com/path?q=1",
		"  https://example.com  ",
	}
	for _, u := range valid {
		assert.True(t, ValidateURL(u), "expected valid: %s", u)
	}

	invalid := []string{
		"",
		"example.com",
		"ftp://example.com",
		"javascript:alert(1)",
		"https://",
		"https://" + strings.Repeat("a", 2100),
	}
	for _, u := range invalid {
		assert.False(t, ValidateURL(u), "expected invalid: %s", u)
	}
}

func TestValidateAlias(t *testing.T) {
	assert.True(t, ValidateAlias("abc123"))
	assert.True(t, ValidateAlias("my-link_1"))
	assert.True(t, ValidateAlias("a"))
	assert.True(t, ValidateAlias(strings.Repeat("a", 32)))

	assert.False(t, ValidateAlias(""))
	assert.False(t, ValidateAlias(strings.Repeat("a", 33)))
	assert.False(t, ValidateAlias("has space"))
	assert.False(t, ValidateAlias("slash/inside"))
	assert.False(t, ValidateAlias("api"), "reserved word")
	assert.False(t, ValidateAlias("Admin"), "reserved word, case-insensitive")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abcde", Truncate("abcdefgh", 5))
}

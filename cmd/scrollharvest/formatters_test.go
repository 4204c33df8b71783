package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTruncate verifies rune-aware truncation and whitespace folding.
func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n  b\tc", 10))
	assert.Equal(t, "今天天气...", truncate("今天天气真不错呀", 7))
}

// TestCheckFormat verifies the accepted output formats.
func TestCheckFormat(t *testing.T) {
	for _, f := range []string{"table", "json", "compact"} {
		assert.NoError(t, checkFormat(f))
	}
	assert.Error(t, checkFormat("yaml"))
}

// TestFirstNonEmpty verifies flag values take precedence over config.
func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "flag", firstNonEmpty("flag", "config"))
	assert.Equal(t, "config", firstNonEmpty("", "config"))
	assert.Empty(t, firstNonEmpty("", ""))
}

// TestShortID verifies run IDs are cut to eight characters.
func TestShortID(t *testing.T) {
	assert.Equal(t, "0190f3a2", shortID("0190f3a2-7c1d-7000-8000-000000000000"))
	assert.Equal(t, "abc", shortID("abc"))
}

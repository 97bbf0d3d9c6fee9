package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnippet_CollapsesWhitespace(t *testing.T) {
	got := snippet("first  line\n\tsecond   line\n", 200)
	assert.Equal(t, "first line second line", got)
}

func TestSnippet_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippet(long, 50)
	assert.Equal(t, 51, len([]rune(got)), "50 runes plus ellipsis")
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestSnippet_EmptyContent(t *testing.T) {
	assert.Equal(t, "", snippet("", 200))
}

func TestSnippet_HandlesMultibyteRunes(t *testing.T) {
	// Truncation counts runes, not bytes.
	got := snippet(strings.Repeat("é", 100), 10)
	assert.Equal(t, strings.Repeat("é", 10)+"…", got)
}

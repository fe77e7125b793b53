package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortDocument(t *testing.T) {
	c := NewChunker(1000, 200)
	chunks := c.Split("A single short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A single short paragraph.", chunks[0])
}

func TestSplitEmpty(t *testing.T) {
	c := NewChunker(1000, 200)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestSplitRespectsWindowSize(t *testing.T) {
	c := NewChunker(100, 20)
	body := strings.Repeat("lorem ipsum dolor sit amet. ", 40)
	chunks := c.Split(body)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d exceeds the window", i)
	}
}

func TestSplitBreaksOnSentenceBoundary(t *testing.T) {
	c := NewChunker(100, 30)
	body := strings.Repeat("a", 80) + ". " + strings.Repeat("b", 80) + ". " + strings.Repeat("c", 40)
	chunks := c.Split(body)
	require.Greater(t, len(chunks), 1)
	// The first window holds a sentence end past the overlap region, so the
	// chunk breaks there instead of at the hard limit.
	assert.Equal(t, strings.Repeat("a", 80)+".", chunks[0])
}

func TestSplitHardBreakWithoutBoundary(t *testing.T) {
	c := NewChunker(50, 10)
	body := strings.Repeat("x", 130)
	chunks := c.Split(body)
	require.Greater(t, len(chunks), 1)
	assert.Len(t, chunks[0], 50)
}

func TestSplitOverlapCoversWholeDocument(t *testing.T) {
	c := NewChunker(120, 30)
	body := strings.Repeat("alpha beta gamma delta epsilon zeta. ", 30)
	chunks := c.Split(body)

	// Consecutive chunks overlap, and stitching them back together covers
	// every position of the normalized body.
	normalized := Normalize(body)
	pos := 0
	for _, chunk := range chunks {
		at := strings.Index(normalized[pos:], chunk[:20])
		require.GreaterOrEqual(t, at, 0)
		pos += at
	}
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(normalized, last))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\n\nb\t c "))
}

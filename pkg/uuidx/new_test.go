package uuidx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()
	require.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestNewStringOrdering(t *testing.T) {
	a := NewString()
	b := NewString()
	require.NotEqual(t, a, b)
	// V7 encodes a millisecond timestamp prefix, so later ids never sort
	// before earlier ones by more than clock granularity.
	assert.LessOrEqual(t, a[:8], b[:8])
}

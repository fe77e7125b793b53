package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBackend struct {
	completeCalls atomic.Int32
	embedCalls    atomic.Int32
	complete      func(n int) (Completion, error)
	embed         func(n int) ([]float32, error)
}

func (s *scriptedBackend) Complete(_ context.Context, _ CompletionRequest) (Completion, error) {
	return s.complete(int(s.completeCalls.Add(1)))
}

func (s *scriptedBackend) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.embed(int(s.embedCalls.Add(1)))
}

func vectorOf(dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}

func fastAdapter(t *testing.T, b Backend) *Adapter {
	t.Helper()
	a, err := NewAdapter(b, Dimension(8), MaxAttempts(3))
	require.NoError(t, err)
	a.retryBase = time.Millisecond
	return a
}

func TestCompleteRetriesUnavailable(t *testing.T) {
	backend := &scriptedBackend{
		complete: func(n int) (Completion, error) {
			if n < 3 {
				return Completion{}, unavailable("complete", assert.AnError)
			}
			return Completion{Text: "ok", Usage: Usage{PromptTokens: 10, CompletionTokens: 2}}, nil
		},
	}
	a := fastAdapter(t, backend)

	var usages []Usage
	a.usageObserver = func(_ string, u Usage) { usages = append(usages, u) }

	got, err := a.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, int32(3), backend.completeCalls.Load())
	require.Len(t, usages, 1)
	assert.Equal(t, 10, usages[0].PromptTokens)
}

func TestCompleteDoesNotRetryRejected(t *testing.T) {
	backend := &scriptedBackend{
		complete: func(int) (Completion, error) {
			return Completion{}, &Error{Kind: KindRejected, Op: "complete"}
		},
	}
	a := fastAdapter(t, backend)

	_, err := a.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, int32(1), backend.completeCalls.Load())
}

func TestCompleteExhaustsRetryBudget(t *testing.T) {
	backend := &scriptedBackend{
		complete: func(int) (Completion, error) {
			return Completion{}, unavailable("complete", assert.AnError)
		},
	}
	a := fastAdapter(t, backend)

	_, err := a.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(3), backend.completeCalls.Load(), "max attempts bounds the calls")
}

func TestEmbedDoesNotRetryThrottled(t *testing.T) {
	backend := &scriptedBackend{
		embed: func(int) ([]float32, error) {
			return nil, &Error{Kind: KindThrottled, Op: "embed"}
		},
	}
	a := fastAdapter(t, backend)

	_, err := a.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, IsThrottled(err))
	assert.Equal(t, int32(1), backend.embedCalls.Load())
}

func TestEmbedEnforcesDimension(t *testing.T) {
	backend := &scriptedBackend{
		embed: func(int) ([]float32, error) { return vectorOf(12), nil },
	}
	a := fastAdapter(t, backend)

	_, err := a.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
}

func TestEmbedHappyPath(t *testing.T) {
	backend := &scriptedBackend{
		embed: func(int) ([]float32, error) { return vectorOf(8), nil },
	}
	a := fastAdapter(t, backend)

	vec, err := a.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestAcquireHonorsContext(t *testing.T) {
	backend := &scriptedBackend{
		complete: func(int) (Completion, error) { return Completion{Text: "ok"}, nil },
	}
	a, err := NewAdapter(backend, Dimension(8), MaxInflight(1))
	require.NoError(t, err)

	// Occupy the only slot.
	a.slots <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Complete(ctx, CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestKindHelpers(t *testing.T) {
	assert.Equal(t, ErrKind(0), KindOf(assert.AnError))
	assert.True(t, IsInvalid(invalid("embed", assert.AnError)))
	assert.Equal(t, "unavailable", KindUnavailable.String())
}

package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/events"
)

type fakeRemote struct {
	mu    sync.Mutex
	got   []*events.Envelope
	fail  error
	calls int
}

func (f *fakeRemote) PutEvents(_ context.Context, evs []*events.Envelope) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	results := make([]error, len(evs))
	for i, env := range evs {
		if f.fail != nil {
			results[i] = f.fail
			continue
		}
		f.got = append(f.got, env)
	}
	return results
}

func (f *fakeRemote) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type fakeFallback struct {
	mu   sync.Mutex
	got  map[string][][]byte
	fail error
}

func (f *fakeFallback) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.got == nil {
		f.got = make(map[string][][]byte)
	}
	f.got[topic] = append(f.got[topic], payload)
	return nil
}

func (f *fakeFallback) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got[topic])
}

func TestForwardToRemote(t *testing.T) {
	remote := &fakeRemote{}
	b, err := New(WithRemote(remote), ShutdownGrace(time.Second))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), logEvent("c-1", "ship me")))

	require.Eventually(t, func() bool { return remote.received() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
}

func TestRemoteFailureFallsBackToFallback(t *testing.T) {
	remote := &fakeRemote{fail: fmt.Errorf("eventbridge down")}
	fallback := &fakeFallback{}
	b, err := New(WithRemote(remote), WithFallback(fallback), ShutdownGrace(5*time.Second))
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), logEvent("c-1", "fall back")))

	require.Eventually(t, func() bool {
		return fallback.count(string(events.LogLine)) == 1
	}, 4*time.Second, 20*time.Millisecond)

	payload := fallback.got[string(events.LogLine)][0]
	env, err := events.FromJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, "c-1", env.CorrelationID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
}

func TestBothTransportsFailingDoesNotAffectLocal(t *testing.T) {
	remote := &fakeRemote{fail: fmt.Errorf("remote down")}
	fallback := &fakeFallback{fail: fmt.Errorf("fallback down")}
	b, err := New(WithRemote(remote), WithFallback(fallback), ShutdownGrace(5*time.Second))
	require.NoError(t, err)

	rec := newRecorder()
	_, err = b.Subscribe(events.LogLine, "rec", rec.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), logEvent("c-1", "local still works")))
	assert.Len(t, rec.wait(t, 1), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
}

func TestNoTransportsConfigured(t *testing.T) {
	b, err := New(ShutdownGrace(time.Second))
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), logEvent("c-1", "local only")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Shutdown(ctx))
}

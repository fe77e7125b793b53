package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fogfish/opts"
	"golang.org/x/time/rate"
)

const (
	defaultDimension       = 768
	defaultMaxAttempts     = 5
	defaultMaxInflight     = 16
	defaultCompleteTimeout = 30 * time.Second
	defaultEmbedTimeout    = 10 * time.Second
	retryBaseInterval      = 200 * time.Millisecond
	retryMultiplier        = 2
	retryJitter            = 0.25
)

// Adapter wraps a Backend with retry, deadline, pooling, and accounting
// policy. It is stateless per call; one instance is shared by every worker.
type Adapter struct {
	backend         Backend
	dimension       int
	maxAttempts     int
	maxInflight     int
	completeTimeout time.Duration
	embedTimeout    time.Duration
	usageObserver   func(op string, u Usage)
	retryBase       time.Duration

	slots   chan struct{}
	limiter *rate.Limiter
}

// Adapter construction options.
var (
	// Dimension sets the embedding dimension the adapter enforces.
	Dimension = opts.ForName[Adapter, int]("dimension")
	// MaxAttempts sets the retry budget for retryable failures.
	MaxAttempts = opts.ForName[Adapter, int]("maxAttempts")
	// MaxInflight bounds concurrent calls to the backend.
	MaxInflight = opts.ForName[Adapter, int]("maxInflight")
	// CompleteTimeout sets the per-call deadline for Complete.
	CompleteTimeout = opts.ForName[Adapter, time.Duration]("completeTimeout")
	// EmbedTimeout sets the per-call deadline for Embed.
	EmbedTimeout = opts.ForName[Adapter, time.Duration]("embedTimeout")
)

// UsageObserver registers a callback invoked with the token usage of every
// successful call. Used for metrics; failures observe nothing.
func UsageObserver(fn func(op string, u Usage)) opts.Option[Adapter] {
	return opts.Type[Adapter](func(a *Adapter) error {
		a.usageObserver = fn
		return nil
	})
}

// NewAdapter builds an adapter over the given backend.
func NewAdapter(backend Backend, options ...opts.Option[Adapter]) (*Adapter, error) {
	if backend == nil {
		return nil, fmt.Errorf("a backend is required")
	}
	a := &Adapter{
		backend:         backend,
		dimension:       defaultDimension,
		maxAttempts:     defaultMaxAttempts,
		maxInflight:     defaultMaxInflight,
		completeTimeout: defaultCompleteTimeout,
		embedTimeout:    defaultEmbedTimeout,
		retryBase:       retryBaseInterval,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	if a.dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", a.dimension)
	}
	if a.maxInflight <= 0 {
		return nil, fmt.Errorf("inflight pool must be positive, got %d", a.maxInflight)
	}
	a.slots = make(chan struct{}, a.maxInflight)
	// Smooths bursts ahead of the pool so the endpoint's own rate limiting
	// trips less often.
	a.limiter = rate.NewLimiter(rate.Limit(a.maxInflight*4), a.maxInflight)
	return a, nil
}

// Dim returns the embedding dimension the adapter enforces.
func (a *Adapter) Dim() int { return a.dimension }

// Complete runs a chat completion with retry on Unavailable and Throttled.
// Rejected and Invalid surface immediately.
func (a *Adapter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	release, err := a.acquire(ctx, "complete")
	if err != nil {
		return Completion{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, a.completeTimeout)
	defer cancel()

	var out Completion
	err = a.retry(ctx, true, func() error {
		var cerr error
		out, cerr = a.backend.Complete(ctx, req)
		return cerr
	})
	if err != nil {
		return Completion{}, err
	}
	if a.usageObserver != nil {
		a.usageObserver("complete", out.Usage)
	}
	return out, nil
}

// Embed returns an embedding of the configured dimension. Only transport
// errors are retried; a wrong-dimension vector fails with KindInvalid.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	release, err := a.acquire(ctx, "embed")
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, a.embedTimeout)
	defer cancel()

	var vec []float32
	err = a.retry(ctx, false, func() error {
		var eerr error
		vec, eerr = a.backend.Embed(ctx, text)
		return eerr
	})
	if err != nil {
		return nil, err
	}
	if len(vec) != a.dimension {
		return nil, invalid("embed", fmt.Errorf("expected a %d-dimension vector, got %d", a.dimension, len(vec)))
	}
	if a.usageObserver != nil {
		a.usageObserver("embed", Usage{PromptTokens: approxTokens(text)})
	}
	return vec, nil
}

func (a *Adapter) acquire(ctx context.Context, op string) (func(), error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, unavailable(op, err)
	}
	select {
	case a.slots <- struct{}{}:
		return func() { <-a.slots }, nil
	case <-ctx.Done():
		return nil, unavailable(op, ctx.Err())
	}
}

// retry runs call with exponential backoff. Unavailable is always retried;
// Throttled only when retryThrottle is set; everything else is permanent.
func (a *Adapter) retry(ctx context.Context, retryThrottle bool, call func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.retryBase
	exp.Multiplier = retryMultiplier
	exp.RandomizationFactor = retryJitter
	exp.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(a.maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := call()
		if err == nil {
			return nil
		}
		switch KindOf(err) {
		case KindUnavailable:
			return err
		case KindThrottled:
			if retryThrottle {
				return err
			}
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(err)
		}
	}, bo)
}

// approxTokens is the usual 4-characters-per-token estimate; embedding
// endpoints do not report usage.
func approxTokens(text string) int {
	return (len(text) + 3) / 4
}

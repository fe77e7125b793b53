// Package providertest holds the scripted model fake shared by tests across
// the repository.
package providertest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/nfrguard/nfrguard/provider"
)

// Fake is a scripted provider. Completions are served from a queue (or a
// reply function); embeddings are deterministic hashes of the input text so
// that equal texts always embed equally. The zero value is not usable; call
// New.
type Fake struct {
	mu          sync.Mutex
	dimension   int
	completions []reply
	replyFn     func(req provider.CompletionRequest) (string, error)
	embedErr    error
	completeErr error

	CompleteCalls []provider.CompletionRequest
	EmbedCalls    []string
}

type reply struct {
	text string
	err  error
}

// New creates a fake producing embeddings of the given dimension.
func New(dimension int) *Fake {
	return &Fake{dimension: dimension}
}

// Queue appends a completion to be served in order.
func (f *Fake) Queue(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, reply{text: text})
	return f
}

// QueueErr appends a completion failure to be served in order.
func (f *Fake) QueueErr(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, reply{err: err})
	return f
}

// Reply installs a function answering every completion; the queue is
// consulted first.
func (f *Fake) Reply(fn func(req provider.CompletionRequest) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyFn = fn
	return f
}

// FailCompletions makes every completion fail with err until reset with nil.
func (f *Fake) FailCompletions(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeErr = err
	return f
}

// FailEmbeddings makes every embedding fail with err until reset with nil.
func (f *Fake) FailEmbeddings(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedErr = err
	return f
}

// Unavailable is a ready-made transport failure.
func Unavailable() error {
	return &provider.Error{Kind: provider.KindUnavailable, Op: "complete", Err: fmt.Errorf("connection refused")}
}

func (f *Fake) Complete(_ context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CompleteCalls = append(f.CompleteCalls, req)

	if f.completeErr != nil {
		return provider.Completion{}, f.completeErr
	}
	if len(f.completions) > 0 {
		next := f.completions[0]
		f.completions = f.completions[1:]
		if next.err != nil {
			return provider.Completion{}, next.err
		}
		return provider.Completion{Text: next.text, Usage: provider.Usage{PromptTokens: len(req.Prompt) / 4}}, nil
	}
	if f.replyFn != nil {
		text, err := f.replyFn(req)
		if err != nil {
			return provider.Completion{}, err
		}
		return provider.Completion{Text: text}, nil
	}
	return provider.Completion{}, fmt.Errorf("no scripted completion for prompt %q", req.Prompt)
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EmbedCalls = append(f.EmbedCalls, text)

	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return Embedding(text, f.dimension), nil
}

// Embedding derives a deterministic unit vector from text. Texts sharing
// words land near each other, which is enough signal for ranking tests.
func Embedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)) / float32(math.MaxInt32)
	}
	// Mix in per-word components so lexically similar texts score closer.
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' {
			if i > start {
				wh := fnv.New64a()
				_, _ = wh.Write([]byte(text[start:i]))
				vec[int(wh.Sum64()%uint64(dim))] += 4
			}
			start = i + 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

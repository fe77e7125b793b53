package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fogfish/opts"
	"github.com/nfrguard/nfrguard/pkg/slogx"
	"github.com/nfrguard/nfrguard/provider"
)

const defaultExactCeiling = 100_000

// Metadata describes a regulatory document for filtering.
type Metadata struct {
	Regulator  string   `json:"regulator"`
	DocType    string   `json:"doc_type"`
	Sections   []string `json:"sections,omitempty"`
	AgentFocus []string `json:"agent_focus,omitempty"`
}

// Document is an ingestion source: an identified body of regulatory text
// with its metadata.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Metadata Metadata `json:"metadata"`
	Body     string   `json:"body"`
}

// Chunk is the unit of retrieval. Chunks are owned by the index; callers
// receive copies and must treat them as read-only.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Embedding  []float32
	Metadata   Metadata
}

// Filter restricts a search by metadata set membership. Empty fields match
// anything.
type Filter struct {
	Regulators []string
	DocTypes   []string
	AgentFocus []string
}

// Match reports whether the metadata passes the filter.
func (f Filter) Match(m Metadata) bool {
	if len(f.Regulators) > 0 && !slices.Contains(f.Regulators, m.Regulator) {
		return false
	}
	if len(f.DocTypes) > 0 && !slices.Contains(f.DocTypes, m.DocType) {
		return false
	}
	if len(f.AgentFocus) > 0 {
		any := false
		for _, want := range f.AgentFocus {
			if slices.Contains(m.AgentFocus, want) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

// Result is a scored chunk. Lexical marks a fallback match so callers can
// downgrade confidence.
type Result struct {
	Chunk   Chunk
	Score   float64
	Lexical bool
}

// ChunkFailure records a single chunk that could not be ingested.
type ChunkFailure struct {
	DocumentID string
	Ordinal    int
	Err        error
}

// IngestReport summarizes an Ingest call. A partially failed ingestion
// leaves the index usable with the successful chunks.
type IngestReport struct {
	Documents int
	Chunks    int
	Failures  []ChunkFailure
}

// ErrSwapInProgress is returned when a write arrives while another
// ingestion's swap is still being applied.
var ErrSwapInProgress = fmt.Errorf("retrieval: ingestion swap in progress")

// snapshot is an immutable corpus state. Chunks stay sorted by
// (document_id, ordinal) so equal-score ties resolve deterministically.
type snapshot struct {
	chunks  []Chunk
	docFreq map[string]int // lexical token -> documents containing it
	docs    int
}

// Index stores embedded chunks and answers similarity queries.
type Index struct {
	embedder     provider.Provider
	chunker      Chunker
	exactCeiling int

	swapMu sync.Mutex
	snap   atomic.Pointer[snapshot]
}

// Index construction options.
var (
	// ExactCeiling records a corpus-size ceiling on the index. Search does
	// not read it: scoring is exact brute-force at every corpus size, and
	// there is no approximate search path.
	ExactCeiling = opts.ForName[Index, int]("exactCeiling")
	// WithChunker overrides the chunking parameters.
	WithChunker = opts.ForName[Index, Chunker]("chunker")
)

// NewIndex creates an empty index embedding through the given provider.
func NewIndex(embedder provider.Provider, options ...opts.Option[Index]) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("an embedding provider is required")
	}
	idx := &Index{
		embedder:     embedder,
		chunker:      NewChunker(defaultChunkSize, defaultChunkOverlap),
		exactCeiling: defaultExactCeiling,
	}
	if err := opts.Apply(idx, options); err != nil {
		return nil, err
	}
	idx.snap.Store(&snapshot{docFreq: map[string]int{}})
	return idx, nil
}

// Len returns the number of chunks in the current snapshot.
func (x *Index) Len() int {
	return len(x.snap.Load().chunks)
}

// Ingest chunks, embeds, and stores the given documents. Re-ingesting a
// previously seen document id replaces all its chunks in one atomic swap;
// readers see the old set until the swap lands. Per-chunk failures are
// collected in the report and do not abort the rest.
func (x *Index) Ingest(ctx context.Context, docs ...Document) (IngestReport, error) {
	report := IngestReport{}
	var staged []Chunk
	replaced := make(map[string]bool, len(docs))

	for _, doc := range docs {
		if doc.ID == "" {
			return report, fmt.Errorf("document %q has no id", doc.Title)
		}
		replaced[doc.ID] = true
		report.Documents++

		for ordinal, text := range x.chunker.Split(doc.Body) {
			vec, err := x.embedder.Embed(ctx, text)
			if err == nil && zeroVector(vec) {
				err = fmt.Errorf("embedding has zero norm")
			}
			if err != nil {
				report.Failures = append(report.Failures, ChunkFailure{DocumentID: doc.ID, Ordinal: ordinal, Err: err})
				slog.Warn("skipping chunk", slog.String("document_id", doc.ID), slog.Int("ordinal", ordinal), slogx.Error(err))
				continue
			}
			staged = append(staged, Chunk{
				ChunkID:    fmt.Sprintf("%s#%d", doc.ID, ordinal),
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Text:       text,
				Embedding:  normalize(vec),
				Metadata:   doc.Metadata,
			})
			report.Chunks++
		}
	}

	if !x.swapMu.TryLock() {
		return report, ErrSwapInProgress
	}
	defer x.swapMu.Unlock()

	old := x.snap.Load()
	next := make([]Chunk, 0, len(old.chunks)+len(staged))
	for _, c := range old.chunks {
		if !replaced[c.DocumentID] {
			next = append(next, c)
		}
	}
	next = append(next, staged...)
	sort.Slice(next, func(i, j int) bool {
		if next[i].DocumentID != next[j].DocumentID {
			return next[i].DocumentID < next[j].DocumentID
		}
		return next[i].Ordinal < next[j].Ordinal
	})

	x.snap.Store(buildSnapshot(next))
	return report, nil
}

// Search returns the top-k chunks for the query by cosine similarity over
// the filtered subset, ties broken by ascending (document_id, ordinal).
// When embeddings are unavailable after retries, it degrades to lexical
// scoring and flags the results.
func (x *Index) Search(ctx context.Context, query string, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	snap := x.snap.Load()
	if len(snap.chunks) == 0 {
		return nil, nil
	}

	qvec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		if provider.IsUnavailable(err) {
			slog.Warn("embeddings unavailable, using lexical fallback", slogx.Error(err))
			return snap.lexicalSearch(query, k, filter), nil
		}
		return nil, err
	}
	qvec = normalize(qvec)

	scored := make([]Result, 0, k)
	for _, c := range snap.chunks {
		if !filter.Match(c.Metadata) {
			continue
		}
		scored = append(scored, Result{Chunk: c, Score: dot(qvec, c.Embedding)})
	}
	rank(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// rank orders by descending score, then ascending (document_id, ordinal).
func rank(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.DocumentID != results[j].Chunk.DocumentID {
			return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func zeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

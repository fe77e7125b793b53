package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrguard/nfrguard/provider"
	"github.com/nfrguard/nfrguard/provider/providertest"
)

const testDim = 32

func austracDoc(id, body string) Document {
	return Document{
		ID:    id,
		Title: id,
		Metadata: Metadata{
			Regulator:  "AUSTRAC",
			DocType:    "guidance",
			AgentFocus: []string{"risk", "compliance"},
		},
		Body: body,
	}
}

func apraDoc(id, body string) Document {
	return Document{
		ID:    id,
		Title: id,
		Metadata: Metadata{
			Regulator:  "APRA",
			DocType:    "standard",
			AgentFocus: []string{"resilience"},
		},
		Body: body,
	}
}

func newTestIndex(t *testing.T) (*Index, *providertest.Fake) {
	t.Helper()
	fake := providertest.New(testDim)
	idx, err := NewIndex(fake)
	require.NoError(t, err)
	return idx, fake
}

func TestIngestAndSearch(t *testing.T) {
	idx, _ := newTestIndex(t)

	_, err := idx.Ingest(context.Background(),
		austracDoc("austrac-smr", "Suspicious matter reports must be submitted when a transaction raises grounds for suspicion."),
		apraDoc("apra-cps230", "Operational risk management requires credible recovery plans for critical operations."),
	)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	results, err := idx.Search(context.Background(), "suspicious transaction report", 3, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, results[0].Lexical)
	assert.Equal(t, "austrac-smr", results[0].Chunk.DocumentID)
}

func TestSearchAppliesFilter(t *testing.T) {
	idx, _ := newTestIndex(t)
	_, err := idx.Ingest(context.Background(),
		austracDoc("austrac-smr", "Suspicious matter reporting obligations."),
		apraDoc("apra-cps230", "Suspicious activity also appears in operational risk guidance."),
	)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "suspicious", 10, Filter{Regulators: []string{"APRA"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "apra-cps230", results[0].Chunk.DocumentID)

	results, err = idx.Search(context.Background(), "suspicious", 10, Filter{AgentFocus: []string{"risk"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "austrac-smr", results[0].Chunk.DocumentID)
}

func TestSearchEmptyCorpus(t *testing.T) {
	idx, _ := newTestIndex(t)
	results, err := idx.Search(context.Background(), "anything", 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchReturnsAtMostK(t *testing.T) {
	idx, _ := newTestIndex(t)
	var docs []Document
	for i := 0; i < 8; i++ {
		docs = append(docs, austracDoc(fmt.Sprintf("doc-%d", i), fmt.Sprintf("Guidance fragment number %d about reporting.", i)))
	}
	_, err := idx.Ingest(context.Background(), docs...)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "reporting guidance", 3, Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// Fewer matches than k returns all of them.
	results, err = idx.Search(context.Background(), "reporting guidance", 100, Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 8)
}

func TestReingestReplacesAtomically(t *testing.T) {
	idx, _ := newTestIndex(t)

	_, err := idx.Ingest(context.Background(), austracDoc("doc-1", "Original body with several sentences. More text follows here."))
	require.NoError(t, err)
	before := idx.Len()

	_, err = idx.Ingest(context.Background(), austracDoc("doc-1", "Replacement body."))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.LessOrEqual(t, idx.Len(), before)

	results, err := idx.Search(context.Background(), "replacement body", 5, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Replacement body.", results[0].Chunk.Text)
}

func TestIngestCollectsChunkFailures(t *testing.T) {
	fake := providertest.New(testDim)
	idx, err := NewIndex(fake)
	require.NoError(t, err)

	fake.FailEmbeddings(&provider.Error{Kind: provider.KindThrottled, Op: "embed"})
	report, err := idx.Ingest(context.Background(), austracDoc("doc-1", "Body text."))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Chunks)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "doc-1", report.Failures[0].DocumentID)
	assert.Equal(t, 0, idx.Len(), "failed chunks are not stored")
}

func TestLexicalFallback(t *testing.T) {
	idx, fake := newTestIndex(t)
	_, err := idx.Ingest(context.Background(),
		austracDoc("austrac-smr", "Threshold transaction reports cover cash transactions of ten thousand dollars or more."),
		apraDoc("apra-cps230", "Business continuity planning for critical operations."),
	)
	require.NoError(t, err)

	fake.FailEmbeddings(&provider.Error{Kind: provider.KindUnavailable, Op: "embed"})

	results, err := idx.Search(context.Background(), "threshold transaction cash", 5, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, results[0].Lexical, "fallback results are flagged")
	assert.Equal(t, "austrac-smr", results[0].Chunk.DocumentID)
}

func TestLexicalFallbackAllStopwords(t *testing.T) {
	idx, fake := newTestIndex(t)
	_, err := idx.Ingest(context.Background(), austracDoc("doc-1", "Some indexed content."))
	require.NoError(t, err)

	fake.FailEmbeddings(&provider.Error{Kind: provider.KindUnavailable, Op: "embed"})
	results, err := idx.Search(context.Background(), "the and of", 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSurfacesNonTransportErrors(t *testing.T) {
	idx, fake := newTestIndex(t)
	_, err := idx.Ingest(context.Background(), austracDoc("doc-1", "Content."))
	require.NoError(t, err)

	fake.FailEmbeddings(&provider.Error{Kind: provider.KindInvalid, Op: "embed"})
	_, err = idx.Search(context.Background(), "content", 5, Filter{})
	require.Error(t, err)
	assert.True(t, provider.IsInvalid(err))
}

// Search is a pure function of the snapshot and the query: any query against
// any corpus returns a deterministically ordered, correctly bounded list.
func TestSearchDeterminismProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	idx, _ := newTestIndex(t)
	var docs []Document
	for i := 0; i < 12; i++ {
		docs = append(docs, austracDoc(fmt.Sprintf("doc-%02d", i),
			fmt.Sprintf("Regulatory clause %d covering transaction monitoring and reporting obligations.", i)))
	}
	_, err := idx.Ingest(context.Background(), docs...)
	require.NoError(t, err)

	properties.Property("ranked, bounded, repeatable", prop.ForAll(
		func(query string, k int) bool {
			first, err := idx.Search(context.Background(), query, k, Filter{})
			if err != nil {
				return false
			}
			second, err := idx.Search(context.Background(), query, k, Filter{})
			if err != nil {
				return false
			}
			if len(first) > k || len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i].Chunk.ChunkID != second[i].Chunk.ChunkID {
					return false
				}
				if i > 0 && first[i].Score > first[i-1].Score {
					return false
				}
			}
			return true
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestFilterMatch(t *testing.T) {
	m := Metadata{Regulator: "AUSTRAC", DocType: "guidance", AgentFocus: []string{"risk"}}
	assert.True(t, Filter{}.Match(m))
	assert.True(t, Filter{Regulators: []string{"AUSTRAC", "APRA"}}.Match(m))
	assert.False(t, Filter{Regulators: []string{"APRA"}}.Match(m))
	assert.False(t, Filter{DocTypes: []string{"standard"}}.Match(m))
	assert.False(t, Filter{AgentFocus: []string{"compliance"}}.Match(m))
}

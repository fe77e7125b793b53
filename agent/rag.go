package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nfrguard/nfrguard/pkg/slogx"
	"github.com/nfrguard/nfrguard/retrieval"
)

// retrieve pulls context chunks, treating a retrieval failure as an empty
// result. Handlers keep working without context.
func retrieve(ctx context.Context, index *retrieval.Index, handler, query string, k int, filter retrieval.Filter) []retrieval.Result {
	if index == nil {
		return nil
	}
	results, err := index.Search(ctx, query, k, filter)
	if err != nil {
		slog.Warn("retrieval failed, continuing without context",
			slogx.Handler(handler), slogx.Error(err))
		return nil
	}
	return results
}

// citations lists the distinct source documents behind the results, in rank
// order.
func citations(results []retrieval.Result) []string {
	var out []string
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, dup := seen[r.Chunk.DocumentID]; dup {
			continue
		}
		seen[r.Chunk.DocumentID] = struct{}{}
		out = append(out, r.Chunk.DocumentID)
	}
	return out
}

// contextBlock renders retrieved chunks for a prompt. Lexical fallback
// matches are labelled so the model weighs them accordingly.
func contextBlock(results []retrieval.Result) string {
	if len(results) == 0 {
		return "(no regulatory context available)"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(r.Chunk.DocumentID)
		if r.Lexical {
			b.WriteString(", keyword match")
		}
		b.WriteString("] ")
		b.WriteString(r.Chunk.Text)
	}
	return b.String()
}

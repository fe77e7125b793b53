package retrieval

import "strings"

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Chunker splits normalized document text into overlapping windows, breaking
// on the last sentence boundary inside the window when one exists past the
// overlap region.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker with the given window size and overlap.
// A non-positive size falls back to the default size; a negative overlap, or
// one not smaller than the size, falls back to the default overlap. An
// overlap of zero is kept.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunk texts for a document body, in document order.
func (c Chunker) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.Size
		if end >= len(text) {
			end = len(text)
		} else {
			// Prefer the last sentence boundary inside the window, as long
			// as it lands past the overlap region.
			if cut := strings.LastIndex(text[start:end], ". "); cut >= 0 && start+cut+1 > start+c.Size-c.Overlap {
				end = start + cut + 1
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(text) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// Normalize collapses whitespace runs so chunk boundaries do not depend on
// the source document's formatting.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

package retrieval

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// ReadCorpus decodes a corpus seed: one JSON document per line, in the shape
// produced by the regulatory document downloader (id, title, metadata with
// regulator/doc_type/sections/agent_focus, body). Blank lines and #-comments
// are skipped.
func ReadCorpus(r io.Reader) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("corpus line %d: document has no id", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return docs, nil
}

package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// stopwords excluded from lexical scoring. Small on purpose; IDF already
// downweights common corpus terms.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "with": {},
}

func buildSnapshot(chunks []Chunk) *snapshot {
	df := make(map[string]int)
	seenDocs := make(map[string]map[string]struct{})
	for _, c := range chunks {
		perDoc, ok := seenDocs[c.DocumentID]
		if !ok {
			perDoc = make(map[string]struct{})
			seenDocs[c.DocumentID] = perDoc
		}
		for _, tok := range tokenize(c.Text) {
			if _, counted := perDoc[tok]; !counted {
				perDoc[tok] = struct{}{}
				df[tok]++
			}
		}
	}
	return &snapshot{chunks: chunks, docFreq: df, docs: len(seenDocs)}
}

// lexicalSearch scores by token overlap weighted with inverse document
// frequency. An all-stopword query yields no results.
func (s *snapshot) lexicalSearch(query string, k int, filter Filter) []Result {
	qtokens := tokenize(query)
	if len(qtokens) == 0 {
		return nil
	}
	qset := make(map[string]struct{}, len(qtokens))
	for _, t := range qtokens {
		qset[t] = struct{}{}
	}

	scored := make([]Result, 0, k)
	for _, c := range s.chunks {
		if !filter.Match(c.Metadata) {
			continue
		}
		score := s.overlapScore(qset, c.Text)
		if score <= 0 {
			continue
		}
		scored = append(scored, Result{Chunk: c, Score: score, Lexical: true})
	}
	rank(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func (s *snapshot) overlapScore(query map[string]struct{}, text string) float64 {
	tf := make(map[string]int)
	for _, tok := range tokenize(text) {
		if _, want := query[tok]; want {
			tf[tok]++
		}
	}
	var score float64
	for tok, count := range tf {
		idf := math.Log(1 + float64(s.docs)/float64(1+s.docFreq[tok]))
		score += idf * (1 + math.Log(float64(count)))
	}
	return score
}

// tokenize lowercases and splits on non-alphanumeric runs, dropping
// stopwords and single characters.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 1 {
			tok := b.String()
			if _, stop := stopwords[tok]; !stop {
				tokens = append(tokens, tok)
			}
		}
		b.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

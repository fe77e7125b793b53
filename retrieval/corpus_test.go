package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCorpus(t *testing.T) {
	seed := `
# AUSTRAC guidance extracts
{"id":"austrac-smr","title":"Suspicious matter reports","metadata":{"regulator":"AUSTRAC","doc_type":"guidance","agent_focus":["risk","compliance"]},"body":"Report suspicious matters."}

{"id":"apra-cps230","title":"CPS 230","metadata":{"regulator":"APRA","doc_type":"standard","agent_focus":["resilience"]},"body":"Manage operational risk."}
`
	docs, err := ReadCorpus(strings.NewReader(seed))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "austrac-smr", docs[0].ID)
	assert.Equal(t, "APRA", docs[1].Metadata.Regulator)
}

func TestReadCorpusRejectsMissingID(t *testing.T) {
	_, err := ReadCorpus(strings.NewReader(`{"title":"no id"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestReadCorpusRejectsBadJSON(t *testing.T) {
	_, err := ReadCorpus(strings.NewReader(`{not json`))
	require.Error(t, err)
}

package nfrguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 768, cfg.EmbeddingDimension)
	assert.Equal(t, 1000, cfg.ChunkSizeChars)
	assert.Equal(t, 200, cfg.ChunkOverlapChars)
	assert.Equal(t, 1024, cfg.SubscriberQueueDepth)
	assert.Equal(t, 2*time.Second, cfg.PublishBackpressureDeadline)
	assert.Equal(t, 30*time.Second, cfg.ModelCompleteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ModelEmbedTimeout)
	assert.Equal(t, 5, cfg.ModelRetryAttempts)
	assert.Equal(t, 0.8, cfg.RiskScoreFlagThreshold)
	assert.Equal(t, 0.95, cfg.ComplianceBlockThreshold)
	assert.Equal(t, 0.90, cfg.ComplianceHoldThreshold)
	assert.Equal(t, 5*time.Second, cfg.KnowledgeQuietPeriod)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, 100_000, cfg.RetrievalExactCeiling)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("NFRGUARD_EMBEDDING_DIMENSION", "384")
	t.Setenv("NFRGUARD_HANDLER_TIMEOUT_MS", "5000")
	t.Setenv("NFRGUARD_RISK_SCORE_FLAG_THRESHOLD", "0.75")
	t.Setenv("NFRGUARD_MODEL_RETRY_ATTEMPTS", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, 384, cfg.EmbeddingDimension)
	assert.Equal(t, 5*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, 0.75, cfg.RiskScoreFlagThreshold)
	assert.Equal(t, 5, cfg.ModelRetryAttempts, "unparsable values keep the default")
}

package nfrguard

import (
	"os"
	"strconv"
	"time"
)

// Config is the single configuration record for a System. Durations are
// parsed from millisecond env values, matching how the deployment tooling
// renders them.
type Config struct {
	EmbeddingDimension          int
	ChunkSizeChars              int
	ChunkOverlapChars           int
	SubscriberQueueDepth        int
	PublishBackpressureDeadline time.Duration
	ModelCompleteTimeout        time.Duration
	ModelEmbedTimeout           time.Duration
	ModelRetryAttempts          int
	ModelMaxInflight            int
	HandlerTimeout              time.Duration
	ContextTTL                  time.Duration
	RiskScoreFlagThreshold      float64
	RiskAmountCeiling           float64
	ComplianceBlockThreshold    float64
	ComplianceHoldThreshold     float64
	KnowledgeQuietPeriod        time.Duration
	RetrievalTopK               int
	RetrievalExactCeiling       int
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingDimension:          768,
		ChunkSizeChars:              1000,
		ChunkOverlapChars:           200,
		SubscriberQueueDepth:        1024,
		PublishBackpressureDeadline: 2 * time.Second,
		ModelCompleteTimeout:        30 * time.Second,
		ModelEmbedTimeout:           10 * time.Second,
		ModelRetryAttempts:          5,
		ModelMaxInflight:            16,
		HandlerTimeout:              30 * time.Second,
		ContextTTL:                  10 * time.Minute,
		RiskScoreFlagThreshold:      0.8,
		RiskAmountCeiling:           10_000,
		ComplianceBlockThreshold:    0.95,
		ComplianceHoldThreshold:     0.90,
		KnowledgeQuietPeriod:        5 * time.Second,
		RetrievalTopK:               5,
		RetrievalExactCeiling:       100_000,
	}
}

// FromEnv returns the defaults overridden by NFRGUARD_* environment
// variables. Unparsable values keep the default.
func FromEnv() Config {
	cfg := DefaultConfig()
	envInt("NFRGUARD_EMBEDDING_DIMENSION", &cfg.EmbeddingDimension)
	envInt("NFRGUARD_CHUNK_SIZE_CHARS", &cfg.ChunkSizeChars)
	envInt("NFRGUARD_CHUNK_OVERLAP_CHARS", &cfg.ChunkOverlapChars)
	envInt("NFRGUARD_SUBSCRIBER_QUEUE_DEPTH", &cfg.SubscriberQueueDepth)
	envMillis("NFRGUARD_PUBLISH_BACKPRESSURE_DEADLINE_MS", &cfg.PublishBackpressureDeadline)
	envMillis("NFRGUARD_MODEL_COMPLETE_TIMEOUT_MS", &cfg.ModelCompleteTimeout)
	envMillis("NFRGUARD_MODEL_EMBED_TIMEOUT_MS", &cfg.ModelEmbedTimeout)
	envInt("NFRGUARD_MODEL_RETRY_ATTEMPTS", &cfg.ModelRetryAttempts)
	envInt("NFRGUARD_MODEL_MAX_INFLIGHT", &cfg.ModelMaxInflight)
	envMillis("NFRGUARD_HANDLER_TIMEOUT_MS", &cfg.HandlerTimeout)
	envMillis("NFRGUARD_CONTEXT_TTL_MS", &cfg.ContextTTL)
	envFloat("NFRGUARD_RISK_SCORE_FLAG_THRESHOLD", &cfg.RiskScoreFlagThreshold)
	envFloat("NFRGUARD_RISK_AMOUNT_CEILING", &cfg.RiskAmountCeiling)
	envFloat("NFRGUARD_COMPLIANCE_BLOCK_THRESHOLD", &cfg.ComplianceBlockThreshold)
	envFloat("NFRGUARD_COMPLIANCE_HOLD_THRESHOLD", &cfg.ComplianceHoldThreshold)
	envMillis("NFRGUARD_KNOWLEDGE_QUIET_PERIOD_MS", &cfg.KnowledgeQuietPeriod)
	envInt("NFRGUARD_RETRIEVAL_TOP_K", &cfg.RetrievalTopK)
	envInt("NFRGUARD_RETRIEVAL_EXACT_CEILING_CHUNKS", &cfg.RetrievalExactCeiling)
	return cfg
}

func envInt(key string, dst *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func envFloat(key string, dst *float64) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = v
		}
	}
}

func envMillis(key string, dst *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = time.Duration(v) * time.Millisecond
		}
	}
}

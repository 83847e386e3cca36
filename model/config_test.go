package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPipelineConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultPipelineConfig()

		assert.Equal(t, 5, config.TopK, "Default TopK should be 5")
		assert.Equal(t, 3, config.RetryTopK, "Default RetryTopK should be 3")
		assert.Equal(t, 0.6, config.ValidationThreshold, "Default ValidationThreshold should be 0.6")
		assert.Equal(t, 3, config.MinAcceptedChunks, "Default MinAcceptedChunks should be 3")
		assert.Equal(t, 4, config.MaxSubQueries, "Default MaxSubQueries should be 4")
		assert.Equal(t, 1, config.MaxRetries, "Default MaxRetries should be 1")
		assert.Equal(t, 30*time.Second, config.LatencyBudget, "Default LatencyBudget should be 30s")
		assert.Equal(t, int64(4), config.MaxConcurrentGenerations, "Default MaxConcurrentGenerations should be 4")
	})

	t.Run("Default scoring weights sum to 1.0", func(t *testing.T) {
		config := DefaultPipelineConfig()

		sum := config.LexicalWeight + config.VectorWeight
		assert.InDelta(t, 1.0, sum, 0.001, "Default scoring weights should sum to 1.0")
	})

	t.Run("Can be modified after creation", func(t *testing.T) {
		config := DefaultPipelineConfig()

		config.TopK = 10
		config.ValidationThreshold = 0.8
		config.MaxRetries = 0

		assert.Equal(t, 10, config.TopK)
		assert.Equal(t, 0.8, config.ValidationThreshold)
		assert.Equal(t, 0, config.MaxRetries)
	})
}

func TestQueryNormalized(t *testing.T) {
	t.Run("Defaults MaxSources when unset", func(t *testing.T) {
		query := Query{Text: "What database does CloudSync use?"}

		normalized := query.Normalized()

		assert.Equal(t, DefaultMaxSources, normalized.MaxSources, "Expected unset MaxSources to default")
		assert.Equal(t, query.Text, normalized.Text, "Expected text to be unchanged")
	})

	t.Run("Keeps explicit MaxSources", func(t *testing.T) {
		query := Query{Text: "q", MaxSources: 2}

		assert.Equal(t, 2, query.Normalized().MaxSources, "Expected explicit MaxSources to be kept")
	})
}

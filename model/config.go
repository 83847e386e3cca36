package model

import "time"

// PipelineConfig represents the fixed configuration of a pipeline instance.
// It is passed into the orchestrator at construction and never mutated,
// so pipeline behavior is reproducible in tests.
type PipelineConfig struct {
	// Retrieval parameters
	TopK      int `json:"top_k"`
	RetryTopK int `json:"retry_top_k"`

	// Validation parameters
	ValidationThreshold float64 `json:"validation_threshold"`
	MinAcceptedChunks   int     `json:"min_accepted_chunks"`
	LexicalWeight       float64 `json:"lexical_weight"`
	VectorWeight        float64 `json:"vector_weight"`
	CoverageOverlap     float64 `json:"coverage_overlap"`

	// Planning parameters
	MaxSubQueries int `json:"max_sub_queries"`

	// Orchestration parameters
	MaxRetries     int           `json:"max_retries"`
	LatencyBudget  time.Duration `json:"latency_budget"`
	SynthesisGrace time.Duration `json:"synthesis_grace"`

	// Generation parameters
	PlannerModel             string  `json:"planner_model"`
	SynthesizerModel         string  `json:"synthesizer_model"`
	PlannerTemperature       float64 `json:"planner_temperature"`
	SynthesizerTemperature   float64 `json:"synthesizer_temperature"`
	MaxConcurrentGenerations int64   `json:"max_concurrent_generations"`
}

// DefaultPipelineConfig returns a sensible default configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TopK:                     5,
		RetryTopK:                3,
		ValidationThreshold:      0.6,
		MinAcceptedChunks:        3,
		LexicalWeight:            0.5,
		VectorWeight:             0.5,
		CoverageOverlap:          0.3,
		MaxSubQueries:            4,
		MaxRetries:               1,
		LatencyBudget:            30 * time.Second,
		SynthesisGrace:           10 * time.Second,
		PlannerModel:             "llama-3.1-70b-versatile",
		SynthesizerModel:         "llama-3.1-70b-versatile",
		PlannerTemperature:       0.1,
		SynthesizerTemperature:   0.3,
		MaxConcurrentGenerations: 4,
	}
}

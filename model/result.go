package model

// SearchError records a failed sub-query search. The pipeline treats these
// as partial failures unless every search in a round failed.
type SearchError struct {
	SubQueryIndex int
	Err           error
}

// RetrievalOutcome is the merged result of one concurrent retrieval round.
type RetrievalOutcome struct {
	Chunks []RetrievedChunk
	Errors []SearchError
}

// ValidationVerdict is the result of validating a retrieval round.
type ValidationVerdict struct {
	AcceptedChunks        []ValidatedChunk `json:"accepted_chunks"`
	MissingPriorityTopics []string         `json:"missing_priority_topics"`
	RetryNeeded           bool             `json:"retry_needed"`
}

// Citation is one entry of the sources list. Index is the 1-based position
// referenced by inline markers in the answer text.
type Citation struct {
	Index          int     `json:"index"`
	Document       string  `json:"document"`
	Section        string  `json:"section"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`
}

// SynthesisResult is the synthesizer's contribution to the final response.
type SynthesisResult struct {
	Answer     string     `json:"answer"`
	Sources    []Citation `json:"sources"`
	Confidence float64    `json:"confidence"`
	TokensUsed int        `json:"tokens_used"`
}

// ResultMetadata describes how a response was produced.
type ResultMetadata struct {
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	TokensUsed       int      `json:"tokens_used"`
	Confidence       float64  `json:"confidence"`
	SubQueries       []string `json:"sub_queries"`
	ModelUsed        string   `json:"model_used"`
}

// PipelineResult is the externally visible response of one invocation.
type PipelineResult struct {
	Answer           string     `json:"answer"`
	Sources          []Citation `json:"sources"`
	SubQueries       []string   `json:"sub_queries"`
	Confidence       float64    `json:"confidence"`
	TokensUsed       int        `json:"tokens_used"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	ModelUsed        string     `json:"model_used"`
}

// Metadata returns the response metadata block used by streaming mode.
func (r *PipelineResult) Metadata() ResultMetadata {
	return ResultMetadata{
		ProcessingTimeMs: r.ProcessingTimeMs,
		TokensUsed:       r.TokensUsed,
		Confidence:       r.Confidence,
		SubQueries:       r.SubQueries,
		ModelUsed:        r.ModelUsed,
	}
}

// StreamEventType discriminates events on a ProcessStream channel.
type StreamEventType string

const (
	StreamEventToken    StreamEventType = "token"
	StreamEventSources  StreamEventType = "sources"
	StreamEventMetadata StreamEventType = "metadata"
	StreamEventError    StreamEventType = "error"
	StreamEventDone     StreamEventType = "done"
)

// StreamEvent is one event of a streaming response. Exactly one of the
// payload fields is set, according to Type.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Token    string          `json:"token,omitempty"`
	Sources  []Citation      `json:"sources,omitempty"`
	Metadata *ResultMetadata `json:"metadata,omitempty"`
	Err      *PipelineError  `json:"error,omitempty"`
}

package model

// DefaultMaxSources is used when a query does not specify a source limit.
const DefaultMaxSources = 5

// Query is the immutable input to a pipeline invocation.
type Query struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id,omitempty"`
	MaxSources int    `json:"max_sources"`
}

// Normalized returns a copy with MaxSources clamped to a usable value.
func (q Query) Normalized() Query {
	if q.MaxSources < 1 {
		q.MaxSources = DefaultMaxSources
	}
	return q
}

// SubQuery is one atomic, independently searchable decomposition of a query.
// Priority ranges from 1 (highest) to 3 (lowest).
type SubQuery struct {
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// HighPriority reports whether the sub-query is essential for coverage.
func (s SubQuery) HighPriority() bool {
	return s.Priority <= 1
}

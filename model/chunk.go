package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ChunkID derives the stable content-addressed identifier of a chunk.
// Two chunks with the same document, section, and content are the same
// logical chunk regardless of which search returned them.
func ChunkID(document, section, content string) string {
	sum := sha256.Sum256([]byte(document + "\x00" + section + "\x00" + content))
	return hex.EncodeToString(sum[:])[:16]
}

// Chunk represents a stored document chunk
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	DocumentRID uuid.UUID `json:"document_rid"`
	Section     string    `json:"section"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ChunkIndex  *int      `json:"chunk_index,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Results
	Document   string  `json:"document,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

// RetrievedChunk is a chunk returned by a sub-query search, merged across
// searches by ID. SourceSubqueries lists the indices of every sub-query
// whose search returned it, ascending.
type RetrievedChunk struct {
	ID               string  `json:"id"`
	Document         string  `json:"document"`
	Section          string  `json:"section"`
	Content          string  `json:"content"`
	VectorScore      float64 `json:"vector_score"`
	SourceSubqueries []int   `json:"source_subqueries"`
}

// FirstSourceSubquery returns the lowest contributing sub-query index,
// used as the deterministic tie-break in result ordering.
func (c RetrievedChunk) FirstSourceSubquery() int {
	if len(c.SourceSubqueries) == 0 {
		return 0
	}
	return c.SourceSubqueries[0]
}

// ValidatedChunk is a retrieved chunk with its relevance verdict.
type ValidatedChunk struct {
	RetrievedChunk
	Confidence float64 `json:"confidence"`
	Accepted   bool    `json:"accepted"`
}

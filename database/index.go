package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudsync/rag/helper"
)

// Supported vector index types for the chunks table.
const (
	IndexTypeHNSW    = "hnsw"
	IndexTypeIVFFlat = "ivfflat"
)

// Index build defaults, matching the pgvector recommendations.
const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 64
	defaultIVFFlatLists       = 100
)

// ChangeIndexType rebuilds the embedding index with the given type.
// HNSW accepts "m" and "ef_construction" params, IVFFlat accepts "lists";
// missing params fall back to the defaults above.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var createIndexSQL string
	switch indexType {
	case IndexTypeHNSW:
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			intParam(params, "m", defaultHNSWM),
			intParam(params, "ef_construction", defaultHNSWEfConstruction),
		)
	case IndexTypeIVFFlat:
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			intParam(params, "lists", defaultIVFFlatLists),
		)
	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use '%s' or '%s')", indexType, IndexTypeHNSW, IndexTypeIVFFlat))
	}

	// The old index has to go before the replacement can take its name
	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Rebuilt vector index", "type", indexType, "params", params)

	return nil
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	if value, ok := params[key].(int); ok {
		return value
	}
	return fallback
}

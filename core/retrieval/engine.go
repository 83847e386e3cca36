package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cloudsync/rag/core/pipeline"
	"github.com/cloudsync/rag/model"
)

// ErrAllSearchesFailed is returned when no sub-query search of a round
// produced results.
var ErrAllSearchesFailed = errors.New("all sub-query searches failed")

// Searcher performs a single vector similarity search
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]*model.Chunk, error)
}

// Engine runs one similarity search per sub-query concurrently and merges
// the results into a deduplicated, deterministically ordered list.
type Engine struct {
	searcher Searcher
	embedder pipeline.EmbedFunc
	logger   *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(searcher Searcher, embedder pipeline.EmbedFunc, logger *slog.Logger) *Engine {
	return &Engine{
		searcher: searcher,
		embedder: embedder,
		logger:   logger,
	}
}

// Retrieve searches all sub-queries in parallel with up to topK results
// each. Chunks returned by multiple searches are merged, keeping the
// highest vector score and the union of contributing sub-query indices.
// Failed searches are reported in the outcome; Retrieve only fails when
// every search failed.
func (e *Engine) Retrieve(ctx context.Context, subQueries []model.SubQuery, topK int) (*model.RetrievalOutcome, error) {
	if len(subQueries) == 0 {
		return &model.RetrievalOutcome{}, nil
	}

	type slot struct {
		chunks []*model.Chunk
		err    error
	}
	slots := make([]slot, len(subQueries))

	var wg sync.WaitGroup
	for i, subQuery := range subQueries {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()

			embedding, err := e.embedder(text)
			if err != nil {
				slots[i].err = fmt.Errorf("embed sub-query: %w", err)
				return
			}

			chunks, err := e.searcher.Search(ctx, embedding, topK)
			if err != nil {
				slots[i].err = fmt.Errorf("search sub-query: %w", err)
				return
			}
			slots[i].chunks = chunks
		}(i, subQuery.Text)
	}
	wg.Wait()

	outcome := &model.RetrievalOutcome{}
	resultMap := make(map[string]*model.RetrievedChunk)

	for i := range slots {
		if slots[i].err != nil {
			e.logger.Warn("Sub-query search failed",
				slog.Int("sub_query", i),
				slog.String("error", slots[i].err.Error()),
			)
			outcome.Errors = append(outcome.Errors, model.SearchError{SubQueryIndex: i, Err: slots[i].err})
			continue
		}

		for _, chunk := range slots[i].chunks {
			id := chunk.ContentHash
			if existing, ok := resultMap[id]; ok {
				if chunk.Similarity > existing.VectorScore {
					existing.VectorScore = chunk.Similarity
				}
				existing.SourceSubqueries = appendSubqueryIndex(existing.SourceSubqueries, i)
				continue
			}
			resultMap[id] = &model.RetrievedChunk{
				ID:               id,
				Document:         chunk.Document,
				Section:          chunk.Section,
				Content:          chunk.Content,
				VectorScore:      chunk.Similarity,
				SourceSubqueries: []int{i},
			}
		}
	}

	if len(outcome.Errors) == len(subQueries) {
		return outcome, ErrAllSearchesFailed
	}

	outcome.Chunks = make([]model.RetrievedChunk, 0, len(resultMap))
	for _, chunk := range resultMap {
		outcome.Chunks = append(outcome.Chunks, *chunk)
	}

	// Sort by score, ties broken by first contributing sub-query, then ID
	sort.Slice(outcome.Chunks, func(i, j int) bool {
		a, b := outcome.Chunks[i], outcome.Chunks[j]
		if a.VectorScore != b.VectorScore {
			return a.VectorScore > b.VectorScore
		}
		if a.FirstSourceSubquery() != b.FirstSourceSubquery() {
			return a.FirstSourceSubquery() < b.FirstSourceSubquery()
		}
		return a.ID < b.ID
	})

	e.logger.Info("Retrieved chunks",
		slog.Int("sub_queries", len(subQueries)),
		slog.Int("chunks", len(outcome.Chunks)),
		slog.Int("failed_searches", len(outcome.Errors)),
	)

	return outcome, nil
}

// appendSubqueryIndex inserts idx into the ascending index list, skipping
// duplicates. Lists are tiny, a linear scan is fine.
func appendSubqueryIndex(indices []int, idx int) []int {
	for pos, existing := range indices {
		if existing == idx {
			return indices
		}
		if existing > idx {
			indices = append(indices, 0)
			copy(indices[pos+1:], indices[pos:])
			indices[pos] = idx
			return indices
		}
	}
	return append(indices, idx)
}

package validation

import (
	"sort"
	"strings"

	"github.com/cloudsync/rag/model"
)

// coverageTopN bounds how many accepted chunks are examined for topic
// coverage. Chunks beyond the top few never make it into the context.
const coverageTopN = 5

// Engine scores retrieved chunks against the sub-queries that produced
// them and decides whether a retrieval round was sufficient. Validation is
// a pure function of its inputs and the fixed configuration.
type Engine struct {
	config *model.PipelineConfig
}

// NewEngine creates a new validation engine
func NewEngine(config *model.PipelineConfig) *Engine {
	return &Engine{config: config}
}

// Validate computes a confidence for every chunk, accepts those at or above
// the threshold and checks whether all high-priority sub-queries are
// covered. RetryNeeded is set when fewer than MinAcceptedChunks were
// accepted or a high-priority sub-query has no covering chunk.
func (e *Engine) Validate(chunks []model.RetrievedChunk, subQueries []model.SubQuery) model.ValidationVerdict {
	if len(chunks) == 0 {
		missing := make([]string, 0, len(subQueries))
		for _, sq := range subQueries {
			missing = append(missing, sq.Text)
		}
		return model.ValidationVerdict{
			MissingPriorityTopics: missing,
			RetryNeeded:           true,
		}
	}

	var accepted []model.ValidatedChunk
	for _, chunk := range chunks {
		confidence := e.Confidence(chunk, subQueries)
		if confidence >= e.config.ValidationThreshold {
			accepted = append(accepted, model.ValidatedChunk{
				RetrievedChunk: chunk,
				Confidence:     confidence,
				Accepted:       true,
			})
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Confidence != accepted[j].Confidence {
			return accepted[i].Confidence > accepted[j].Confidence
		}
		if accepted[i].VectorScore != accepted[j].VectorScore {
			return accepted[i].VectorScore > accepted[j].VectorScore
		}
		return accepted[i].ID < accepted[j].ID
	})

	covered := make(map[string]bool)
	top := accepted
	if len(top) > coverageTopN {
		top = top[:coverageTopN]
	}
	for _, vc := range top {
		for _, sq := range subQueries {
			if topicCoverage(vc.Content, sq.Text) > e.config.CoverageOverlap {
				covered[sq.Text] = true
			}
		}
	}

	var missing []string
	highPriorityMissing := false
	for _, sq := range subQueries {
		if covered[sq.Text] {
			continue
		}
		missing = append(missing, sq.Text)
		if sq.HighPriority() {
			highPriorityMissing = true
		}
	}

	return model.ValidationVerdict{
		AcceptedChunks:        accepted,
		MissingPriorityTopics: missing,
		RetryNeeded:           len(accepted) < e.config.MinAcceptedChunks || highPriorityMissing,
	}
}

// Confidence combines the lexical coverage of a chunk against its
// contributing sub-queries with its vector score. For chunks contributed
// by several sub-queries, the best combination wins.
func (e *Engine) Confidence(chunk model.RetrievedChunk, subQueries []model.SubQuery) float64 {
	best := 0.0
	matched := false
	for _, idx := range chunk.SourceSubqueries {
		if idx < 0 || idx >= len(subQueries) {
			continue
		}
		matched = true
		coverage := topicCoverage(chunk.Content, subQueries[idx].Text)
		confidence := e.config.LexicalWeight*coverage + e.config.VectorWeight*chunk.VectorScore
		if confidence > best {
			best = confidence
		}
	}
	if !matched {
		// Chunk without a known originating sub-query, score on vector alone
		best = e.config.VectorWeight * chunk.VectorScore
	}
	return clamp01(best)
}

// BroadenQueries builds the sub-query list for the retry round.
func (e *Engine) BroadenQueries(subQueries []model.SubQuery, missingTopics []string) []model.SubQuery {
	return BroadenQueries(subQueries, missingTopics)
}

// BroadenQueries builds the sub-query list for the retry round. Sub-queries
// named in missingTopics are kept and paired with a broadened rephrasing at
// one priority lower; when no specific topic is missing, every sub-query is
// broadened.
func BroadenQueries(subQueries []model.SubQuery, missingTopics []string) []model.SubQuery {
	targets := subQueries
	if len(missingTopics) > 0 {
		missing := make(map[string]bool, len(missingTopics))
		for _, topic := range missingTopics {
			missing[topic] = true
		}
		targets = nil
		for _, sq := range subQueries {
			if missing[sq.Text] {
				targets = append(targets, sq)
			}
		}
		if len(targets) == 0 {
			targets = subQueries
		}
	}

	broadened := make([]model.SubQuery, 0, 2*len(targets))
	for _, sq := range targets {
		broadened = append(broadened, sq, model.SubQuery{
			Text:     "guide for " + sq.Text,
			Priority: sq.Priority + 1,
		})
	}
	return broadened
}

// topicCoverage is the share of the sub-query's words that appear in the
// chunk content, in [0, 1].
func topicCoverage(content, subQuery string) float64 {
	queryWords := wordSet(subQuery)
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := wordSet(content)

	overlap := 0
	for word := range queryWords {
		if contentWords[word] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryWords))
}

func wordSet(text string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		words[word] = true
	}
	return words
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

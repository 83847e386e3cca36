package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudsync/rag/llm"
	"github.com/cloudsync/rag/model"
)

const planningMaxTokens = 500

const planningSystem = "You are a query planning assistant. Output only valid JSON arrays."

// Generator generates completions for planning prompts
type Generator interface {
	Generate(ctx context.Context, request llm.Request) (*llm.Response, error)
}

// Planner decomposes a user query into focused sub-queries that can be
// searched in parallel.
type Planner struct {
	generator Generator
	config    *model.PipelineConfig
	logger    *slog.Logger
}

// NewPlanner creates a new query planner
func NewPlanner(generator Generator, config *model.PipelineConfig, logger *slog.Logger) *Planner {
	return &Planner{
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

// Plan decomposes the query into 1 to MaxSubQueries sub-queries and returns
// them with the number of tokens used. Plan never fails: when generation or
// parsing goes wrong the original query becomes the single sub-query.
func (p *Planner) Plan(ctx context.Context, query model.Query) ([]model.SubQuery, int) {
	response, err := p.generator.Generate(ctx, llm.Request{
		Model:       p.config.PlannerModel,
		System:      planningSystem,
		Prompt:      planningPrompt(query.Text),
		Temperature: p.config.PlannerTemperature,
		MaxTokens:   planningMaxTokens,
	})
	if err != nil {
		p.logger.Warn("Query planning failed, falling back to the original query", slog.String("error", err.Error()))
		return p.fallback(query), 0
	}

	subQueries := parseSubQueries(response.Content)
	if len(subQueries) == 0 {
		p.logger.Warn("Query planning returned no usable sub-queries, falling back to the original query")
		return p.fallback(query), response.TokensUsed
	}
	if len(subQueries) > p.config.MaxSubQueries {
		subQueries = subQueries[:p.config.MaxSubQueries]
	}

	p.logger.Info("Planned sub-queries", slog.Int("count", len(subQueries)))

	return subQueries, response.TokensUsed
}

func (p *Planner) fallback(query model.Query) []model.SubQuery {
	return []model.SubQuery{{Text: query.Text, Priority: 1}}
}

type subQueryItem struct {
	Query    string `json:"query"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// parseSubQueries accepts either a bare JSON array of sub-query objects or
// an object wrapping such an array under a common key. Unusable items are
// skipped rather than failing the whole plan.
func parseSubQueries(content string) []model.SubQuery {
	content = strings.TrimSpace(content)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
			return nil
		}
		for _, key := range []string{"sub_queries", "queries", "results"} {
			if value, ok := wrapper[key]; ok && json.Unmarshal(value, &items) == nil {
				break
			}
		}
	}

	var subQueries []model.SubQuery
	for _, item := range items {
		var sq subQueryItem
		if err := json.Unmarshal(item, &sq); err != nil {
			continue
		}
		text := sq.Query
		if text == "" {
			text = sq.Text
		}
		if text == "" {
			continue
		}
		priority := sq.Priority
		if priority == 0 {
			priority = 1
		}
		subQueries = append(subQueries, model.SubQuery{Text: text, Priority: priority})
	}

	return subQueries
}

func planningPrompt(query string) string {
	return fmt.Sprintf(`You are a Query Planning Agent. Your task is to decompose a complex user query into simple, parallel sub-queries that can be searched independently.

User Query: "%s"

Analyze this query and break it down into 1-4 atomic sub-queries that:
1. Can be searched in parallel (no dependencies between them)
2. Are specific and focused on a single topic
3. Will help find relevant technical documentation
4. Cover all aspects of the original query

Instructions:
- Return ONLY a JSON array
- Each object must have "query" and "priority" fields
- Priority is 1 (highest) to 3 (lowest)
- Queries should be specific, not generic

Example 1:
Query: "How do I deploy to AWS with Docker?"
Response: [
  {"query": "AWS ECS deployment prerequisites and setup", "priority": 1},
  {"query": "Docker image build and push to ECR", "priority": 1},
  {"query": "ECS task definition and service configuration", "priority": 2}
]

Example 2:
Query: "What database does CloudSync use and how is data synchronized?"
Response: [
  {"query": "CloudSync database technology and configuration", "priority": 1},
  {"query": "Data synchronization architecture and flow", "priority": 1},
  {"query": "Conflict resolution strategies", "priority": 2}
]

Your response (JSON array only):
`, query)
}

package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudsync/rag/llm"
	"github.com/cloudsync/rag/model"
)

const (
	synthesisMaxTokens = 2000
	synthesisSystem    = "You are a technical documentation assistant. Provide accurate, well-cited answers."

	// maxContextChunks bounds the context independent of the query's
	// source limit.
	maxContextChunks = 5

	// contentPreviewLength is the citation preview cutoff in characters
	contentPreviewLength = 200

	// noInformationAnswer is returned without a generation call when no
	// chunk survived validation.
	noInformationAnswer = "I could not find relevant information in the documentation to answer this question. " +
		"Try rephrasing the question or ingesting documentation that covers the topic."
)

// Generator generates completions and token streams for synthesis prompts
type Generator interface {
	Generate(ctx context.Context, request llm.Request) (*llm.Response, error)
	GenerateStream(ctx context.Context, request llm.Request) (llm.TokenStream, error)
}

// Engine turns validated chunks into a cited answer. Citation markers in
// the answer always reference the returned sources list by position.
type Engine struct {
	generator Generator
	config    *model.PipelineConfig
	logger    *slog.Logger
}

// NewEngine creates a new synthesis engine
func NewEngine(generator Generator, config *model.PipelineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

// Synthesize generates the answer in one call.
func (e *Engine) Synthesize(ctx context.Context, query model.Query, chunks []model.ValidatedChunk) (*model.SynthesisResult, error) {
	selected := selectContext(chunks, query.MaxSources)
	if len(selected) == 0 {
		return emptyResult(), nil
	}

	response, err := e.generator.Generate(ctx, llm.Request{
		Model:       e.config.SynthesizerModel,
		System:      synthesisSystem,
		Prompt:      synthesisPrompt(query.Text, selected),
		Temperature: e.config.SynthesizerTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return nil, e.wrapGenerationError(err)
	}

	rewriter := newCitationRewriter(len(selected))
	answer := rewriter.Write(response.Content) + rewriter.Flush()

	return e.assembleResult(answer, selected, rewriter, response.TokensUsed), nil
}

// SynthesizeStream generates the answer as a live token stream. Every
// rewritten token is passed to emit before the final result is assembled.
// Cancelling the context aborts the underlying generation call.
func (e *Engine) SynthesizeStream(ctx context.Context, query model.Query, chunks []model.ValidatedChunk, emit func(token string)) (*model.SynthesisResult, error) {
	selected := selectContext(chunks, query.MaxSources)
	if len(selected) == 0 {
		result := emptyResult()
		emit(result.Answer)
		return result, nil
	}

	stream, err := e.generator.GenerateStream(ctx, llm.Request{
		Model:       e.config.SynthesizerModel,
		System:      synthesisSystem,
		Prompt:      synthesisPrompt(query.Text, selected),
		Temperature: e.config.SynthesizerTemperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return nil, e.wrapGenerationError(err)
	}
	defer stream.Close()

	rewriter := newCitationRewriter(len(selected))
	var answer strings.Builder

	for {
		token, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, e.wrapGenerationError(err)
		}

		rewritten := rewriter.Write(token)
		if rewritten != "" {
			answer.WriteString(rewritten)
			emit(rewritten)
		}
	}

	if tail := rewriter.Flush(); tail != "" {
		answer.WriteString(tail)
		emit(tail)
	}

	return e.assembleResult(answer.String(), selected, rewriter, stream.TokensUsed()), nil
}

func (e *Engine) assembleResult(answer string, selected []model.ValidatedChunk, rewriter *citationRewriter, tokensUsed int) *model.SynthesisResult {
	result := &model.SynthesisResult{
		Answer:     answer,
		Sources:    []model.Citation{},
		TokensUsed: tokensUsed,
	}

	totalConfidence := 0.0
	for i, contextIdx := range rewriter.Order() {
		chunk := selected[contextIdx]
		result.Sources = append(result.Sources, model.Citation{
			Index:          i + 1,
			Document:       chunk.Document,
			Section:        chunk.Section,
			RelevanceScore: chunk.Confidence,
			ContentPreview: contentPreview(chunk.Content),
		})
		totalConfidence += chunk.Confidence
	}
	if len(result.Sources) > 0 {
		result.Confidence = totalConfidence / float64(len(result.Sources))
	}

	e.logger.Info("Synthesized answer",
		slog.Int("context_chunks", len(selected)),
		slog.Int("cited_sources", len(result.Sources)),
		slog.Int("tokens_used", tokensUsed),
	)

	return result
}

func (e *Engine) wrapGenerationError(err error) error {
	if errors.Is(err, llm.ErrUnavailable) {
		return model.NewPipelineError(model.ErrCodeUpstreamUnavailable, "generation service unavailable", err)
	}
	return model.NewPipelineError(model.ErrCodeSynthesis, "answer generation failed", err)
}

func emptyResult() *model.SynthesisResult {
	return &model.SynthesisResult{
		Answer:  noInformationAnswer,
		Sources: []model.Citation{},
	}
}

// selectContext picks the top chunks by confidence, ties broken by vector
// score and then by ID for determinism.
func selectContext(chunks []model.ValidatedChunk, maxSources int) []model.ValidatedChunk {
	limit := maxContextChunks
	if maxSources > 0 && maxSources < limit {
		limit = maxSources
	}

	selected := make([]model.ValidatedChunk, len(chunks))
	copy(selected, chunks)
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Confidence != selected[j].Confidence {
			return selected[i].Confidence > selected[j].Confidence
		}
		if selected[i].VectorScore != selected[j].VectorScore {
			return selected[i].VectorScore > selected[j].VectorScore
		}
		return selected[i].ID < selected[j].ID
	})

	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}

// contentPreview truncates at contentPreviewLength characters, not bytes,
// so a multi-byte rune is never split mid-sequence.
func contentPreview(content string) string {
	count := 0
	for i := range content {
		if count == contentPreviewLength {
			return content[:i] + "..."
		}
		count++
	}
	return content
}

func synthesisPrompt(query string, selected []model.ValidatedChunk) string {
	var context strings.Builder
	for i, chunk := range selected {
		if i > 0 {
			context.WriteString("\n---\n")
		}
		context.WriteString(fmt.Sprintf(
			"[%d] Document: %s (Section: %s)\nRelevance: %.2f\nContent: %s\n",
			i+1, chunk.Document, chunk.Section, chunk.Confidence, chunk.Content,
		))
	}

	return fmt.Sprintf(`You are a helpful technical documentation assistant. Answer the user's question based on the provided context.

User Question: %s

Context from documentation:
%s

Instructions:
1. Answer directly based ONLY on the provided context
2. Use citation markers like [1], [2], etc. when referencing specific information
3. Be concise but complete
4. If information is missing, say so explicitly
5. Structure the answer with clear steps or points where applicable

Format your response with inline citations. Example: "To deploy [1], you need to build the Docker image first [2]."

Answer:`, query, context.String())
}

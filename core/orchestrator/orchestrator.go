package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/cloudsync/rag/model"
)

// State is the current stage of a pipeline invocation
type State string

const (
	StatePlanning        State = "planning"
	StateRetrieving      State = "retrieving"
	StateValidating      State = "validating"
	StateRetryRetrieving State = "retry_retrieving"
	StateSynthesizing    State = "synthesizing"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Planner decomposes a query into sub-queries and reports the tokens used
type Planner interface {
	Plan(ctx context.Context, query model.Query) ([]model.SubQuery, int)
}

// Retriever runs one concurrent search round over the given sub-queries
type Retriever interface {
	Retrieve(ctx context.Context, subQueries []model.SubQuery, topK int) (*model.RetrievalOutcome, error)
}

// Validator scores a retrieval round and proposes retry sub-queries
type Validator interface {
	Validate(chunks []model.RetrievedChunk, subQueries []model.SubQuery) model.ValidationVerdict
	BroadenQueries(subQueries []model.SubQuery, missingTopics []string) []model.SubQuery
}

// Synthesizer turns accepted chunks into a cited answer
type Synthesizer interface {
	Synthesize(ctx context.Context, query model.Query, chunks []model.ValidatedChunk) (*model.SynthesisResult, error)
	SynthesizeStream(ctx context.Context, query model.Query, chunks []model.ValidatedChunk, emit func(token string)) (*model.SynthesisResult, error)
}

// Orchestrator sequences planning, retrieval, validation with bounded
// re-retrieval, and synthesis under a single wall-clock latency budget.
// One Orchestrator serves concurrent invocations, each owning its state.
type Orchestrator struct {
	planner     Planner
	retriever   Retriever
	validator   Validator
	synthesizer Synthesizer
	config      *model.PipelineConfig
	logger      *slog.Logger
}

// NewOrchestrator creates a new pipeline orchestrator
func NewOrchestrator(planner Planner, retriever Retriever, validator Validator, synthesizer Synthesizer, config *model.PipelineConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		planner:     planner,
		retriever:   retriever,
		validator:   validator,
		synthesizer: synthesizer,
		config:      config,
		logger:      logger,
	}
}

// Process runs the full pipeline and returns the assembled response.
func (o *Orchestrator) Process(ctx context.Context, query model.Query) (*model.PipelineResult, error) {
	return o.run(ctx, query, nil)
}

// ProcessStream runs the full pipeline in streaming mode. The returned
// channel carries zero or more token events, then one sources event, one
// metadata event and a final done event. A terminal error event replaces
// the remainder of the stream. Cancelling the context aborts outstanding
// calls and ends the stream without a done event.
func (o *Orchestrator) ProcessStream(ctx context.Context, query model.Query) <-chan model.StreamEvent {
	events := make(chan model.StreamEvent)

	go func() {
		defer close(events)

		send := func(event model.StreamEvent) bool {
			select {
			case events <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		result, err := o.run(ctx, query, func(token string) {
			send(model.StreamEvent{Type: model.StreamEventToken, Token: token})
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(model.StreamEvent{Type: model.StreamEventError, Err: asPipelineError(err)})
			return
		}
		if ctx.Err() != nil {
			return
		}

		metadata := result.Metadata()
		if !send(model.StreamEvent{Type: model.StreamEventSources, Sources: result.Sources}) {
			return
		}
		if !send(model.StreamEvent{Type: model.StreamEventMetadata, Metadata: &metadata}) {
			return
		}
		send(model.StreamEvent{Type: model.StreamEventDone})
	}()

	return events
}

func (o *Orchestrator) run(callerCtx context.Context, query model.Query, emit func(token string)) (*model.PipelineResult, error) {
	query = query.Normalized()
	start := time.Now()

	ctx, cancel := context.WithTimeout(callerCtx, o.config.LatencyBudget)
	defer cancel()

	state := StatePlanning
	o.logState(state, query)

	subQueries, plannerTokens := o.planner.Plan(ctx, query)

	var accepted []model.ValidatedChunk
	retries := 0

	if ctx.Err() == nil {
		state = StateRetrieving
		o.logState(state, query)

		var chunks []model.RetrievedChunk
		outcome, err := o.retriever.Retrieve(ctx, subQueries, o.config.TopK)
		if err != nil {
			// Even a fully failed round degrades to a low-confidence
			// answer instead of aborting
			o.logger.Warn("Retrieval round failed", slog.String("error", err.Error()))
		} else {
			chunks = outcome.Chunks
		}

		state = StateValidating
		o.logState(state, query)

		verdict := o.validator.Validate(chunks, subQueries)
		accepted = verdict.AcceptedChunks

		for verdict.RetryNeeded && retries < o.config.MaxRetries && ctx.Err() == nil {
			retries++
			state = StateRetryRetrieving
			o.logState(state, query)

			broadened := o.validator.BroadenQueries(subQueries, verdict.MissingPriorityTopics)
			retryOutcome, err := o.retriever.Retrieve(ctx, broadened, o.config.RetryTopK)
			if err != nil {
				o.logger.Warn("Retry retrieval round failed", slog.String("error", err.Error()))
				break
			}

			verdict = o.validator.Validate(retryOutcome.Chunks, broadened)
			accepted = mergeAccepted(accepted, verdict.AcceptedChunks)
		}
	}

	synthCtx := ctx
	if ctx.Err() != nil {
		if callerCtx.Err() != nil {
			o.logState(StateFailed, query)
			return nil, model.NewPipelineError(model.ErrCodeTimeout, "request cancelled", callerCtx.Err())
		}
		if len(accepted) == 0 {
			o.logState(StateFailed, query)
			return nil, model.NewPipelineError(model.ErrCodeTimeout, "latency budget exhausted with no usable chunks", ctx.Err())
		}
		// Budget exhausted with usable chunks: synthesize within a short
		// grace window instead of dropping the request
		var graceCancel context.CancelFunc
		synthCtx, graceCancel = context.WithTimeout(callerCtx, o.config.SynthesisGrace)
		defer graceCancel()
	}

	state = StateSynthesizing
	o.logState(state, query)

	var synthesized *model.SynthesisResult
	var err error
	if emit != nil {
		synthesized, err = o.synthesizer.SynthesizeStream(synthCtx, query, accepted, emit)
	} else {
		synthesized, err = o.synthesizer.Synthesize(synthCtx, query, accepted)
	}
	if err != nil {
		o.logState(StateFailed, query)
		return nil, err
	}

	state = StateDone
	o.logState(state, query)

	subQueryTexts := make([]string, len(subQueries))
	for i, sq := range subQueries {
		subQueryTexts[i] = sq.Text
	}

	result := &model.PipelineResult{
		Answer:           synthesized.Answer,
		Sources:          synthesized.Sources,
		SubQueries:       subQueryTexts,
		Confidence:       synthesized.Confidence,
		TokensUsed:       plannerTokens + synthesized.TokensUsed,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ModelUsed:        o.config.SynthesizerModel,
	}

	o.logger.Info("Pipeline invocation finished",
		slog.Int("sub_queries", len(subQueries)),
		slog.Int("sources", len(result.Sources)),
		slog.Int("retries", retries),
		slog.Float64("confidence", result.Confidence),
		slog.Int64("processing_time_ms", result.ProcessingTimeMs),
	)

	return result, nil
}

func (o *Orchestrator) logState(state State, query model.Query) {
	o.logger.Debug("Pipeline state",
		slog.String("state", string(state)),
		slog.String("session_id", query.SessionID),
	)
}

// mergeAccepted unions two accepted-chunk lists by ID, keeping the higher
// confidence, and restores the confidence ordering.
func mergeAccepted(first, second []model.ValidatedChunk) []model.ValidatedChunk {
	byID := make(map[string]model.ValidatedChunk, len(first)+len(second))
	for _, chunk := range first {
		byID[chunk.ID] = chunk
	}
	for _, chunk := range second {
		if existing, ok := byID[chunk.ID]; !ok || chunk.Confidence > existing.Confidence {
			byID[chunk.ID] = chunk
		}
	}

	merged := make([]model.ValidatedChunk, 0, len(byID))
	for _, chunk := range byID {
		merged = append(merged, chunk)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		if merged[i].VectorScore != merged[j].VectorScore {
			return merged[i].VectorScore > merged[j].VectorScore
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func asPipelineError(err error) *model.PipelineError {
	var pipelineErr *model.PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}
	return model.NewPipelineError(model.ErrCodeSynthesis, "pipeline failed", err)
}

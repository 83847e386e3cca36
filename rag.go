package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudsync/rag/core/orchestrator"
	"github.com/cloudsync/rag/core/pipeline"
	"github.com/cloudsync/rag/core/planner"
	"github.com/cloudsync/rag/core/retrieval"
	"github.com/cloudsync/rag/core/synthesis"
	"github.com/cloudsync/rag/core/validation"
	"github.com/cloudsync/rag/database"
	"github.com/cloudsync/rag/helper"
	"github.com/cloudsync/rag/llm"
	"github.com/cloudsync/rag/model"
	loadSql "github.com/cloudsync/rag/sql"
)

// Rag wires the full question answering pipeline: document ingestion,
// query planning, retrieval over pgvector, validation and cited synthesis.
type Rag struct {
	DB           *helper.Database
	Documents    *database.DocumentsDBHandler
	Chunks       *database.ChunksDBHandler
	Pipeline     *pipeline.Pipeline // Optional chunking pipeline
	Orchestrator *orchestrator.Orchestrator
	// Logging
	log *slog.Logger
}

// NewRag creates a new Rag instance with all handlers and pipeline stages
// initialized. The embedding dimension must match the embedder used for
// ingestion and querying.
func NewRag(dbConfig *helper.DatabaseConfiguration, llmConfig *helper.LLMConfiguration, pipelineConfig *model.PipelineConfig, embeddingDim int) (*Rag, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	if pipelineConfig == nil {
		defaults := model.DefaultPipelineConfig()
		pipelineConfig = &defaults
	}

	// Initialize database
	db := helper.NewDatabase("rag", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, then chunks)
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	// Generation client shared by planning and synthesis
	clientConfig := llm.DefaultConfig(llmConfig.BaseURL, llmConfig.APIKey)
	clientConfig.MaxConcurrent = pipelineConfig.MaxConcurrentGenerations
	client := llm.NewClient(clientConfig, logger)

	r := &Rag{
		DB:        db,
		Documents: documents,
		Chunks:    chunks,
		log:       logger,
	}

	r.Orchestrator = orchestrator.NewOrchestrator(
		planner.NewPlanner(client, pipelineConfig, logger),
		retrieval.NewEngine(&chunkSearcher{chunks: chunks}, r.embedQuery, logger),
		validation.NewEngine(pipelineConfig),
		synthesis.NewEngine(client, pipelineConfig, logger),
		pipelineConfig,
		logger,
	)

	return r, nil
}

// Close closes the database connection
func (r *Rag) Close() error {
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}

// SetPipeline sets the chunking pipeline for document processing
func (r *Rag) SetPipeline(pipeline *pipeline.Pipeline) {
	r.Pipeline = pipeline
}

// UseDefaultPipeline sets up the default section chunking and embedding
// pipeline. Chunks are split on markdown headings and embedded with the
// all-MiniLM-L6-v2 model (384 dimensions).
func (r *Rag) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	r.Pipeline = pipeline.NewPipeline(pipeline.SectionChunker(), embedder)
	return nil
}

// ProcessAndInsertDocument processes a document by:
// 1. Inserting the document metadata (without content)
// 2. Processing the content into embedded chunks using the pipeline
// 3. Inserting all chunks with the document ID
// The document's Content field is used for processing but not stored in the database.
// Returns the number of chunks inserted and any error encountered.
func (r *Rag) ProcessAndInsertDocument(doc *model.Document) (int, error) {
	if r.Pipeline == nil {
		return 0, helper.NewError("process document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	if doc.Content == "" {
		return 0, helper.NewError("process document", fmt.Errorf("document content is empty"))
	}

	chunks, err := r.Pipeline.Process(doc)
	if err != nil {
		return 0, helper.NewError("process chunks", err)
	}

	// Content is consumed by chunking and not stored on the document row
	doc.Content = ""
	if err := r.Documents.InsertDocument(doc); err != nil {
		return 0, helper.NewError("insert document", err)
	}

	r.log.Info("Inserted document", slog.String("document_id", doc.RID.String()), slog.String("title", doc.Title))

	for i, chunk := range chunks {
		chunk.DocumentID = doc.ID
		if err := r.Chunks.InsertChunk(chunk); err != nil {
			return i, helper.NewError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	r.log.Info("Processed document into chunks", slog.Int("num_chunks", len(chunks)), slog.String("document_id", doc.RID.String()))

	return len(chunks), nil
}

// Process answers a query through the full pipeline and returns the
// complete response once synthesis finished.
func (r *Rag) Process(ctx context.Context, query model.Query) (*model.PipelineResult, error) {
	if err := r.checkQueryable(); err != nil {
		return nil, err
	}
	return r.Orchestrator.Process(ctx, query)
}

// ProcessStream answers a query through the full pipeline, emitting answer
// tokens as they are generated. The returned channel is closed when the
// response is complete or the context is cancelled.
func (r *Rag) ProcessStream(ctx context.Context, query model.Query) (<-chan model.StreamEvent, error) {
	if err := r.checkQueryable(); err != nil {
		return nil, err
	}
	return r.Orchestrator.ProcessStream(ctx, query), nil
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (r *Rag) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Chunks.ChangeIndexType(ctx, indexType, params)
}

func (r *Rag) checkQueryable() error {
	if r.Pipeline == nil || r.Pipeline.Embedder == nil {
		return helper.NewError("process query", fmt.Errorf("pipeline with embedder not set, use SetPipeline() first"))
	}
	return nil
}

// embedQuery embeds sub-query text with the pipeline's embedder so queries
// and chunks share one embedding space.
func (r *Rag) embedQuery(text string) ([]float32, error) {
	if r.Pipeline == nil || r.Pipeline.Embedder == nil {
		return nil, fmt.Errorf("pipeline with embedder not set")
	}
	return r.Pipeline.Embedder(text)
}

// chunkSearcher adapts the chunks handler to the retrieval engine
type chunkSearcher struct {
	chunks *database.ChunksDBHandler
}

func (s *chunkSearcher) Search(ctx context.Context, embedding []float32, topK int) ([]*model.Chunk, error) {
	return s.chunks.SelectChunksBySimilarity(ctx, embedding, topK)
}

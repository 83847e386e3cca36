package main

import (
	"context"
	"fmt"
	"log"

	rag "github.com/cloudsync/rag"
	"github.com/cloudsync/rag/helper"
	"github.com/cloudsync/rag/model"
)

const sampleContent = `# CloudSync Documentation

## Sharing

Folders are shared from the folder context menu. Select "Share" and enter the
email addresses of the people you want to invite. Invitees can be given viewer
or editor permissions, and permissions can be changed later from the same menu.

## Storage Quota

Every account includes 15 GB of storage. The quota is shared across all synced
folders and file versions. When the quota is exceeded, uploads are paused until
space is freed or the plan is upgraded.

## Sync Conflicts

When the same file is edited on two devices before syncing, CloudSync keeps
both versions. The later upload is stored as a conflict copy next to the
original, named with the device and timestamp, so no edits are lost.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Generation service configuration from the environment (LLM_API_KEY)
	llmConfig, err := helper.NewLLMConfiguration()
	if err != nil {
		log.Fatalf("Failed to read LLM configuration: %v", err)
	}

	r, err := rag.NewRag(dbConfig, llmConfig, nil, 384)
	if err != nil {
		log.Fatalf("Failed to create rag: %v", err)
	}
	defer r.Close()

	// Set up the default pipeline (section chunking + embeddings)
	if err := r.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// Create document with content
	doc := &model.Document{
		Title:   "CloudSync Documentation",
		Source:  "docs/cloudsync.md",
		Content: sampleContent,
		Metadata: model.Metadata{
			"product": "cloudsync",
			"version": "2026.1",
		},
	}

	// Process and insert document in one call
	fmt.Println("Ingesting document...")
	numChunks, err := r.ProcessAndInsertDocument(doc)
	if err != nil {
		log.Fatalf("Failed to process and insert document: %v", err)
	}
	fmt.Printf("Document inserted with ID: %s\n", doc.RID)
	fmt.Printf("Inserted %d chunks\n", numChunks)

	// Ask a question through the full pipeline
	query := model.Query{Text: "How do I share a folder and what permissions can I set?"}

	fmt.Printf("\nQuerying: %s\n", query.Text)

	result, err := r.Process(context.Background(), query)
	if err != nil {
		log.Fatalf("Failed to process query: %v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", result.Answer)
	fmt.Printf("\nConfidence: %.2f\n", result.Confidence)
	fmt.Printf("Sub-queries: %v\n", result.SubQueries)
	for _, source := range result.Sources {
		fmt.Printf("[%d] %s (%s) score %.2f\n", source.Index, source.Document, source.Section, source.RelevanceScore)
	}

	// Ask the same question again, streaming tokens as they arrive
	fmt.Println("\nStreaming:")
	events, err := r.ProcessStream(context.Background(), query)
	if err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}
	for event := range events {
		switch event.Type {
		case model.StreamEventToken:
			fmt.Print(event.Token)
		case model.StreamEventMetadata:
			fmt.Printf("\n\nTokens used: %d, took %d ms\n", event.Metadata.TokensUsed, event.Metadata.ProcessingTimeMs)
		case model.StreamEventError:
			log.Fatalf("Stream failed: %v", event.Err)
		}
	}

	fmt.Println("\nBasic example completed successfully!")
}

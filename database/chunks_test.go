package database

import (
	"context"
	"testing"
	"time"

	"github.com/cloudsync/rag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedding returns a deterministic embedding of the handler dimension
func testEmbedding(dim int, seed float32) []float32 {
	embedding := make([]float32, dim)
	for i := range embedding {
		embedding[i] = seed + float32(i)/float32(dim)
	}
	return embedding
}

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		// Create documents handler first to ensure documents table exists (needed for foreign key)
		_, err := NewDocumentsDBHandler(database, true)
		require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

		chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		require.NotNil(t, chunksDbHandler.db, "Expected NewChunksDBHandler to have a non-nil database instance")
		require.NotNil(t, chunksDbHandler.db.Instance, "Expected NewChunksDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, 384, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})

	t.Run("Invalid call NewChunksDBHandler with invalid dimension", func(t *testing.T) {
		_, err := NewChunksDBHandler(database, 0, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with zero dimension")
		assert.Contains(t, err.Error(), "embedding dimension must be positive", "Expected specific error message for invalid dimension")
	})
}

func TestChunksInsert(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")

	doc := &model.Document{
		Title:    "Sharing Guide",
		Source:   "sharing.md",
		Metadata: map[string]interface{}{"author": "Test Author"},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err, "Expected Insert document to not return an error")

	t.Run("Insert chunk without embedding", func(t *testing.T) {
		chunkIndex := 0
		content := "Folders can be shared with view or edit permissions."
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Permissions",
			Content:     content,
			ContentHash: model.ChunkID(doc.Source, "Permissions", content),
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{"type": "paragraph"},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.ID, "Expected inserted chunk to have an ID")
		assert.Equal(t, doc.RID, chunk.DocumentRID, "Expected document RID to be resolved")
		assert.WithinDuration(t, chunk.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Insert chunk with embedding", func(t *testing.T) {
		chunkIndex := 1
		content := "Shared links can be revoked at any time from the web console."
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Permissions",
			Content:     content,
			ContentHash: model.ChunkID(doc.Source, "Permissions", content),
			Embedding:   testEmbedding(384, 0),
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{"type": "paragraph"},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.ID, "Expected inserted chunk to have an ID")
	})

	t.Run("Insert chunk with duplicate content hash updates in place", func(t *testing.T) {
		chunkIndex := 2
		content := "Activity logs are kept for 30 days."
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Auditing",
			Content:     content,
			ContentHash: model.ChunkID(doc.Source, "Auditing", content),
			Embedding:   testEmbedding(384, 0.1),
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err, "Expected first Insert to not return an error")
		firstID := chunk.ID

		duplicate := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Auditing",
			Content:     content,
			ContentHash: chunk.ContentHash,
			Embedding:   testEmbedding(384, 0.2),
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{},
		}
		err = chunksDbHandler.InsertChunk(duplicate)
		assert.NoError(t, err, "Expected duplicate Insert to not return an error")
		assert.Equal(t, firstID, duplicate.ID, "Expected duplicate insert to keep the existing row")

		count, err := chunksDbHandler.CountChunks()
		require.NoError(t, err)
		assert.Equal(t, 3, count, "Expected no additional row for the duplicate chunk")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGet(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err, "Expected NewChunksDBHandler to not return an error")

	doc := &model.Document{
		Title:    "Backups",
		Source:   "backups.md",
		Metadata: map[string]interface{}{},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	content := "Backups run nightly and are retained for 90 days."
	chunk := &model.Chunk{
		DocumentID:  doc.ID,
		Section:     "Schedule",
		Content:     content,
		ContentHash: model.ChunkID(doc.Source, "Schedule", content),
		Metadata:    map[string]interface{}{},
	}
	err = chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	retrievedChunk, err := chunksDbHandler.SelectChunk(chunk.ID)
	assert.NoError(t, err, "Expected Get to not return an error")
	assert.NotNil(t, retrievedChunk, "Expected Get to return a non-nil chunk")
	assert.Equal(t, chunk.ID, retrievedChunk.ID, "Expected chunk IDs to match")
	assert.Equal(t, chunk.Content, retrievedChunk.Content, "Expected chunk content to match")
	assert.Equal(t, chunk.Section, retrievedChunk.Section, "Expected chunk section to match")

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGetByDocument(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err)

	doc := &model.Document{
		Title:    "Quotas",
		Source:   "quotas.md",
		Metadata: map[string]interface{}{},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	chunkCount := 3
	contents := []string{
		"Free accounts include 5 GB of storage.",
		"Paid plans start at 100 GB of storage.",
		"Quota usage is recalculated hourly.",
	}
	for i := 0; i < chunkCount; i++ {
		chunkIndex := i
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Limits",
			Content:     contents[i],
			ContentHash: model.ChunkID(doc.Source, "Limits", contents[i]),
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{},
		}
		err = chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	retrievedChunks, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
	assert.NoError(t, err, "Expected SelectChunksByDocument to not return an error")
	require.Len(t, retrievedChunks, chunkCount, "Expected to retrieve all chunks of the document")
	for i, chunk := range retrievedChunks {
		assert.Equal(t, contents[i], chunk.Content, "Expected chunks in chunk index order")
	}

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksSimilaritySearch(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	// The vector dimension is fixed per table, recreate with a small
	// dimension for hand-checkable similarities
	_, err = database.Instance.Exec(`DROP TABLE IF EXISTS chunks`)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, 4, true)
	require.NoError(t, err)

	doc := &model.Document{
		Title:    "Sync Conflicts",
		Source:   "conflicts.md",
		Metadata: map[string]interface{}{},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	chunks := []struct {
		content   string
		embedding []float32
	}{
		{"Conflicting edits create a copy with the editor name.", []float32{1, 0, 0, 0}},
		{"The newest version wins in last-writer mode.", []float32{0, 1, 0, 0}},
		{"Deleted files stay in trash for 30 days.", []float32{-1, 0, 0, 0}},
	}
	for i, c := range chunks {
		chunkIndex := i
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Resolution",
			Content:     c.content,
			ContentHash: model.ChunkID(doc.Source, "Resolution", c.content),
			Embedding:   c.embedding,
			ChunkIndex:  &chunkIndex,
			Metadata:    map[string]interface{}{},
		}
		err = chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	ctx := context.Background()

	t.Run("Similarity search orders by closeness", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(ctx, []float32{1, 0, 0, 0}, 3)
		assert.NoError(t, err, "Expected SelectChunksBySimilarity to not return an error")
		require.Len(t, results, 3, "Expected all chunks with embeddings to be returned")
		assert.Equal(t, chunks[0].content, results[0].Content, "Expected identical embedding to rank first")
		assert.InDelta(t, 1.0, results[0].Similarity, 0.001, "Expected identical embedding to have similarity 1")
		assert.InDelta(t, 0.0, results[2].Similarity, 0.001, "Expected opposite embedding to have similarity 0")
		assert.Equal(t, doc.Source, results[0].Document, "Expected document label to be the source")
	})

	t.Run("Similarity search respects limit", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(ctx, []float32{1, 0, 0, 0}, 1)
		assert.NoError(t, err, "Expected SelectChunksBySimilarity to not return an error")
		assert.Len(t, results, 1, "Expected at most limit results")
	})

	t.Run("Similarity search with wrong dimension", func(t *testing.T) {
		_, err := chunksDbHandler.SelectChunksBySimilarity(ctx, []float32{1, 0}, 3)
		assert.Error(t, err, "Expected error for mismatched embedding dimension")
		assert.Contains(t, err.Error(), "expected embedding of dimension", "Expected specific error message for dimension mismatch")
	})

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
	_, err = database.Instance.Exec(`DROP TABLE IF EXISTS chunks`)
	require.NoError(t, err)
}

func TestChunksDeleteByDocument(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err)

	doc := &model.Document{
		Title:    "Versioning",
		Source:   "versioning.md",
		Metadata: map[string]interface{}{},
	}
	err = documentsDbHandler.InsertDocument(doc)
	require.NoError(t, err)

	contents := []string{
		"Every upload creates a new file version.",
		"Old versions count against the storage quota.",
	}
	for _, content := range contents {
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			Section:     "Versions",
			Content:     content,
			ContentHash: model.ChunkID(doc.Source, "Versions", content),
			Metadata:    map[string]interface{}{},
		}
		err = chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	deleted, err := chunksDbHandler.DeleteChunksByDocument(doc.RID)
	assert.NoError(t, err, "Expected DeleteChunksByDocument to not return an error")
	assert.Equal(t, int64(len(contents)), deleted, "Expected all chunks of the document to be deleted")

	remaining, err := chunksDbHandler.SelectChunksByDocument(doc.RID)
	assert.NoError(t, err)
	assert.Empty(t, remaining, "Expected no chunks to remain for the document")

	// Cleanup
	documentsDbHandler.DeleteDocument(doc.RID)
}

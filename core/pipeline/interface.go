package pipeline

import (
	"fmt"
	"strings"

	"github.com/cloudsync/rag/model"
)

// MinChunkContentLength is the minimum content length for a chunk to be
// worth storing. Shorter fragments carry too little signal to retrieve.
const MinChunkContentLength = 50

// ChunkFunc is a function that splits text into chunks with their section
// labels. The baseSection is used for chunks outside any recognized section.
type ChunkFunc func(text string, baseSection string) ([]ChunkWithSection, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// ChunkWithSection represents a chunk with its section label
type ChunkWithSection struct {
	Content    string
	Section    string
	ChunkIndex *int
	Metadata   map[string]interface{}
}

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process splits a document into chunks, drops fragments shorter than
// MinChunkContentLength, deduplicates by content hash and embeds the rest.
// The returned chunks carry the document ID and are ready for insertion.
func (p *Pipeline) Process(doc *model.Document) ([]*model.Chunk, error) {
	if p.Chunker == nil || p.Embedder == nil {
		return nil, fmt.Errorf("pipeline requires both a chunker and an embedder")
	}

	chunksWithSection, err := p.Chunker(doc.Content, "")
	if err != nil {
		return nil, err
	}

	label := documentLabel(doc)

	chunks := make([]*model.Chunk, 0, len(chunksWithSection))
	seen := map[string]bool{}

	for _, cws := range chunksWithSection {
		content := strings.TrimSpace(cws.Content)
		if len(content) < MinChunkContentLength {
			continue
		}

		contentHash := model.ChunkID(label, cws.Section, content)
		if seen[contentHash] {
			continue
		}
		seen[contentHash] = true

		embedding, err := p.Embedder(content)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, &model.Chunk{
			DocumentID:  doc.ID,
			Section:     cws.Section,
			Content:     content,
			ContentHash: contentHash,
			Embedding:   embedding,
			ChunkIndex:  cws.ChunkIndex,
			Metadata:    cws.Metadata,
		})
	}

	return chunks, nil
}

// documentLabel returns the label over which chunk identities are derived,
// matching the document column returned by similarity search.
func documentLabel(doc *model.Document) string {
	if doc.Source != "" {
		return doc.Source
	}
	return doc.Title
}

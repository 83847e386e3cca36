package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/cloudsync/rag/helper"
	"github.com/knights-analytics/hugot"
)

// SectionChunker creates a chunker that splits markdown-style text into
// sections at headings and into paragraphs within each section. Chunks
// carry the heading text as their section label; text before the first
// heading uses the baseSection.
func SectionChunker() ChunkFunc {
	return func(text string, baseSection string) ([]ChunkWithSection, error) {
		var chunks []ChunkWithSection
		section := baseSection
		chunkIdx := 0

		var paragraph []string
		flush := func() {
			if len(paragraph) == 0 {
				return
			}
			content := strings.TrimSpace(strings.Join(paragraph, "\n"))
			paragraph = nil
			if content == "" {
				return
			}
			idx := chunkIdx
			chunks = append(chunks, ChunkWithSection{
				Content:    content,
				Section:    section,
				ChunkIndex: &idx,
				Metadata:   make(map[string]interface{}),
			})
			chunkIdx++
		}

		for _, line := range strings.Split(text, "\n") {
			trimmed := strings.TrimSpace(line)
			if heading, ok := headingText(trimmed); ok {
				flush()
				section = heading
				continue
			}
			if trimmed == "" {
				flush()
				continue
			}
			paragraph = append(paragraph, trimmed)
		}
		flush()

		return chunks, nil
	}
}

func headingText(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
	if heading == "" {
		return "", false
	}
	return heading, true
}

// ParagraphChunker creates a chunker that splits by paragraphs
func ParagraphChunker() ChunkFunc {
	return func(text string, baseSection string) ([]ChunkWithSection, error) {
		paragraphs := strings.Split(text, "\n\n")

		var chunks []ChunkWithSection
		chunkIdx := 0

		for _, para := range paragraphs {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}

			idx := chunkIdx
			chunks = append(chunks, ChunkWithSection{
				Content:    para,
				Section:    baseSection,
				ChunkIndex: &idx,
				Metadata:   make(map[string]interface{}),
			})
			chunkIdx++
		}

		return chunks, nil
	}
}

// SentenceChunker creates a chunker that splits by sentences
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string, baseSection string) ([]ChunkWithSection, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		// Handle empty or whitespace-only text
		if strings.TrimSpace(text) == "" {
			return []ChunkWithSection{}, nil
		}

		sentences := splitSentences(text)

		var chunks []ChunkWithSection
		var currentChunk []string
		chunkIdx := 0

		appendChunk := func() {
			if len(currentChunk) == 0 {
				return
			}
			idx := chunkIdx
			chunks = append(chunks, ChunkWithSection{
				Content:    strings.Join(currentChunk, " "),
				Section:    baseSection,
				ChunkIndex: &idx,
				Metadata:   make(map[string]interface{}),
			})
			currentChunk = nil
			chunkIdx++
		}

		for _, sentence := range sentences {
			currentChunk = append(currentChunk, sentence)
			if len(currentChunk) >= maxSentencesPerChunk {
				appendChunk()
			}
		}
		appendChunk()

		return chunks, nil
	}
}

func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "! ", "!|")
	text = strings.ReplaceAll(text, "? ", "?|")
	text = strings.ReplaceAll(text, ". ", ".|")

	var sentences []string
	for _, s := range strings.Split(text, "|") {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// cosineSimilarity calculates the cosine similarity between two embedding vectors
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// SemanticChunker creates a chunker that uses embeddings to identify natural boundaries.
// It analyzes semantic similarity between sentences and creates chunks at points where similarity drops.
func SemanticChunker(maxChunkSize int, similarityThreshold float32) ChunkFunc {
	return func(text string, baseSection string) ([]ChunkWithSection, error) {
		// Prepare model (download if needed)
		modelName := "sentence-transformers/all-MiniLM-L6-v2"
		modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
		if err != nil {
			return nil, err
		}

		// Initialize hugot session with Go backend
		session, err := hugot.NewGoSession()
		if err != nil {
			return nil, fmt.Errorf("failed to create hugot session: %w", err)
		}
		defer session.Destroy()

		config := hugot.FeatureExtractionConfig{
			ModelPath: modelPath,
			Name:      "semantic-chunker-pipeline",
		}
		sentencePipeline, err := hugot.NewPipeline(session, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
		}

		sentences := splitSentences(text)
		if len(sentences) == 0 {
			return nil, fmt.Errorf("no sentences found in text")
		}

		embeddingResult, err := sentencePipeline.RunPipeline(sentences)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}

		embeddings := embeddingResult.Embeddings
		if len(embeddings) != len(sentences) {
			return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d sentences", len(embeddings), len(sentences))
		}

		// Group sentences based on semantic similarity
		var chunks []ChunkWithSection
		var currentChunk []string
		var currentEmbeddings [][]float32
		var currentLength int
		chunkIdx := 0

		appendChunk := func() {
			if len(currentChunk) == 0 {
				return
			}
			idx := chunkIdx
			chunks = append(chunks, ChunkWithSection{
				Content:    strings.Join(currentChunk, " "),
				Section:    baseSection,
				ChunkIndex: &idx,
				Metadata: map[string]interface{}{
					"embedding_model": modelName,
					"num_sentences":   len(currentChunk),
					"chunking_method": "semantic",
				},
			})
			currentChunk = nil
			currentEmbeddings = nil
			currentLength = 0
			chunkIdx++
		}

		for i, sentence := range sentences {
			if len(currentChunk) > 0 {
				// Compare the new sentence against the average embedding of the current chunk
				avgEmbedding := make([]float32, len(currentEmbeddings[0]))
				for _, emb := range currentEmbeddings {
					for j := range emb {
						avgEmbedding[j] += emb[j]
					}
				}
				for j := range avgEmbedding {
					avgEmbedding[j] /= float32(len(currentEmbeddings))
				}

				similarity := cosineSimilarity(avgEmbedding, embeddings[i])
				if similarity < similarityThreshold || currentLength+len(sentence) > maxChunkSize {
					appendChunk()
				}
			}

			currentChunk = append(currentChunk, sentence)
			currentEmbeddings = append(currentEmbeddings, embeddings[i])
			currentLength += len(sentence)
		}
		appendChunk()

		return chunks, nil
	}
}

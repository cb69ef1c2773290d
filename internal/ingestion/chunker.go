package ingestion

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/complyassist/backend/pkg/utils"
)

// TextChunk is an in-memory chunk before persistence.
type TextChunk struct {
	Index        int
	Content      string
	ContentHash  string
	TokenCount   int
	SectionLabel string
	Tags         []string
	Metadata     map[string]interface{}
}

type Chunker struct {
	chunkSize         int
	overlap           int
	minChunkSize      int
	emergencyMinChunk int
}

func NewChunker(chunkSize, overlap, minChunkSize, emergencyMinChunk int) *Chunker {
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:         chunkSize,
		overlap:           overlap,
		minChunkSize:      minChunkSize,
		emergencyMinChunk: emergencyMinChunk,
	}
}

// Split produces overlapping windows over the text. Emergency mode lowers
// the minimum viable chunk size so that even badly degraded extractions
// still yield at least one chunk.
func (c *Chunker) Split(text string, emergency bool) []TextChunk {
	minViable := c.minChunkSize
	if emergency {
		minViable = c.emergencyMinChunk
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minViable {
		return nil
	}

	runes := []rune(trimmed)
	step := c.chunkSize - c.overlap

	var chunks []TextChunk
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if len(content) < minViable && len(chunks) > 0 {
			// Tail fragment already covered by the previous window's overlap.
			break
		}

		chunks = append(chunks, newTextChunk(len(chunks), content))

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// SyntheticFallback builds the single chunk emitted when neither splitting
// nor cache reuse produced anything, so a completed document is never left
// with zero chunks.
func (c *Chunker) SyntheticFallback(title, reason string) TextChunk {
	content := fmt.Sprintf(
		"Document %q could not be divided into content chunks (%s). The document exists and may contain relevant material; manual review is required.",
		title, reason,
	)

	chunk := newTextChunk(0, content)
	chunk.Metadata["synthetic_fallback"] = true
	chunk.Metadata["fallback_reason"] = reason
	return chunk
}

func newTextChunk(index int, content string) TextChunk {
	return TextChunk{
		Index:       index,
		Content:     content,
		ContentHash: utils.HashContent(content),
		TokenCount:  countTokens(content),
		Tags:        detectTags(content),
		Metadata:    make(map[string]interface{}),
	}
}

// countTokens uses the prose tokenizer with tagging and entity extraction
// disabled. Falls back to a character estimate when tokenization fails.
func countTokens(text string) int {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return len(text) / 4
	}
	return len(doc.Tokens())
}

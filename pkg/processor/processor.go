package processor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/tutor/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var ErrNoExtractableText = errors.New("no extractable text")

// ConfigError reports chunk parameters that would never terminate or make no sense.
type ConfigError struct {
	Size    int
	Overlap int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid chunk parameters: size=%d overlap=%d (need size > 0 and 0 <= overlap < size)", e.Size, e.Overlap)
}

// NoExtractableTextError names the source that produced no text at all.
type NoExtractableTextError struct {
	SourceID string
}

func (e *NoExtractableTextError) Error() string {
	return fmt.Sprintf("%s: %v", e.SourceID, ErrNoExtractableText)
}

func (e *NoExtractableTextError) Unwrap() error { return ErrNoExtractableText }

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = DefaultChunkOverlap
	}
	if err := checkParams(config.ChunkSize, config.ChunkOverlap); err != nil {
		return Processor{}, err
	}

	return Processor{
		config: config,
	}, nil
}

func checkParams(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return &ConfigError{Size: size, Overlap: overlap}
	}
	return nil
}

// Split cuts text into windows of size runes, each starting size-overlap
// runes after the previous one. Blank text yields no chunks.
func Split(text string, size, overlap int) ([]string, error) {
	if err := checkParams(size, overlap); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}

// Process splits every page of doc and returns chunks carrying page hints.
// A document without any text is reported as NoExtractableTextError.
func (p *Processor) Process(doc models.Document) ([]*models.Chunk, error) {
	var chunks []*models.Chunk

	for _, page := range doc.Pages {
		parts, err := Split(sanitizeUTF8(page.Text), p.config.ChunkSize, p.config.ChunkOverlap)
		if err != nil {
			return nil, err
		}

		for _, part := range parts {
			chunk := &models.Chunk{
				ID:       fmt.Sprintf("%s_%d", doc.ID, len(chunks)),
				ClassID:  doc.ClassID,
				SourceID: doc.ID,
				Content:  part,
			}
			if page.Number > 0 {
				n := page.Number
				chunk.PageHint = &n
			}
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 {
		return nil, &NoExtractableTextError{SourceID: doc.ID}
	}
	return chunks, nil
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

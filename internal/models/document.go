package models

import "time"

// Document is a source file (PDF or HTML page) after text extraction.
type Document struct {
	ID       string
	ClassID  string
	Title    string
	Pages    []Page
	Metadata map[string]interface{}
}

// Page is the extracted text of one page. Number is 1-based; HTML documents
// have a single page.
type Page struct {
	Number int
	Text   string
}

// Chunk is the unit of retrieval. Content never changes after creation;
// the embedding is attached lazily together with the name of the strategy
// that produced it.
type Chunk struct {
	ID             string
	ClassID        string
	SourceID       string
	Content        string
	PageHint       *int
	Embedding      []float32
	EmbeddingModel string
}

// HasEmbeddingFrom reports whether the chunk carries a vector produced by model.
func (c *Chunk) HasEmbeddingFrom(model string) bool {
	return len(c.Embedding) > 0 && c.EmbeddingModel == model
}

// AttachEmbedding caches a vector on the chunk.
func (c *Chunk) AttachEmbedding(model string, vec []float32) {
	c.Embedding = vec
	c.EmbeddingModel = model
}

type RankedResult struct {
	Chunk *Chunk
	Score float64
}

// Source is a citation returned alongside an answer.
type Source struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeNoDocuments Outcome = "no_documents"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeUnavailable Outcome = "unavailable"
)

// Interaction is one entry of the question/answer history log.
type Interaction struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id,omitempty"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Outcome   Outcome   `json:"outcome"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

package types

import (
	"context"
	"time"

	"github.com/xhad/tutor/internal/models"
)

// Core interfaces
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

type DocumentStore interface {
	Find(ctx context.Context, classID string) ([]*models.Chunk, error)
	Append(ctx context.Context, classID string, chunk *models.Chunk) error
	// SaveEmbeddings stores vectors computed at query time on chunks that
	// already exist. Unknown ids are ignored.
	SaveEmbeddings(ctx context.Context, classID string, chunks []*models.Chunk) error
	// DeleteDocument drops every chunk of a source so it can be re-ingested.
	DeleteDocument(ctx context.Context, classID, sourceID string) error
	MarkProcessed(ctx context.Context, classID, documentID string) error
}

type InteractionLog interface {
	LogInteraction(ctx context.Context, interaction models.Interaction) error
}

type NotificationLog interface {
	RecordNotification(ctx context.Context, n models.Notification) error
	LastNotified(ctx context.Context, studentID, kind string) (time.Time, bool, error)
}

type Roster interface {
	InactiveStudents(ctx context.Context, cutoff time.Time) ([]models.Student, error)
}

// Store is everything the server needs from persistence.
type Store interface {
	DocumentStore
	InteractionLog
	NotificationLog
	Roster
	Close()
}

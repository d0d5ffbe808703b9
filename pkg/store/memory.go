package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xhad/tutor/internal/models"
)

// MemoryStore keeps everything in process. Used by tests and single-shot CLI
// runs.
type MemoryStore struct {
	mu            sync.RWMutex
	chunks        map[string][]*models.Chunk
	processed     map[string]map[string]time.Time
	interactions  []models.Interaction
	notifications []models.Notification
	students      map[string]models.Student
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		chunks:    make(map[string][]*models.Chunk),
		processed: make(map[string]map[string]time.Time),
		students:  make(map[string]models.Student),
	}
}

// Find returns copies of the stored chunks so callers can cache embeddings on
// them without racing other requests.
func (m *MemoryStore) Find(_ context.Context, classID string) ([]*models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.chunks[classID]
	out := make([]*models.Chunk, len(stored))
	for i, c := range stored {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, classID string, chunk *models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *chunk
	cp.ClassID = classID
	for i, c := range m.chunks[classID] {
		if c.ID == chunk.ID {
			m.chunks[classID][i] = &cp
			return nil
		}
	}
	m.chunks[classID] = append(m.chunks[classID], &cp)
	return nil
}

func (m *MemoryStore) SaveEmbeddings(_ context.Context, classID string, chunks []*models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]*models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for i, c := range m.chunks[classID] {
		src, ok := byID[c.ID]
		if !ok || len(src.Embedding) == 0 {
			continue
		}
		cp := *c
		cp.AttachEmbedding(src.EmbeddingModel, src.Embedding)
		m.chunks[classID][i] = &cp
	}
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, classID, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[classID][:0:0]
	for _, c := range m.chunks[classID] {
		if c.SourceID != sourceID {
			kept = append(kept, c)
		}
	}
	m.chunks[classID] = kept
	return nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, classID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processed[classID] == nil {
		m.processed[classID] = make(map[string]time.Time)
	}
	m.processed[classID][documentID] = time.Now().UTC()
	return nil
}

// Processed reports whether a document was fully ingested.
func (m *MemoryStore) Processed(classID, documentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[classID][documentID]
	return ok
}

func (m *MemoryStore) LogInteraction(_ context.Context, in models.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.interactions = append(m.interactions, in)
	if st, ok := m.students[in.StudentID]; ok && in.CreatedAt.After(st.LastActiveAt) {
		st.LastActiveAt = in.CreatedAt
		m.students[in.StudentID] = st
	}
	return nil
}

func (m *MemoryStore) Interactions() []models.Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Interaction(nil), m.interactions...)
}

func (m *MemoryStore) RecordNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MemoryStore) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Notification(nil), m.notifications...)
}

func (m *MemoryStore) LastNotified(_ context.Context, studentID, kind string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastNotified(m.notifications, studentID, kind)
}

func lastNotified(records []models.Notification, studentID, kind string) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, n := range records {
		if n.StudentID != studentID || n.Kind != kind || !n.Success {
			continue
		}
		if !found || n.SentAt.After(last) {
			last = n.SentAt
			found = true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) UpsertStudent(_ context.Context, st models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.ID] = st
	return nil
}

func (m *MemoryStore) InactiveStudents(_ context.Context, cutoff time.Time) ([]models.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return inactive(m.students, cutoff), nil
}

func inactive(students map[string]models.Student, cutoff time.Time) []models.Student {
	var out []models.Student
	for _, st := range students {
		if !st.LastActiveAt.After(cutoff) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].LastActiveAt.Before(out[j].LastActiveAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) Close() {}

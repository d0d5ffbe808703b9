package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xhad/tutor/internal/models"
)

const (
	artifactExt   = ".json"
	processedFile = ".processed"
	logDir        = "_log"
	rosterFile    = "students.json"
)

// Artifact is the on-disk form of one chunk. Other tooling reads these files,
// so the layout must stay {content, metadata: {source, page}}. The embedding
// fields are optional and omitted until a vector has been computed.
type Artifact struct {
	Content        string           `json:"content"`
	Metadata       ArtifactMetadata `json:"metadata"`
	Embedding      []float32        `json:"embedding,omitempty"`
	EmbeddingModel string           `json:"embedding_model,omitempty"`
}

type ArtifactMetadata struct {
	Source string `json:"source"`
	Page   *int   `json:"page"`
}

// FileStore keeps one JSON artifact per source document under
// <dir>/<classID>/<sourceID>.json, together with any embedding computed for
// the chunk so later queries do not embed it again. The history and email
// audit go to JSON lines files under <dir>/_log and the roster is read from
// <dir>/students.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, logDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || name == logDir ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

func (f *FileStore) classDir(classID string) (string, error) {
	if err := checkName("class id", classID); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, classID), nil
}

// ArtifactPath is where the chunks of sourceID are written.
func (f *FileStore) ArtifactPath(classID, sourceID string) (string, error) {
	dir, err := f.classDir(classID)
	if err != nil {
		return "", err
	}
	if err := checkName("source id", sourceID); err != nil {
		return "", err
	}
	return filepath.Join(dir, sourceID+artifactExt), nil
}

func (f *FileStore) Find(_ context.Context, classID string) ([]*models.Chunk, error) {
	dir, err := f.classDir(classID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(dir, "*"+artifactExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var chunks []*models.Chunk
	for _, path := range paths {
		sourceID := strings.TrimSuffix(filepath.Base(path), artifactExt)
		artifacts, err := readArtifacts(path)
		if err != nil {
			return nil, err
		}
		for i, a := range artifacts {
			source := a.Metadata.Source
			if source == "" {
				source = sourceID
			}
			c := &models.Chunk{
				ID:       fmt.Sprintf("%s_%d", sourceID, i),
				ClassID:  classID,
				SourceID: source,
				Content:  a.Content,
				PageHint: a.Metadata.Page,
			}
			if len(a.Embedding) > 0 && a.EmbeddingModel != "" {
				c.AttachEmbedding(a.EmbeddingModel, a.Embedding)
			}
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// Append adds the chunk to its source's artifact, replacing the entry at the
// same position when the chunk id is <sourceID>_<n>.
func (f *FileStore) Append(_ context.Context, classID string, chunk *models.Chunk) error {
	path, err := f.ArtifactPath(classID, chunk.SourceID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	artifacts, err := readArtifacts(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	entry := Artifact{
		Content:  chunk.Content,
		Metadata: ArtifactMetadata{Source: chunk.SourceID, Page: chunk.PageHint},
	}
	if len(chunk.Embedding) > 0 {
		entry.Embedding = chunk.Embedding
		entry.EmbeddingModel = chunk.EmbeddingModel
	}

	replaced := false
	for i := range artifacts {
		if chunk.ID == fmt.Sprintf("%s_%d", chunk.SourceID, i) {
			artifacts[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		artifacts = append(artifacts, entry)
	}

	return writeJSON(path, artifacts)
}

// SaveEmbeddings writes vectors back into the artifacts the chunks were read
// from. Chunk ids must have the <sourceID>_<n> form produced by Find.
func (f *FileStore) SaveEmbeddings(_ context.Context, classID string, chunks []*models.Chunk) error {
	bySource := make(map[string]map[int]*models.Chunk)
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		sourceID, n, ok := splitChunkID(c.ID)
		if !ok {
			continue
		}
		if bySource[sourceID] == nil {
			bySource[sourceID] = make(map[int]*models.Chunk)
		}
		bySource[sourceID][n] = c
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for sourceID, updates := range bySource {
		path, err := f.ArtifactPath(classID, sourceID)
		if err != nil {
			return err
		}
		artifacts, err := readArtifacts(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}

		changed := false
		for n, c := range updates {
			if n >= len(artifacts) || artifacts[n].Content != c.Content {
				continue
			}
			artifacts[n].Embedding = c.Embedding
			artifacts[n].EmbeddingModel = c.EmbeddingModel
			changed = true
		}
		if !changed {
			continue
		}
		if err := writeJSON(path, artifacts); err != nil {
			return fmt.Errorf("failed to save embeddings for %s: %w", sourceID, err)
		}
	}
	return nil
}

// DeleteDocument removes the artifact of sourceID. A missing artifact is not
// an error.
func (f *FileStore) DeleteDocument(_ context.Context, classID, sourceID string) error {
	path, err := f.ArtifactPath(classID, sourceID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact %s: %w", sourceID, err)
	}
	return nil
}

func splitChunkID(id string) (string, int, bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

func (f *FileStore) MarkProcessed(_ context.Context, classID, documentID string) error {
	dir, err := f.classDir(classID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s\t%s\n", documentID, time.Now().UTC().Format(time.RFC3339))
	return appendLine(filepath.Join(dir, processedFile), []byte(line))
}

func (f *FileStore) LogInteraction(_ context.Context, in models.Interaction) error {
	return f.appendJSONLine("interactions.jsonl", in)
}

func (f *FileStore) RecordNotification(_ context.Context, n models.Notification) error {
	return f.appendJSONLine("notifications.jsonl", n)
}

func (f *FileStore) LastNotified(_ context.Context, studentID, kind string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(filepath.Join(f.dir, logDir, "notifications.jsonl"))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer file.Close()

	var records []models.Notification
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var n models.Notification
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			return time.Time{}, false, fmt.Errorf("corrupt notification log: %w", err)
		}
		records = append(records, n)
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, false, err
	}
	return lastNotified(records, studentID, kind)
}

func (f *FileStore) InactiveStudents(_ context.Context, cutoff time.Time) ([]models.Student, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, rosterFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []models.Student
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rosterFile, err)
	}
	students := make(map[string]models.Student, len(list))
	for _, st := range list {
		students[st.ID] = st
	}
	return inactive(students, cutoff), nil
}

func (f *FileStore) Close() {}

func (f *FileStore) appendJSONLine(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return appendLine(filepath.Join(f.dir, logDir, name), append(data, '\n'))
}

func readArtifacts(path string) ([]Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifacts []Artifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", path, err)
	}
	return artifacts, nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func appendLine(path string, line []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(line)
	return err
}

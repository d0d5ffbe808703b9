package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/tutor/internal/models"
)

type PostgresConfig struct {
	ConnString  string
	TablePrefix string
}

// PostgresStore keeps chunks (with their optional pgvector embedding), the
// interaction history, the email audit and the student roster.
type PostgresStore struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

func NewPostgres(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) table(name string) string {
	return s.config.TablePrefix + name
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	// embedding has no fixed dimension: remote and local vectors live in the
	// same table, told apart by embedding_model.
	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT NOT NULL,
			class_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			content TEXT NOT NULL,
			page INTEGER,
			embedding vector,
			embedding_model TEXT,
			PRIMARY KEY (class_id, id)
		)`, s.table("chunks")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_class_idx ON %s (class_id, seq)`, s.table("chunks"), s.table("chunks")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			class_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (class_id, document_id)
		)`, s.table("processed_documents")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			class_id TEXT NOT NULL,
			student_id TEXT,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			outcome TEXT NOT NULL,
			sources JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table("interactions")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			email TEXT NOT NULL,
			message_id TEXT,
			success BOOLEAN NOT NULL,
			error TEXT,
			sent_at TIMESTAMPTZ NOT NULL
		)`, s.table("notifications")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_student_kind_idx ON %s (student_id, kind, sent_at)`, s.table("notifications"), s.table("notifications")),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			last_active_at TIMESTAMPTZ NOT NULL
		)`, s.table("students")),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, classID string) ([]*models.Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, class_id, source_id, content, page, embedding, embedding_model
		FROM %s
		WHERE class_id = $1
		ORDER BY seq`, s.table("chunks"))

	rows, err := s.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var (
			c     models.Chunk
			vec   *pgvector.Vector
			model *string
		)
		if err := rows.Scan(&c.ID, &c.ClassID, &c.SourceID, &c.Content, &c.PageHint, &vec, &model); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if vec != nil && model != nil {
			c.AttachEmbedding(*model, vec.Slice())
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

func (s *PostgresStore) Append(ctx context.Context, classID string, chunk *models.Chunk) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, class_id, source_id, content, page, embedding, embedding_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (class_id, id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			content = EXCLUDED.content,
			page = EXCLUDED.page,
			embedding = EXCLUDED.embedding,
			embedding_model = EXCLUDED.embedding_model`, s.table("chunks"))

	var vec interface{}
	var model interface{}
	if len(chunk.Embedding) > 0 {
		vec = pgvector.NewVector(chunk.Embedding)
		model = chunk.EmbeddingModel
	}

	_, err := s.pool.Exec(ctx, stmt,
		chunk.ID,
		classID,
		chunk.SourceID,
		chunk.Content,
		chunk.PageHint,
		vec,
		model,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// SaveEmbeddings updates the vectors of existing chunks in one batch. The
// content check keeps a vector from landing on a chunk replaced meanwhile.
func (s *PostgresStore) SaveEmbeddings(ctx context.Context, classID string, chunks []*models.Chunk) error {
	stmt := fmt.Sprintf(`
		UPDATE %s SET embedding = $3, embedding_model = $4
		WHERE class_id = $1 AND id = $2 AND content = $5`, s.table("chunks"))

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		batch.Queue(stmt, classID, c.ID, pgvector.NewVector(c.Embedding), c.EmbeddingModel, c.Content)
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save embeddings: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, classID, sourceID string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE class_id = $1 AND source_id = $2`, s.table("chunks"))
	if _, err := s.pool.Exec(ctx, stmt, classID, sourceID); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", sourceID, err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, classID, documentID string) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (class_id, document_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (class_id, document_id) DO UPDATE SET processed_at = EXCLUDED.processed_at`,
		s.table("processed_documents"))

	if _, err := s.pool.Exec(ctx, stmt, classID, documentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark document processed: %w", err)
	}
	return nil
}

// LogInteraction stores the record and refreshes the student's activity
// timestamp in one transaction.
func (s *PostgresStore) LogInteraction(ctx context.Context, in models.Interaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, class_id, student_id, query, answer, outcome, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table("interactions"))
	if _, err := tx.Exec(ctx, stmt,
		in.ID, in.ClassID, in.StudentID, in.Query, in.Answer, string(in.Outcome), in.Sources, in.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	if in.StudentID != "" {
		touch := fmt.Sprintf(`UPDATE %s SET last_active_at = GREATEST(last_active_at, $2) WHERE id = $1`, s.table("students"))
		if _, err := tx.Exec(ctx, touch, in.StudentID, in.CreatedAt); err != nil {
			return fmt.Errorf("failed to update student activity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordNotification(ctx context.Context, n models.Notification) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, student_id, kind, email, message_id, success, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table("notifications"))
	if _, err := s.pool.Exec(ctx, stmt,
		n.ID, n.StudentID, n.Kind, n.Email, n.MessageID, n.Success, n.Error, n.SentAt,
	); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// LastNotified returns the time of the latest successful notification of kind.
func (s *PostgresStore) LastNotified(ctx context.Context, studentID, kind string) (time.Time, bool, error) {
	query := fmt.Sprintf(`
		SELECT sent_at FROM %s
		WHERE student_id = $1 AND kind = $2 AND success
		ORDER BY sent_at DESC
		LIMIT 1`, s.table("notifications"))

	var sentAt time.Time
	err := s.pool.QueryRow(ctx, query, studentID, kind).Scan(&sentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query notifications: %w", err)
	}
	return sentAt, true, nil
}

func (s *PostgresStore) InactiveStudents(ctx context.Context, cutoff time.Time) ([]models.Student, error) {
	query := fmt.Sprintf(`
		SELECT id, email, name, last_active_at FROM %s
		WHERE last_active_at <= $1
		ORDER BY last_active_at`, s.table("students"))

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Student, error) {
		var st models.Student
		err := row.Scan(&st.ID, &st.Email, &st.Name, &st.LastActiveAt)
		return st, err
	})
}

// UpsertStudent adds or refreshes a roster entry.
func (s *PostgresStore) UpsertStudent(ctx context.Context, st models.Student) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, email, name, last_active_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			last_active_at = EXCLUDED.last_active_at`, s.table("students"))
	if _, err := s.pool.Exec(ctx, stmt, st.ID, st.Email, st.Name, st.LastActiveAt); err != nil {
		return fmt.Errorf("failed to upsert student: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

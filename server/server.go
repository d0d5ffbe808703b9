// Package server exposes the tutor over HTTP and a websocket channel.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/extract"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/processor"
	"github.com/xhad/tutor/pkg/tutor"
)

type Message struct {
	Type      string      `json:"type"`
	Content   string      `json:"content"`
	ClassID   string      `json:"class_id,omitempty"`
	ClassName string      `json:"class_name,omitempty"`
	StudentID string      `json:"student_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxUploadBytes bounds multipart document uploads.
	MaxUploadBytes int64
	// UploadDir holds uploads while they are ingested. Empty uses the OS temp dir.
	UploadDir string
	// DocumentRoot is the only directory "path" requests may read from,
	// given relative to it. Empty disables path requests.
	DocumentRoot string
	// Crawler is the template for crawl requests; BaseURL is set per request.
	Crawler extract.CrawlerConfig
	// AllowedOrigins restricts websocket origins. Empty allows any origin.
	AllowedOrigins []string
}

type Server struct {
	config   ServerConfig
	tutor    *tutor.Tutor
	ingester *ingest.Ingester
	history  types.InteractionLog
	upgrader websocket.Upgrader
}

func NewWithConfig(config ServerConfig, t *tutor.Tutor, ingester *ingest.Ingester, history types.InteractionLog) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 32 << 20
	}

	s := &Server{
		config:   config,
		tutor:    t,
		ingester: ingester,
		history:  history,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/classes/{classID}/ask", s.handleAsk)
	mux.HandleFunc("POST /api/classes/{classID}/documents", s.handleDocuments)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.config.Port).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// answer runs one question and records it in the history. A history failure
// is logged; the student still gets the answer.
func (s *Server) answer(ctx context.Context, req tutor.Request) tutor.Response {
	resp := s.tutor.Answer(ctx, req)
	if s.history != nil {
		if err := s.history.LogInteraction(ctx, tutor.NewInteraction(req, resp)); err != nil {
			log.Error().Err(err).Str("class", req.ClassID).Msg("failed to log interaction")
		}
	}
	return resp
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req tutor.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ClassID = r.PathValue("classID")
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	writeJSON(w, http.StatusOK, s.answer(r.Context(), req))
}

type documentRequest struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type documentResponse struct {
	Documents []ingest.Report `json:"documents"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	classID := r.PathValue("classID")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		report, err := s.ingestUpload(w, r, classID)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentResponse{Documents: []ingest.Report{report}})
		return
	}

	var req documentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Path != "":
		path, err := s.documentPath(req.Path)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		report, err := s.ingester.IngestFile(r.Context(), classID, path)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentResponse{Documents: []ingest.Report{report}})
	case req.URL != "":
		reports, err := s.crawl(r.Context(), classID, req.URL, nil)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentResponse{Documents: reports})
	default:
		writeError(w, http.StatusBadRequest, "path, url or a file upload is required")
	}
}

func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request, classID string) (ingest.Report, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return ingest.Report{}, &requestError{msg: fmt.Sprintf("invalid upload: %v", err)}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.Report{}, &requestError{msg: "file field is required"}
	}
	defer file.Close()

	dir, err := os.MkdirTemp(s.config.UploadDir, "upload-")
	if err != nil {
		return ingest.Report{}, fmt.Errorf("failed to create upload directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, extract.SourceID(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		return ingest.Report{}, err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return ingest.Report{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return ingest.Report{}, err
	}

	return s.ingester.IngestFile(r.Context(), classID, path)
}

func (s *Server) crawl(ctx context.Context, classID, baseURL string, onProgress func(string)) ([]ingest.Report, error) {
	config := s.config.Crawler
	config.BaseURL = baseURL
	config.OnProgress = onProgress

	crawler, err := extract.NewCrawler(config)
	if err != nil {
		return nil, &requestError{msg: err.Error()}
	}
	return s.ingester.IngestSite(ctx, classID, crawler)
}

// documentPath resolves a client supplied path under DocumentRoot. Symlinks
// are followed before the check so a link cannot point outside the root.
func (s *Server) documentPath(name string) (string, error) {
	if s.config.DocumentRoot == "" {
		return "", &requestError{status: http.StatusForbidden, msg: "server-side paths are disabled; upload the file instead"}
	}
	if filepath.IsAbs(name) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", &requestError{status: http.StatusForbidden, msg: "path must stay inside the document root"}
	}

	root, err := filepath.EvalSymlinks(s.config.DocumentRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve document root: %w", err)
	}
	path, err := filepath.EvalSymlinks(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return "", err
	}
	if rel, err := filepath.Rel(root, path); err != nil || !filepath.IsLocal(rel) {
		return "", &requestError{status: http.StatusForbidden, msg: "path must stay inside the document root"}
	}
	return path, nil
}

// requestError is a client mistake. status defaults to 400.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func writeIngestError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		status := reqErr.status
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeError(w, status, reqErr.msg)
	case errors.Is(err, processor.ErrNoExtractableText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "document not found")
	default:
		log.Error().Err(err).Msg("document ingestion failed")
		writeError(w, http.StatusInternalServerError, "document ingestion failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		s.handleMessage(r.Context(), conn, msg)
	}
}

// handleMessage serves one websocket message. Messages on a connection are
// handled in order, so writes never overlap.
func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	if msg.ClassID == "" {
		s.sendMessage(conn, Message{Type: "error", Content: "class_id is required"})
		return
	}

	switch msg.Type {
	case "ask", "":
		if strings.TrimSpace(msg.Content) == "" {
			s.sendMessage(conn, Message{Type: "error", Content: "query is required"})
			return
		}
		resp := s.answer(ctx, tutor.Request{
			ClassID:   msg.ClassID,
			ClassName: msg.ClassName,
			StudentID: msg.StudentID,
			Query:     msg.Content,
		})
		s.sendMessage(conn, Message{Type: "response", Content: resp.Answer, ClassID: msg.ClassID, Data: resp})
	case "crawl":
		s.sendMessage(conn, Message{Type: "status", Content: fmt.Sprintf("Processing URL: %s", msg.Content)})
		pages := 0
		reports, err := s.crawl(ctx, msg.ClassID, msg.Content, func(url string) {
			pages++
			s.sendMessage(conn, Message{Type: "progress", Content: fmt.Sprintf("Fetched %d pages", pages)})
		})
		if err != nil {
			log.Error().Err(err).Str("url", msg.Content).Msg("crawl failed")
			s.sendMessage(conn, Message{Type: "error", Content: "could not ingest the requested pages"})
			return
		}
		s.sendMessage(conn, Message{Type: "status", Content: fmt.Sprintf("Ingested %d documents", len(reports)), Data: reports})
	default:
		s.sendMessage(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Msg("failed to send websocket message")
	}
}

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/cache"
	"github.com/docsmith-ai/docsmith/pkg/config"
	"github.com/docsmith-ai/docsmith/pkg/models"
	"github.com/docsmith-ai/docsmith/pkg/queue"
)

// Server exposes the generation queue over HTTP: a queue endpoint for
// fire-and-poll callers and an SSE stream for the wizard UI.
type Server struct {
	cfg   *config.Config
	queue *queue.Queue
	cache *cache.Store
	mux   *http.ServeMux
}

// New creates a Server wired with its dependencies.
func New(cfg *config.Config, q *queue.Queue, store *cache.Store) *Server {
	s := &Server{
		cfg:   cfg,
		queue: q,
		cache: store,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/generate-queue", s.handleGenerateQueue)
	s.mux.HandleFunc("/generate-stream", s.handleGenerateStream)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("docsmith listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// GenerateRequest is the body of POST /generate-queue and
// POST /generate-stream.
type GenerateRequest struct {
	ProjectData models.ProjectData `json:"projectData"`
	SessionID   string             `json:"sessionId"`
	Documents   []string           `json:"documents,omitempty"`
}

// QueuedDoc identifies one accepted queue item in a response.
type QueuedDoc struct {
	DocumentType models.DocumentType `json:"documentType"`
	QueueID      string              `json:"queueId"`
}

// GenerateResponse is the body of POST /generate-queue.
type GenerateResponse struct {
	Success bool               `json:"success"`
	Queued  []QueuedDoc        `json:"queued"`
	Status  models.QueueStatus `json:"status"`
	Message string             `json:"message"`
}

// StatusResponse is the body of GET /generate-queue.
type StatusResponse struct {
	Status  models.QueueStatus `json:"status"`
	Message string             `json:"message"`
}

func (s *Server) handleGenerateQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodGet:
		s.handleStatus(w)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	req, docs, ok := s.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	var queued []QueuedDoc
	var cached int
	for _, docType := range docs {
		key := cache.Key(docType, req.ProjectData)
		if _, hit := s.cache.Get(key); hit {
			cached++
			continue
		}
		id, _ := s.queue.Enqueue(docType, req.ProjectData, req.SessionID)
		queued = append(queued, QueuedDoc{DocumentType: docType, QueueID: id})
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success: true,
		Queued:  queued,
		Status:  s.queue.Status(),
		Message: fmt.Sprintf("%d document(s) queued, %d already cached", len(queued), cached),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter) {
	st := s.queue.Status()
	state := "idle"
	if st.Processing {
		state = "processing"
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  st,
		Message: fmt.Sprintf("%d item(s) queued, %s, %d cached document(s)", st.QueueLength, state, st.CacheSize),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// decodeGenerateRequest parses and validates the shared request body.
// An empty documents list means every known document type; an empty
// session id gets a generated one.
func (s *Server) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (GenerateRequest, []models.DocumentType, bool) {
	var req GenerateRequest

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return req, nil, false
	}
	r.Body.Close()

	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return req, nil, false
	}
	if req.ProjectData.Idea == "" && req.ProjectData.Template == "" {
		writeJSONError(w, http.StatusBadRequest, "projectData requires an idea or a template")
		return req, nil, false
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	docs, err := resolveDocuments(req.Documents)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return req, nil, false
	}
	return req, docs, true
}

// resolveDocuments maps requested document names to types, de-duplicated
// in request order.
func resolveDocuments(names []string) ([]models.DocumentType, error) {
	if len(names) == 0 {
		return models.AllDocumentTypes(), nil
	}
	seen := make(map[models.DocumentType]bool, len(names))
	docs := make([]models.DocumentType, 0, len(names))
	for _, name := range names {
		docType, err := models.ParseDocumentType(name)
		if err != nil {
			return nil, err
		}
		if seen[docType] {
			continue
		}
		seen[docType] = true
		docs = append(docs, docType)
	}
	return docs, nil
}

// generateSessionID creates a session ID like sess_20260828_a3f9c2.
func generateSessionID() string {
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("sess_%s_%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/cache"
	"github.com/docsmith-ai/docsmith/pkg/models"
	"github.com/docsmith-ai/docsmith/pkg/queue"
)

// handleGenerateStream serves POST /generate-stream: one SSE connection
// that accepts a generation request and streams progress until every
// requested document reaches a terminal state. Completion and failure
// arrive by subscription to the queue broadcaster; the ticker only
// produces deduplicated status snapshots. A client disconnect ends the
// stream but never the queued work, so the cache is still populated for
// the next caller.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, docs, ok := s.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev models.StreamEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("stream: marshal event: %v", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	// The stream must always reach a terminal event; the deadline bounds
	// worst-case retry pile-ups.
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Stream.Deadline)
	defer cancel()

	// Subscribe before enqueueing so no completion can slip past.
	events, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()

	send(models.StreamEvent{Type: models.EventStart})

	wanted := make(map[string]models.DocumentType, len(docs))
	var results []models.StreamResult

	for _, docType := range docs {
		key := cache.Key(docType, req.ProjectData)
		if content, hit := s.cache.Get(key); hit {
			results = append(results, models.StreamResult{DocumentType: docType, Content: content, FromCache: true})
			send(models.StreamEvent{
				Type:         models.EventComplete,
				DocumentType: docType,
				Content:      content,
				FromCache:    true,
			})
			continue
		}
		id, _ := s.queue.Enqueue(docType, req.ProjectData, req.SessionID)
		wanted[key] = docType
		send(models.StreamEvent{Type: models.EventQueued, DocumentType: docType, QueueID: id})
	}

	ticker := time.NewTicker(s.cfg.Stream.PollInterval)
	defer ticker.Stop()

	lastLength := -1
	lastProcessing := false

	for len(wanted) > 0 {
		select {
		case <-ctx.Done():
			if r.Context().Err() != nil {
				// Client went away; queued items keep processing.
				log.Printf("stream: client disconnected with %d document(s) outstanding", len(wanted))
				return
			}
			send(models.StreamEvent{Type: models.EventError, Message: "stream deadline exceeded"})
			return

		case <-ticker.C:
			st := s.queue.Status()
			if st.QueueLength == lastLength && st.Processing == lastProcessing {
				continue
			}
			lastLength = st.QueueLength
			lastProcessing = st.Processing
			send(models.StreamEvent{
				Type:        models.EventStatus,
				QueueLength: st.QueueLength,
				Processing:  st.Processing,
			})

		case qe := <-events:
			docType, mine := wanted[qe.Key]
			if !mine {
				continue
			}
			switch qe.Type {
			case queue.EventComplete:
				delete(wanted, qe.Key)
				results = append(results, models.StreamResult{
					DocumentType: docType,
					Content:      qe.Content,
					FromCache:    qe.FromCache,
				})
				send(models.StreamEvent{
					Type:         models.EventComplete,
					DocumentType: docType,
					QueueID:      qe.QueueID,
					Content:      qe.Content,
					FromCache:    qe.FromCache,
				})
			case queue.EventFailed:
				delete(wanted, qe.Key)
				results = append(results, models.StreamResult{DocumentType: docType, Error: qe.Err})
				send(models.StreamEvent{
					Type:         models.EventDocumentFailed,
					DocumentType: docType,
					QueueID:      qe.QueueID,
					Message:      qe.Err,
				})
			}
		}
	}

	send(models.StreamEvent{Type: models.EventAllComplete, Results: results})
}

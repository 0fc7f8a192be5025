package models

// Stream event types emitted over SSE, in the order a client can expect
// them: start, then queued/status/complete/document_failed interleaved,
// then exactly one of all_complete or error.
const (
	EventStart          = "start"
	EventQueued         = "queued"
	EventStatus         = "status"
	EventComplete       = "complete"
	EventDocumentFailed = "document_failed"
	EventAllComplete    = "all_complete"
	EventError          = "error"
)

// StreamEvent is the wire shape of one SSE data payload. Fields are
// populated per event type; unused fields are omitted.
type StreamEvent struct {
	Type         string         `json:"type"`
	DocumentType DocumentType   `json:"document_type,omitempty"`
	QueueID      string         `json:"queue_id,omitempty"`
	Content      string         `json:"content,omitempty"`
	FromCache    bool           `json:"from_cache,omitempty"`
	QueueLength  int            `json:"queue_length,omitempty"`
	Processing   bool           `json:"processing,omitempty"`
	Message      string         `json:"message,omitempty"`
	Results      []StreamResult `json:"results,omitempty"`
}

// StreamResult is one document's terminal outcome inside all_complete.
type StreamResult struct {
	DocumentType DocumentType `json:"document_type"`
	Content      string       `json:"content,omitempty"`
	FromCache    bool         `json:"from_cache,omitempty"`
	Error        string       `json:"error,omitempty"`
}

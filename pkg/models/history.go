package models

import "time"

// Generation outcomes recorded in the history log.
const (
	OutcomeSuccess = "success"
	OutcomeCached  = "cached"
	OutcomeFailed  = "failed"
)

// GenerationRecord tracks one terminal generation outcome.
type GenerationRecord struct {
	ID           int64        `json:"id"`
	QueueID      string       `json:"queue_id"`
	SessionID    string       `json:"session_id,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	Outcome      string       `json:"outcome"`
	Attempts     int          `json:"attempts"`
	LatencyMs    int64        `json:"latency_ms"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// GenerationSummary aggregates outcomes per document type.
type GenerationSummary struct {
	DocumentType DocumentType `json:"document_type"`
	Total        int64        `json:"total"`
	Succeeded    int64        `json:"succeeded"`
	Cached       int64        `json:"cached"`
	Failed       int64        `json:"failed"`
	AvgLatencyMs int64        `json:"avg_latency_ms"`
}

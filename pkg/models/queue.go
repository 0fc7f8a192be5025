package models

import "time"

// QueueItem is a single pending generation request. It is owned
// exclusively by the queue from enqueue until a terminal state.
type QueueItem struct {
	ID           string       `json:"id"`
	DocumentType DocumentType `json:"document_type"`
	ProjectData  ProjectData  `json:"project_data"`
	Priority     int          `json:"priority"`
	Timestamp    time.Time    `json:"timestamp"`
	RetryCount   int          `json:"retry_count"`
	SessionID    string       `json:"session_id"`
}

// PendingItem is the status-endpoint view of a queued item.
type PendingItem struct {
	ID           string       `json:"id"`
	DocumentType DocumentType `json:"document_type"`
	Priority     int          `json:"priority"`
	RetryCount   int          `json:"retry_count,omitempty"`
}

// QueueStatus is a point-in-time snapshot of the queue and cache.
type QueueStatus struct {
	QueueLength int           `json:"queue_length"`
	Processing  bool          `json:"processing"`
	CacheSize   int           `json:"cache_size"`
	NextItems   []PendingItem `json:"next_items"`
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

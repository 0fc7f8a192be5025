package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/cache"
	"github.com/docsmith-ai/docsmith/pkg/history"
	"github.com/docsmith-ai/docsmith/pkg/models"
	"github.com/docsmith-ai/docsmith/pkg/prompt"
	"github.com/docsmith-ai/docsmith/pkg/upstream"
)

// Completer produces one completion per call. Satisfied by
// *upstream.Client; tests substitute doubles.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Options configures a Queue.
type Options struct {
	// MaxRetries is how many times a failed item is re-queued before
	// being dropped. An item is attempted MaxRetries+1 times total.
	MaxRetries int
	// ItemDelay is the pause between processed items, a global rate
	// limit on the upstream API. Skipped when the queue drains empty.
	ItemDelay time.Duration
	// History receives terminal outcomes. Optional.
	History history.Recorder
}

// Queue is a priority-ordered generation queue drained by a single
// processing loop, so at most one upstream call is ever in flight.
// The loop is armed by Enqueue and exits when the queue is empty.
type Queue struct {
	cache      *cache.Store
	client     Completer
	events     *Broadcaster
	recorder   history.Recorder
	maxRetries int
	itemDelay  time.Duration

	mu         sync.Mutex
	items      []*models.QueueItem
	pending    map[string]string // cache key -> queue id, covers queued and in-flight items
	processing bool
	closed     bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Queue draining into the given cache and completer.
func New(store *cache.Store, client Completer, opts Options) *Queue {
	return &Queue{
		cache:      store,
		client:     client,
		events:     newBroadcaster(),
		recorder:   opts.History,
		maxRetries: opts.MaxRetries,
		itemDelay:  opts.ItemDelay,
		pending:    make(map[string]string),
		done:       make(chan struct{}),
	}
}

// Subscribe registers a listener for queue events.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	return q.events.Subscribe()
}

// Enqueue accepts one generation request and returns its queue id
// without blocking. A request whose cache key matches an item already
// queued or in flight joins that item instead: the returned id is the
// existing item's and the second return value is false.
func (q *Queue) Enqueue(docType models.DocumentType, data models.ProjectData, sessionID string) (string, bool) {
	key := cache.Key(docType, data)

	q.mu.Lock()
	if id, ok := q.pending[key]; ok {
		q.mu.Unlock()
		return id, false
	}

	item := &models.QueueItem{
		ID:           fmt.Sprintf("%s_%s_%d", docType, sessionID, time.Now().UnixNano()),
		DocumentType: docType,
		ProjectData:  data,
		Priority:     docType.Priority(),
		Timestamp:    time.Now(),
		SessionID:    sessionID,
	}
	q.insertLocked(item)
	q.pending[key] = item.ID

	start := false
	if !q.processing && !q.closed {
		q.processing = true
		start = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.events.publish(Event{
		Type:         EventQueued,
		QueueID:      item.ID,
		Key:          key,
		DocumentType: docType,
		SessionID:    sessionID,
	})

	if start {
		go q.processLoop()
	}
	return item.ID, true
}

// insertLocked places item before the first existing item with strictly
// lower priority, preserving FIFO order among equal priorities.
func (q *Queue) insertLocked(item *models.QueueItem) {
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.Priority < item.Priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
}

// Status returns a snapshot of the queue and cache.
func (q *Queue) Status() models.QueueStatus {
	q.mu.Lock()
	n := len(q.items)
	if n > 5 {
		n = 5
	}
	next := make([]models.PendingItem, 0, n)
	for _, it := range q.items[:n] {
		next = append(next, models.PendingItem{
			ID:           it.ID,
			DocumentType: it.DocumentType,
			Priority:     it.Priority,
			RetryCount:   it.RetryCount,
		})
	}
	st := models.QueueStatus{
		QueueLength: len(q.items),
		Processing:  q.processing,
		NextItems:   next,
	}
	q.mu.Unlock()

	st.CacheSize = q.cache.Len()
	return st
}

// Close stops accepting work and waits for the processing loop to
// finish its current item.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
}

func (q *Queue) processLoop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			q.processing = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.processItem(item)

		q.mu.Lock()
		empty := len(q.items) == 0
		q.mu.Unlock()
		if empty {
			continue
		}
		select {
		case <-time.After(q.itemDelay):
		case <-q.done:
		}
	}
}

// processItem drives one item to a cache hit, a completion, a retry
// re-queue, or a terminal failure. Any failure is local to the item;
// the loop keeps draining.
func (q *Queue) processItem(item *models.QueueItem) {
	key := cache.Key(item.DocumentType, item.ProjectData)
	start := time.Now()

	if content, ok := q.cache.Get(key); ok {
		q.finish(item, key, content, true, start)
		return
	}

	messages, err := prompt.Build(item.DocumentType, item.ProjectData)
	if err != nil {
		q.fail(item, key, err, start)
		return
	}

	content, err := q.client.Complete(context.Background(), messages)
	if err != nil {
		if item.RetryCount < q.maxRetries && upstream.Retryable(err) {
			item.RetryCount++
			item.Timestamp = time.Now()
			q.mu.Lock()
			// Retries join the tail and lose their original slot.
			q.items = append(q.items, item)
			q.mu.Unlock()
			log.Printf("queue: %s attempt %d failed, retrying: %v", item.ID, item.RetryCount, err)
			return
		}
		q.fail(item, key, err, start)
		return
	}

	q.cache.Put(key, content)
	q.finish(item, key, content, false, start)
}

func (q *Queue) finish(item *models.QueueItem, key, content string, fromCache bool, start time.Time) {
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()

	q.events.publish(Event{
		Type:         EventComplete,
		QueueID:      item.ID,
		Key:          key,
		DocumentType: item.DocumentType,
		SessionID:    item.SessionID,
		Content:      content,
		FromCache:    fromCache,
	})

	outcome := models.OutcomeSuccess
	if fromCache {
		outcome = models.OutcomeCached
	}
	q.record(item, outcome, "", start)
}

func (q *Queue) fail(item *models.QueueItem, key string, cause error, start time.Time) {
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()

	log.Printf("queue: %s failed after %d attempts: %v", item.ID, item.RetryCount+1, cause)

	q.events.publish(Event{
		Type:         EventFailed,
		QueueID:      item.ID,
		Key:          key,
		DocumentType: item.DocumentType,
		SessionID:    item.SessionID,
		Err:          cause.Error(),
	})

	q.record(item, models.OutcomeFailed, cause.Error(), start)
}

func (q *Queue) record(item *models.QueueItem, outcome, errMsg string, start time.Time) {
	if q.recorder == nil {
		return
	}
	rec := models.GenerationRecord{
		QueueID:      item.ID,
		SessionID:    item.SessionID,
		DocumentType: item.DocumentType,
		Outcome:      outcome,
		Attempts:     item.RetryCount + 1,
		LatencyMs:    time.Since(start).Milliseconds(),
		Error:        errMsg,
		CreatedAt:    time.Now().UTC(),
	}
	if err := q.recorder.Record(context.Background(), rec); err != nil {
		log.Printf("queue: record history: %v", err)
	}
}

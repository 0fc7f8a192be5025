package queue

import (
	"log"
	"sync"

	"github.com/docsmith-ai/docsmith/pkg/models"
)

// Queue event types carried on the broadcast channel.
const (
	EventQueued   = "queued"
	EventComplete = "complete"
	EventFailed   = "failed"
)

// Event describes one queue state transition. Key is the item's cache
// key, which lets subscribers match completions for requests that were
// de-duplicated onto an item another caller enqueued.
type Event struct {
	Type         string
	QueueID      string
	Key          string
	DocumentType models.DocumentType
	SessionID    string
	Content      string
	FromCache    bool
	Err          string
}

const subscriberBuffer = 64

// Broadcaster fans queue events out to any number of subscribers.
// Publishing never blocks the processing loop: a subscriber whose
// buffer is full misses that event.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of queue events and a cancel function.
// Cancel must be called when the subscriber is done; it is safe to call
// more than once.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("queue: subscriber %d lagging, dropped %s event for %s", id, ev.Type, ev.DocumentType)
		}
	}
}

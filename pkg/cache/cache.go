package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/models"
)

// Store is an in-memory TTL cache of generated document text. Entries
// expire lazily on read and eagerly via a background sweep; a bounded
// LRU keeps memory use flat under sustained traffic. The cache is
// process-local and disposable: nothing survives a restart.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = most recently used
	ttl     time.Duration
	max     int

	hits   atomic.Int64
	misses atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

type entry struct {
	key       string
	content   string
	createdAt time.Time
	elem      *list.Element
}

// Key computes the cache key for one (documentType, projectData) pair:
// a SHA-256 over the document type, the template-or-idea text, and the
// canonically serialized stack selection. json.Marshal sorts map keys,
// so equal stacks always serialize identically.
func Key(docType models.DocumentType, data models.ProjectData) string {
	h := sha256.New()
	h.Write([]byte(docType))
	h.Write([]byte{0})
	h.Write([]byte(data.Source()))
	h.Write([]byte{0})
	stack, _ := json.Marshal(data.Stack)
	h.Write(stack)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// New creates a Store and starts its sweep loop. maxEntries <= 0 means
// unbounded; sweepInterval <= 0 disables the background sweep.
func New(ttl time.Duration, maxEntries int, sweepInterval time.Duration) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		max:     maxEntries,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Get returns the cached content for key. Expired entries are deleted
// on read and reported as misses.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return "", false
	}
	if time.Since(e.createdAt) > s.ttl {
		s.removeLocked(e)
		s.misses.Add(1)
		return "", false
	}

	s.order.MoveToFront(e.elem)
	s.hits.Add(1)
	return e.content, true
}

// Put inserts or overwrites an entry with the current timestamp,
// evicting the least recently used entry if the store is full.
func (s *Store) Put(key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.content = content
		e.createdAt = time.Now()
		s.order.MoveToFront(e.elem)
		return
	}

	e := &entry{key: key, content: content, createdAt: time.Now()}
	e.elem = s.order.PushFront(e)
	s.entries[key] = e

	if s.max > 0 && len(s.entries) > s.max {
		if back := s.order.Back(); back != nil {
			s.removeLocked(back.Value.(*entry))
		}
	}
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for _, e := range s.entries {
		if time.Since(e.createdAt) > s.ttl {
			s.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Purge removes all entries.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.order.Init()
}

// Stats returns cache performance counters.
func (s *Store) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(s.Len()),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}
}

// Close stops the sweep loop.
func (s *Store) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Store) removeLocked(e *entry) {
	delete(s.entries, e.key)
	s.order.Remove(e.elem)
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

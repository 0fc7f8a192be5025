package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/cache"
	"github.com/docsmith-ai/docsmith/pkg/models"
	"github.com/docsmith-ai/docsmith/pkg/upstream"
)

// fakeCompleter is a scriptable Completer that records call counts and
// detects overlapping invocations.
type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	inFlight bool
	overlap  bool
	gate     chan struct{} // when non-nil, each call blocks until the gate yields
	respond  func(call int, messages []models.ChatMessage) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	f.mu.Lock()
	if f.inFlight {
		f.overlap = true
	}
	f.inFlight = true
	f.calls++
	call := f.calls
	gate := f.gate
	respond := f.respond
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	if respond != nil {
		return respond(call, messages)
	}
	return fmt.Sprintf("generated %d", call), nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestQueue(t *testing.T, client Completer, maxRetries int) (*Queue, *cache.Store) {
	t.Helper()
	store := cache.New(time.Hour, 0, 0)
	t.Cleanup(store.Close)
	q := New(store, client, Options{MaxRetries: maxRetries})
	t.Cleanup(q.Close)
	return q, store
}

func project(idea string) models.ProjectData {
	return models.ProjectData{Idea: idea, Stack: map[string]string{"backend": "go"}}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

// nextTerminal receives events until a complete or failed event arrives.
func nextTerminal(t *testing.T, events <-chan Event) Event {
	t.Helper()
	for {
		select {
		case ev := <-events:
			if ev.Type == EventComplete || ev.Type == EventFailed {
				return ev
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	fake := &fakeCompleter{gate: make(chan struct{})}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	// The first item is picked up immediately and blocks in flight.
	q.Enqueue(models.DocReadme, project("p"), "s1")
	waitFor(t, func() bool { return fake.callCount() == 1 }, "first item never entered processing")

	// Enqueued while the readme is in flight: the later, higher-priority
	// PRD must still be serviced before the task list.
	q.Enqueue(models.DocTaskList, project("p"), "s1")
	q.Enqueue(models.DocPRD, project("p"), "s1")

	close(fake.gate)

	var order []models.DocumentType
	for len(order) < 3 {
		order = append(order, nextTerminal(t, events).DocumentType)
	}

	want := []models.DocumentType{models.DocReadme, models.DocPRD, models.DocTaskList}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("processing order %v, want %v", order, want)
		}
	}
}

func TestFIFOAmongEqualPriorities(t *testing.T) {
	fake := &fakeCompleter{
		gate: make(chan struct{}),
		respond: func(call int, messages []models.ChatMessage) (string, error) {
			return messages[1].Content, nil
		},
	}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	q.Enqueue(models.DocReadme, project("idea A"), "s1")
	waitFor(t, func() bool { return fake.callCount() == 1 }, "first item never entered processing")

	q.Enqueue(models.DocReadme, project("idea B"), "s1")
	q.Enqueue(models.DocReadme, project("idea C"), "s1")

	close(fake.gate)

	var contents []string
	for len(contents) < 3 {
		contents = append(contents, nextTerminal(t, events).Content)
	}

	for i, want := range []string{"idea A", "idea B", "idea C"} {
		if !strings.Contains(contents[i], want) {
			t.Fatalf("completion %d = %q, want it to mention %q (order %v)", i, contents[i], want, contents)
		}
	}
}

func TestCacheShortCircuit(t *testing.T) {
	fake := &fakeCompleter{}
	q, store := newTestQueue(t, fake, 2)

	data := project("cached project")
	store.Put(cache.Key(models.DocBuildDoc, data), "cached content")

	events, cancel := q.Subscribe()
	defer cancel()

	q.Enqueue(models.DocBuildDoc, data, "s1")

	ev := nextTerminal(t, events)
	if ev.Type != EventComplete {
		t.Fatalf("expected complete, got %s (%s)", ev.Type, ev.Err)
	}
	if !ev.FromCache {
		t.Error("expected fromCache")
	}
	if ev.Content != "cached content" {
		t.Errorf("unexpected content: %s", ev.Content)
	}
	if fake.callCount() != 0 {
		t.Errorf("cache hit must not call upstream, got %d calls", fake.callCount())
	}
}

func TestRetryExhausted(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(call int, messages []models.ChatMessage) (string, error) {
			if call <= 3 {
				return "", &upstream.StatusError{StatusCode: 500, Body: "boom"}
			}
			return "recovered", nil
		},
	}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	q.Enqueue(models.DocUISpecs, project("failing"), "s1")

	ev := nextTerminal(t, events)
	if ev.Type != EventFailed {
		t.Fatalf("expected failed, got %s", ev.Type)
	}
	if ev.DocumentType != models.DocUISpecs {
		t.Errorf("unexpected document type %s", ev.DocumentType)
	}
	if fake.callCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", fake.callCount())
	}

	// The loop keeps draining after a terminal failure.
	q.Enqueue(models.DocReadme, project("healthy"), "s1")
	ev = nextTerminal(t, events)
	if ev.Type != EventComplete || ev.DocumentType != models.DocReadme {
		t.Fatalf("queue did not recover after dropped item: %+v", ev)
	}

	waitFor(t, func() bool { return q.Status().QueueLength == 0 }, "queue never drained")
}

func TestNonRetryableFailsFast(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(call int, messages []models.ChatMessage) (string, error) {
			return "", &upstream.StatusError{StatusCode: 400, Body: "bad request"}
		},
	}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	q.Enqueue(models.DocPRD, project("rejected"), "s1")

	ev := nextTerminal(t, events)
	if ev.Type != EventFailed {
		t.Fatalf("expected failed, got %s", ev.Type)
	}
	if fake.callCount() != 1 {
		t.Errorf("client errors must not retry, got %d attempts", fake.callCount())
	}
}

func TestSingleInFlight(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(call int, messages []models.ChatMessage) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "ok", nil
		},
	}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		q.Enqueue(models.DocReadme, project(fmt.Sprintf("idea %d", i)), "s1")
	}

	for i := 0; i < 5; i++ {
		nextTerminal(t, events)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.overlap {
		t.Error("two upstream calls were in flight concurrently")
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	fake := &fakeCompleter{gate: make(chan struct{})}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	data := project("shared project")
	id1, queued := q.Enqueue(models.DocPRD, data, "s1")
	if !queued {
		t.Fatal("first enqueue should queue a new item")
	}
	waitFor(t, func() bool { return fake.callCount() == 1 }, "item never entered processing")

	// Identical request while the first is in flight joins it.
	id2, queued := q.Enqueue(models.DocPRD, data, "s2")
	if queued {
		t.Error("duplicate enqueue should not queue a second item")
	}
	if id1 != id2 {
		t.Errorf("expected same queue id, got %s and %s", id1, id2)
	}

	close(fake.gate)

	ev := nextTerminal(t, events)
	if ev.Type != EventComplete {
		t.Fatalf("expected complete, got %s", ev.Type)
	}
	if fake.callCount() != 1 {
		t.Errorf("expected a single upstream call, got %d", fake.callCount())
	}

	// Once complete, the same request is a fresh enqueue (served from cache).
	_, queued = q.Enqueue(models.DocPRD, data, "s3")
	if !queued {
		t.Error("post-completion enqueue should queue again")
	}
	ev = nextTerminal(t, events)
	if !ev.FromCache {
		t.Error("expected cache hit for the re-enqueued request")
	}
	if fake.callCount() != 1 {
		t.Errorf("cache hit must not call upstream again, got %d", fake.callCount())
	}
}

func TestStatus(t *testing.T) {
	fake := &fakeCompleter{gate: make(chan struct{})}
	q, _ := newTestQueue(t, fake, 2)

	if st := q.Status(); st.QueueLength != 0 || st.Processing {
		t.Errorf("expected idle status, got %+v", st)
	}

	q.Enqueue(models.DocReadme, project("a"), "s1")
	waitFor(t, func() bool { return fake.callCount() == 1 }, "item never entered processing")

	q.Enqueue(models.DocTaskList, project("a"), "s1")
	q.Enqueue(models.DocPRD, project("a"), "s1")

	st := q.Status()
	if !st.Processing {
		t.Error("expected processing")
	}
	if st.QueueLength != 2 {
		t.Errorf("expected 2 queued, got %d", st.QueueLength)
	}
	if len(st.NextItems) != 2 || st.NextItems[0].DocumentType != models.DocPRD {
		t.Errorf("expected prd first in next items, got %+v", st.NextItems)
	}

	close(fake.gate)
	waitFor(t, func() bool {
		st := q.Status()
		return st.QueueLength == 0 && !st.Processing
	}, "queue never went idle")
}

type stubRecorder struct {
	mu   sync.Mutex
	recs []models.GenerationRecord
}

func (r *stubRecorder) Record(ctx context.Context, rec models.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *stubRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.recs))
	for i, rec := range r.recs {
		out[i] = rec.Outcome
	}
	return out
}

func TestHistoryRecording(t *testing.T) {
	fake := &fakeCompleter{
		respond: func(call int, messages []models.ChatMessage) (string, error) {
			if call == 1 {
				return "content", nil
			}
			return "", &upstream.StatusError{StatusCode: 400}
		},
	}
	recorder := &stubRecorder{}

	store := cache.New(time.Hour, 0, 0)
	t.Cleanup(store.Close)
	q := New(store, fake, Options{MaxRetries: 2, History: recorder})
	t.Cleanup(q.Close)

	events, cancel := q.Subscribe()
	defer cancel()

	data := project("tracked")
	q.Enqueue(models.DocPRD, data, "s1")
	nextTerminal(t, events)

	q.Enqueue(models.DocPRD, data, "s1") // cache hit
	nextTerminal(t, events)

	q.Enqueue(models.DocReadme, project("other"), "s1") // fails fast
	nextTerminal(t, events)

	waitFor(t, func() bool { return len(recorder.outcomes()) == 3 }, "not all outcomes recorded")

	want := []string{models.OutcomeSuccess, models.OutcomeCached, models.OutcomeFailed}
	got := recorder.outcomes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recorded outcomes %v, want %v", got, want)
		}
	}
}

func TestItemLocalFailureKeepsLoopAlive(t *testing.T) {
	fake := &fakeCompleter{}
	q, _ := newTestQueue(t, fake, 2)

	events, cancel := q.Subscribe()
	defer cancel()

	// No prompt exists for an unknown type; the item fails without
	// touching upstream and the loop moves on.
	q.Enqueue(models.DocumentType("bogus"), project("x"), "s1")
	ev := nextTerminal(t, events)
	if ev.Type != EventFailed {
		t.Fatalf("expected failed, got %s", ev.Type)
	}
	if fake.callCount() != 0 {
		t.Errorf("prompt failure must not reach upstream, got %d calls", fake.callCount())
	}

	q.Enqueue(models.DocReadme, project("y"), "s1")
	ev = nextTerminal(t, events)
	if ev.Type != EventComplete {
		t.Fatalf("loop did not survive item failure: %+v", ev)
	}
}


package approval

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return "apr-" + uuid.NewString()
}

// Book is a concurrency-safe approval queue. Every mutation replaces the
// internal slice, so snapshots handed out earlier never change.
type Book struct {
	mu    sync.RWMutex
	queue []Request
	now   func() time.Time
}

// NewBook creates an empty book. A nil clock uses time.Now.
func NewBook(clock func() time.Time) *Book {
	if clock == nil {
		clock = time.Now
	}
	return &Book{now: clock}
}

// Seed adds requests, skipping invalid seeds and keys already present.
// It returns the queue after the update.
func (book *Book) Seed(seeds ...Seed) []Request {
	book.mu.Lock()
	defer book.mu.Unlock()
	next := make([]Request, len(book.queue), len(book.queue)+len(seeds))
	copy(next, book.queue)
	book.queue = appendSeeds(next, seeds, book.now().UTC())
	return book.queue
}

// Decide applies a user decision to the request with the given id.
func (book *Book) Decide(requestID string, decision Decision) (Request, error) {
	book.mu.Lock()
	defer book.mu.Unlock()
	updated, err := ApplyDecision(book.queue, requestID, decision, book.now().UTC())
	if err != nil {
		return Request{}, err
	}
	book.queue = updated
	for _, request := range updated {
		if request.RequestID == requestID {
			return request, nil
		}
	}
	return Request{}, ErrRequestNotFound
}

// Evaluate runs EvaluateGate against the current queue.
func (book *Book) Evaluate(taskID string, actionType ActionType, preview string) GateDecision {
	book.mu.RLock()
	defer book.mu.RUnlock()
	return EvaluateGate(taskID, actionType, preview, book.queue)
}

// Snapshot returns the current queue. The slice must not be modified.
func (book *Book) Snapshot() []Request {
	book.mu.RLock()
	defer book.mu.RUnlock()
	return book.queue
}

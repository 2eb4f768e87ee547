package humanloop

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/railgraph/core/graph"
)

// PauseToken is the error text delivered to a waiting turn when the run is
// paused or cancelled underneath it.
const PauseToken = "__PAUSED_BY_USER__"

var (
	ErrTicketNotFound  = errors.New("human turn ticket not found")
	ErrTicketNotActive = errors.New("human turn ticket is queued, not pending")
)

// Turn describes what the user is asked to produce.
type Turn struct {
	NodeID   string              `json:"nodeId"`
	Provider string              `json:"provider"`
	Prompt   string              `json:"prompt"`
	Mode     graph.WebResultMode `json:"mode"`
}

func (turn Turn) key() string {
	return turn.NodeID + "\x00" + turn.Provider
}

// Response is what a resolver receives.
type Response struct {
	OK     bool   `json:"ok"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Paused reports whether the response is the pause sentinel.
func (response Response) Paused() bool {
	return !response.OK && response.Error == PauseToken
}

// Failure builds a failed response.
func Failure(reason string) Response {
	return Response{Error: reason}
}

// Ticket is the externally visible part of a queued turn.
type Ticket struct {
	ID        string    `json:"id"`
	Turn      Turn      `json:"turn"`
	CreatedAt time.Time `json:"createdAt"`
	Attached  bool      `json:"attached"`
}

// Waiter is handed to the requester. C receives exactly one Response.
type Waiter struct {
	TicketID   string
	Reattached bool
	Queued     int
	C          <-chan Response
}

type entry struct {
	ticket   Ticket
	resolver chan Response
}

func (e *entry) view() Ticket {
	ticket := e.ticket
	ticket.Attached = e.resolver != nil
	return ticket
}

// Snapshot is a copy of the queue state.
type Snapshot struct {
	Pending   *Ticket  `json:"pending"`
	Suspended *Ticket  `json:"suspended"`
	Queued    []Ticket `json:"queued"`
}

type delivery struct {
	resolver chan Response
	response Response
}

// Queue is the per-run human turn queue. It is safe for concurrent use;
// resolvers are detached under the lock and called after it is released.
type Queue struct {
	mu        sync.Mutex
	now       func() time.Time
	pending   *entry
	suspended *entry
	queued    []*entry
}

// NewQueue creates an empty queue. A nil clock uses time.Now.
func NewQueue(clock func() time.Time) *Queue {
	if clock == nil {
		clock = time.Now
	}
	return &Queue{now: clock}
}

// Request registers turn and returns a waiter for its response.
//
// A pending or suspended ticket for the same node and provider that has lost
// its resolver is re-attached instead of creating a duplicate. Otherwise the
// turn becomes pending when nothing is shown, or is appended to the queue.
func (queue *Queue) Request(turn Turn) Waiter {
	resolver := make(chan Response, 1)

	queue.mu.Lock()
	defer queue.mu.Unlock()

	if queue.pending != nil && queue.pending.resolver == nil && queue.pending.ticket.Turn.key() != turn.key() {
		queue.pending = nil
	}
	if queue.pending != nil && queue.pending.resolver == nil {
		queue.pending.resolver = resolver
		queue.pending.ticket.Turn.Prompt = turn.Prompt
		return Waiter{TicketID: queue.pending.ticket.ID, Reattached: true, C: resolver}
	}
	if queue.suspended != nil && queue.suspended.resolver == nil && queue.suspended.ticket.Turn.key() == turn.key() && queue.pending == nil {
		queue.pending, queue.suspended = queue.suspended, nil
		queue.pending.resolver = resolver
		queue.pending.ticket.Turn.Prompt = turn.Prompt
		return Waiter{TicketID: queue.pending.ticket.ID, Reattached: true, C: resolver}
	}

	created := &entry{
		ticket:   Ticket{ID: "hitl-" + uuid.NewString(), Turn: turn, CreatedAt: queue.now().UTC()},
		resolver: resolver,
	}
	if queue.pending == nil && (queue.suspended == nil || queue.suspended.resolver == nil) {
		queue.suspended = nil
		queue.pending = created
		return Waiter{TicketID: created.ticket.ID, C: resolver}
	}
	queue.queued = append(queue.queued, created)
	return Waiter{TicketID: created.ticket.ID, Queued: len(queue.queued), C: resolver}
}

// Suspend hides the pending ticket without answering it. Its waiter keeps
// waiting.
func (queue *Queue) Suspend(ticketID string) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	if queue.pending == nil || queue.pending.ticket.ID != ticketID {
		if queue.suspended != nil && queue.suspended.ticket.ID == ticketID {
			return nil
		}
		return queue.missing(ticketID)
	}
	queue.suspended, queue.pending = queue.pending, nil
	return nil
}

// Submit answers the pending or suspended ticket ticketID and promotes the
// next queued ticket.
func (queue *Queue) Submit(ticketID string, response Response) error {
	queue.mu.Lock()
	var target *entry
	switch {
	case queue.pending != nil && queue.pending.ticket.ID == ticketID:
		target, queue.pending = queue.pending, nil
	case queue.suspended != nil && queue.suspended.ticket.ID == ticketID:
		target, queue.suspended = queue.suspended, nil
	default:
		err := queue.missing(ticketID)
		queue.mu.Unlock()
		return err
	}
	out := queue.detach(target, response)
	queue.promote()
	queue.mu.Unlock()

	out.deliver()
	return nil
}

// Cancel fails ticketID with reason wherever it is.
func (queue *Queue) Cancel(ticketID, reason string) error {
	queue.mu.Lock()
	target := queue.remove(ticketID)
	if target == nil {
		queue.mu.Unlock()
		return ErrTicketNotFound
	}
	out := queue.detach(target, Failure(reason))
	queue.promote()
	queue.mu.Unlock()

	out.deliver()
	return nil
}

// Detach is called by a waiter that stopped listening. A pending or
// suspended ticket stays visible without a resolver so a later request for
// the same node can re-attach; a queued ticket is dropped.
func (queue *Queue) Detach(ticketID string) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	for _, shown := range []*entry{queue.pending, queue.suspended} {
		if shown != nil && shown.ticket.ID == ticketID {
			shown.resolver = nil
			return
		}
	}
	for index, waiting := range queue.queued {
		if waiting.ticket.ID == ticketID {
			queue.queued = append(queue.queued[:index], queue.queued[index+1:]...)
			return
		}
	}
}

// ResolvePending answers whichever ticket currently holds the active
// resolver, pending first, then suspended. It reports whether one was found.
func (queue *Queue) ResolvePending(response Response) bool {
	queue.mu.Lock()
	var target *entry
	switch {
	case queue.pending != nil && queue.pending.resolver != nil:
		target, queue.pending = queue.pending, nil
	case queue.suspended != nil && queue.suspended.resolver != nil:
		target, queue.suspended = queue.suspended, nil
	default:
		queue.mu.Unlock()
		return false
	}
	out := queue.detach(target, response)
	queue.promote()
	queue.mu.Unlock()

	out.deliver()
	return true
}

// ClearQueued fails every queued ticket with reason and returns how many
// were cleared. Pending and suspended tickets are untouched.
func (queue *Queue) ClearQueued(reason string) int {
	queue.mu.Lock()
	cleared := queue.queued
	queue.queued = nil
	deliveries := make([]delivery, 0, len(cleared))
	for _, waiting := range cleared {
		deliveries = append(deliveries, queue.detach(waiting, Failure(reason)))
	}
	queue.mu.Unlock()

	for _, out := range deliveries {
		out.deliver()
	}
	return len(cleared)
}

// Close fails every ticket with reason and empties the queue, so no waiter
// is left hanging at teardown.
func (queue *Queue) Close(reason string) {
	queue.mu.Lock()
	all := append([]*entry{queue.pending, queue.suspended}, queue.queued...)
	queue.pending, queue.suspended, queue.queued = nil, nil, nil
	deliveries := make([]delivery, 0, len(all))
	for _, target := range all {
		if target != nil {
			deliveries = append(deliveries, queue.detach(target, Failure(reason)))
		}
	}
	queue.mu.Unlock()

	for _, out := range deliveries {
		out.deliver()
	}
}

// Snapshot copies the current state.
func (queue *Queue) Snapshot() Snapshot {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	snapshot := Snapshot{Queued: make([]Ticket, 0, len(queue.queued))}
	if queue.pending != nil {
		view := queue.pending.view()
		snapshot.Pending = &view
	}
	if queue.suspended != nil {
		view := queue.suspended.view()
		snapshot.Suspended = &view
	}
	for _, waiting := range queue.queued {
		snapshot.Queued = append(snapshot.Queued, waiting.view())
	}
	return snapshot
}

func (queue *Queue) detach(target *entry, response Response) delivery {
	out := delivery{resolver: target.resolver, response: response}
	target.resolver = nil
	return out
}

func (queue *Queue) promote() {
	if queue.pending != nil || len(queue.queued) == 0 {
		return
	}
	if queue.suspended != nil && queue.suspended.resolver != nil {
		return
	}
	queue.suspended = nil
	queue.pending, queue.queued = queue.queued[0], queue.queued[1:]
}

func (queue *Queue) remove(ticketID string) *entry {
	switch {
	case queue.pending != nil && queue.pending.ticket.ID == ticketID:
		target := queue.pending
		queue.pending = nil
		return target
	case queue.suspended != nil && queue.suspended.ticket.ID == ticketID:
		target := queue.suspended
		queue.suspended = nil
		return target
	}
	for index, waiting := range queue.queued {
		if waiting.ticket.ID == ticketID {
			queue.queued = append(queue.queued[:index], queue.queued[index+1:]...)
			return waiting
		}
	}
	return nil
}

func (queue *Queue) missing(ticketID string) error {
	for _, waiting := range queue.queued {
		if waiting.ticket.ID == ticketID {
			return ErrTicketNotActive
		}
	}
	return ErrTicketNotFound
}

func (out delivery) deliver() {
	if out.resolver != nil {
		out.resolver <- out.response
	}
}

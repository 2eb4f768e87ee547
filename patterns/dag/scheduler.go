package dag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/providers/observability"
)

// Outcome is what a task reports back to the scheduler. Status is the
// node's terminal status as the caller sees it and only feeds metrics.
type Outcome struct {
	Status  string
	Requeue bool
	Err     error
}

// NodeFunc executes one node. ctx is cancelled when the scheduler is paused
// or cancelled; the function should return promptly afterwards.
type NodeFunc func(ctx context.Context, nodeID string) Outcome

// Report summarizes a finished Run.
type Report struct {
	// Completed lists nodes in completion order.
	Completed []string
	// Unvisited lists, in topological order, nodes that never completed.
	Unvisited []string
	Cancelled bool
	// PeakHeavy is the largest number of heavy nodes observed in flight.
	PeakHeavy int
}

type completion struct {
	nodeID   string
	heavy    bool
	outcome  Outcome
	duration time.Duration
}

// Scheduler runs one graph once. Pause, Resume, and Cancel may be called
// from any goroutine.
type Scheduler struct {
	index          *graph.Index
	run            NodeFunc
	heavy          func(graph.Node) bool
	maxConcurrency int
	slots          *semaphore.Weighted
	onReady        func(nodeID string)
	onPanic        func(ctx context.Context, nodeID string, err error)
	observer       observability.Provider

	mu         sync.Mutex
	paused     bool
	cancelled  bool
	started    bool
	baseCtx    context.Context
	taskCtx    context.Context
	taskCancel context.CancelFunc
	wake       chan struct{}
}

// New creates a scheduler over a validated graph.
func New(index *graph.Index, run NodeFunc, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		index:          index,
		run:            run,
		heavy:          IsHeavy,
		maxConcurrency: 1,
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	scheduler.slots = semaphore.NewWeighted(int64(scheduler.maxConcurrency))
	return scheduler
}

// MaxConcurrency is the heavy slot count.
func (scheduler *Scheduler) MaxConcurrency() int {
	return scheduler.maxConcurrency
}

// Pause stops dispatching and cancels the context of in-flight tasks.
func (scheduler *Scheduler) Pause() {
	scheduler.mu.Lock()
	if !scheduler.paused && !scheduler.cancelled {
		scheduler.paused = true
		if scheduler.taskCancel != nil {
			scheduler.taskCancel()
		}
	}
	scheduler.mu.Unlock()
	scheduler.signal()
}

// Resume lets dispatching continue with a fresh task context.
func (scheduler *Scheduler) Resume() {
	scheduler.mu.Lock()
	if scheduler.paused && !scheduler.cancelled {
		scheduler.paused = false
		if scheduler.started {
			scheduler.taskCtx, scheduler.taskCancel = context.WithCancel(scheduler.baseCtx)
		}
	}
	scheduler.mu.Unlock()
	scheduler.signal()
}

// Cancel stops dispatching for good and cancels in-flight tasks.
func (scheduler *Scheduler) Cancel() {
	scheduler.mu.Lock()
	scheduler.cancelled = true
	if scheduler.taskCancel != nil {
		scheduler.taskCancel()
	}
	scheduler.mu.Unlock()
	scheduler.signal()
}

// Paused reports whether dispatching is paused.
func (scheduler *Scheduler) Paused() bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.paused
}

// Cancelled reports whether Cancel was called.
func (scheduler *Scheduler) Cancelled() bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.cancelled
}

func (scheduler *Scheduler) signal() {
	select {
	case scheduler.wake <- struct{}{}:
	default:
	}
}

func (scheduler *Scheduler) state() (paused, cancelled bool, taskCtx context.Context) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.paused, scheduler.cancelled, scheduler.taskCtx
}

// Run dispatches until no node is ready or active. Cancelling ctx has the
// same effect as Cancel. Run must be called at most once.
func (scheduler *Scheduler) Run(ctx context.Context) Report {
	ctx = scheduler.observeStart(ctx)

	scheduler.mu.Lock()
	scheduler.started = true
	scheduler.baseCtx = ctx
	scheduler.taskCtx, scheduler.taskCancel = context.WithCancel(ctx)
	if scheduler.paused || scheduler.cancelled {
		scheduler.taskCancel()
	}
	scheduler.mu.Unlock()

	indegree := scheduler.index.Indegree()
	completed := make(map[string]bool, scheduler.index.Len())
	active := make(map[string]bool)
	completions := make(chan completion)
	report := Report{Completed: make([]string, 0, scheduler.index.Len())}
	heavyActive := 0

	ready := make([]string, 0, scheduler.index.Len())
	for _, nodeID := range scheduler.index.Roots() {
		ready = scheduler.enqueue(ready, nodeID, false)
	}

	ctxDone := ctx.Done()
	for {
		if ctxDone != nil && ctx.Err() != nil {
			ctxDone = nil
			scheduler.Cancel()
		}
		paused, cancelled, taskCtx := scheduler.state()
		if !paused && !cancelled {
			var dispatched int
			ready, dispatched = scheduler.dispatch(taskCtx, ready, active, completions)
			heavyActive += dispatched
			report.PeakHeavy = max(report.PeakHeavy, heavyActive)
		}
		if len(active) == 0 && (cancelled || len(ready) == 0) {
			break
		}

		select {
		case done := <-completions:
			delete(active, done.nodeID)
			if done.heavy {
				heavyActive--
				scheduler.slots.Release(1)
			}
			scheduler.observeCompleted(ctx, done)
			if done.outcome.Requeue {
				ready = scheduler.enqueue(ready, done.nodeID, true)
				continue
			}
			completed[done.nodeID] = true
			report.Completed = append(report.Completed, done.nodeID)
			for _, child := range scheduler.index.Children(done.nodeID) {
				indegree[child]--
				if indegree[child] == 0 {
					ready = scheduler.enqueue(ready, child, false)
				}
			}
		case <-scheduler.wake:
		case <-ctxDone:
			ctxDone = nil
			scheduler.Cancel()
		}
	}

	report.Cancelled = scheduler.Cancelled()
	for _, nodeID := range scheduler.index.TopologicalOrder() {
		if !completed[nodeID] {
			report.Unvisited = append(report.Unvisited, nodeID)
		}
	}
	scheduler.mu.Lock()
	scheduler.taskCancel()
	scheduler.mu.Unlock()
	scheduler.observeFinished(ctx, report)
	return report
}

func (scheduler *Scheduler) enqueue(ready []string, nodeID string, front bool) []string {
	if scheduler.onReady != nil {
		scheduler.onReady(nodeID)
	}
	if front {
		return append([]string{nodeID}, ready...)
	}
	return append(ready, nodeID)
}

// dispatch starts every ready node that can run now and returns the nodes
// left waiting plus the number of heavy nodes started.
func (scheduler *Scheduler) dispatch(taskCtx context.Context, ready []string, active map[string]bool, completions chan<- completion) ([]string, int) {
	waiting := make([]string, 0, len(ready))
	heavyStarted := 0
	for _, nodeID := range ready {
		node, _ := scheduler.index.Node(nodeID)
		heavy := scheduler.heavy(node)
		if heavy && !scheduler.slots.TryAcquire(1) {
			waiting = append(waiting, nodeID)
			continue
		}
		if heavy {
			heavyStarted++
		}
		active[nodeID] = true
		scheduler.observeDispatch(taskCtx, nodeID, heavy, len(ready), len(active))
		go scheduler.execute(taskCtx, node, heavy, completions)
	}
	return waiting, heavyStarted
}

func (scheduler *Scheduler) execute(ctx context.Context, node graph.Node, heavy bool, completions chan<- completion) {
	startedAt := time.Now()
	ctx, span := scheduler.startNodeSpan(ctx, node, heavy)
	outcome := scheduler.safeRun(ctx, node.ID)
	endNodeSpan(span, outcome)
	completions <- completion{nodeID: node.ID, heavy: heavy, outcome: outcome, duration: time.Since(startedAt)}
}

func (scheduler *Scheduler) safeRun(ctx context.Context, nodeID string) (outcome Outcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("node %s panicked: %v", nodeID, recovered)
			outcome = Outcome{Status: "failed", Err: err}
			if scheduler.onPanic != nil {
				scheduler.onPanic(ctx, nodeID, err)
			}
		}
	}()
	return scheduler.run(ctx, nodeID)
}

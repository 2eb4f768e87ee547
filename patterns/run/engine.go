package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/patterns/dag"
	"github.com/leofalp/railgraph/providers/executor"
	"github.com/leofalp/railgraph/providers/observability"
	"github.com/leofalp/railgraph/providers/store"
)

const (
	defaultMaxSchemaRetry = 2
	defaultLogCap         = 200
)

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists every finished run. Without a store runs live only in
// memory for the lifetime of the engine.
func WithStore(runStore store.RunStore) Option {
	return func(engine *Engine) {
		engine.store = runStore
	}
}

// WithEvaluator replaces the default quality evaluator, which has
// verification commands disabled.
func WithEvaluator(evaluator *quality.Evaluator) Option {
	return func(engine *Engine) {
		if evaluator != nil {
			engine.evaluator = evaluator
		}
	}
}

// WithApprovals shares an existing approval book with the engine.
func WithApprovals(book *approval.Book) Option {
	return func(engine *Engine) {
		if book != nil {
			engine.approvals = book
		}
	}
}

// WithObserver enables tracing, metrics, and logging for runs and their
// schedulers. Nil disables observability.
func WithObserver(provider observability.Provider) Option {
	return func(engine *Engine) {
		engine.observer = provider
	}
}

// WithMode sets the multi-agent mode every run is scheduled with.
func WithMode(mode dag.Mode) Option {
	return func(engine *Engine) {
		engine.mode = mode
	}
}

// WithMaxSchemaRetry sets the default number of corrective retries for turn
// outputs that violate their schema. Nodes may override it.
func WithMaxSchemaRetry(retries int) Option {
	return func(engine *Engine) {
		engine.maxSchemaRetry = max(0, retries)
	}
}

// WithSchemaCheck toggles output schema validation for turns.
func WithSchemaCheck(enabled bool) Option {
	return func(engine *Engine) {
		engine.schemaCheck = enabled
	}
}

// WithLogCap bounds the log lines kept per node. Zero or less keeps all.
func WithLogCap(lines int) Option {
	return func(engine *Engine) {
		engine.logCap = lines
	}
}

// WithClock replaces time.Now; used by tests.
func WithClock(clock func() time.Time) Option {
	return func(engine *Engine) {
		if clock != nil {
			engine.clock = clock
		}
	}
}

// WithValidation adds graph validation rules applied by Start.
func WithValidation(opts ...graph.Option) Option {
	return func(engine *Engine) {
		engine.validation = append(engine.validation, opts...)
	}
}

// Engine starts and controls runs. It is safe for concurrent use.
type Engine struct {
	executor       executor.Executor
	store          store.RunStore
	approvals      *approval.Book
	evaluator      *quality.Evaluator
	observer       observability.Provider
	mode           dag.Mode
	maxSchemaRetry int
	schemaCheck    bool
	logCap         int
	clock          func() time.Time
	validation     []graph.Option

	mu   sync.RWMutex
	runs map[string]*runState

	subsMu      sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewEngine creates an engine that executes turns through turnExecutor,
// typically an *executor.Registry.
func NewEngine(turnExecutor executor.Executor, opts ...Option) *Engine {
	engine := &Engine{
		executor:       turnExecutor,
		evaluator:      &quality.Evaluator{},
		mode:           dag.ModeOff,
		maxSchemaRetry: defaultMaxSchemaRetry,
		schemaCheck:    true,
		logCap:         defaultLogCap,
		clock:          time.Now,
		runs:           make(map[string]*runState),
		subscribers:    make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.approvals == nil {
		engine.approvals = approval.NewBook(engine.clock)
	}
	return engine
}

func (engine *Engine) now() time.Time {
	return engine.clock().UTC()
}

// Approvals returns the approval book consulted by gated turns.
func (engine *Engine) Approvals() *approval.Book {
	return engine.approvals
}

// Start validates g and launches a run answering question. Validation
// failures are returned as *graph.ValidationError and no run is created.
// The run outlives ctx; use Cancel to stop it.
func (engine *Engine) Start(ctx context.Context, g graph.Graph, question string) (string, error) {
	index, err := graph.Validate(g, engine.validation...)
	if err != nil {
		return "", err
	}

	state := newRunState(engine, uuid.NewString(), question, g, index)
	state.startedAt = engine.now()
	state.scheduler = dag.New(index,
		func(taskCtx context.Context, nodeID string) dag.Outcome {
			return engine.processNode(taskCtx, state, nodeID)
		},
		dag.WithMode(engine.mode),
		dag.WithObserver(engine.observer),
		dag.WithReadyHook(func(nodeID string) {
			state.setNodeStatus(nodeID, NodeQueued, "")
		}),
		dag.WithPanicHook(func(_ context.Context, nodeID string, panicErr error) {
			state.setNodeError(nodeID, panicErr)
			state.setNodeStatus(nodeID, NodeFailed, panicErr.Error())
		}),
	)

	engine.mu.Lock()
	engine.runs[state.id] = state
	engine.mu.Unlock()

	state.setRunStatus(StatusStarting, "")
	state.setRunStatus(StatusRunning, "")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	state.cancelRun = cancel
	go engine.execute(runCtx, state)
	return state.id, nil
}

func (engine *Engine) execute(ctx context.Context, state *runState) {
	defer state.cancelRun()
	ctx, span := engine.observeRunStart(ctx, state)
	report := state.scheduler.Run(ctx)
	engine.finalize(ctx, state, report)
	engine.observeRunEnd(ctx, state, span)
}

func (engine *Engine) lookup(runID string) (*runState, error) {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	state, ok := engine.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return state, nil
}

// Pause stops dispatching new nodes. Nodes in flight are interrupted and
// re-queued; a pending human ticket is released with the pause token.
func (engine *Engine) Pause(runID string) error {
	state, err := engine.lookup(runID)
	if err != nil {
		return err
	}
	if current := state.runStatus(); current != StatusRunning {
		return fmt.Errorf("%w: cannot pause a %s run", ErrInvalidTransition, current)
	}
	state.setRunStatus(StatusPaused, "paused by user")
	state.scheduler.Pause()
	state.humans.ResolvePending(humanloop.Failure(humanloop.PauseToken))
	return nil
}

// Resume continues a paused run.
func (engine *Engine) Resume(runID string) error {
	state, err := engine.lookup(runID)
	if err != nil {
		return err
	}
	if current := state.runStatus(); current != StatusPaused {
		return fmt.Errorf("%w: cannot resume a %s run", ErrInvalidTransition, current)
	}
	state.setRunStatus(StatusRunning, "resumed by user")
	state.scheduler.Resume()
	return nil
}

// Cancel ends a run. Queued human tickets are dropped, nodes in flight are
// interrupted, and their late results are ignored.
func (engine *Engine) Cancel(runID string) error {
	state, err := engine.lookup(runID)
	if err != nil {
		return err
	}
	if current := state.runStatus(); current.Terminal() {
		return fmt.Errorf("%w: run already %s", ErrInvalidTransition, current)
	}
	state.setRunStatus(StatusCancelled, "cancelled by user")
	state.humans.ClearQueued("run cancelled")
	state.humans.ResolvePending(humanloop.Failure(humanloop.PauseToken))
	state.scheduler.Cancel()
	return nil
}

// Status returns a snapshot of a run started by this engine.
func (engine *Engine) Status(runID string) (View, error) {
	state, err := engine.lookup(runID)
	if err != nil {
		return View{}, err
	}
	return state.view(), nil
}

// Runs returns a snapshot of every run started by this engine, most recent
// first.
func (engine *Engine) Runs() []View {
	engine.mu.RLock()
	states := make([]*runState, 0, len(engine.runs))
	for _, state := range engine.runs {
		states = append(states, state)
	}
	engine.mu.RUnlock()

	views := make([]View, 0, len(states))
	for _, state := range states {
		views = append(views, state.view())
	}
	sortViews(views)
	return views
}

// HumanQueue returns the human-in-the-loop queue of a run.
func (engine *Engine) HumanQueue(runID string) (*humanloop.Queue, error) {
	state, err := engine.lookup(runID)
	if err != nil {
		return nil, err
	}
	return state.humans, nil
}

// Wait blocks until the run finishes or ctx ends and returns its record.
// The error reports a failed save, if any, alongside the record.
func (engine *Engine) Wait(ctx context.Context, runID string) (store.RunRecord, error) {
	state, err := engine.lookup(runID)
	if err != nil {
		return store.RunRecord{}, err
	}
	select {
	case <-state.done:
	case <-ctx.Done():
		return store.RunRecord{}, ctx.Err()
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.record, state.saveErr
}

// Subscribe returns a channel receiving every run and node transition.
// Slow subscribers miss events instead of blocking runs. The returned
// function unsubscribes and closes the channel.
func (engine *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	events := make(chan Event, buffer)

	engine.subsMu.Lock()
	id := engine.nextSubID
	engine.nextSubID++
	engine.subscribers[id] = events
	engine.subsMu.Unlock()

	var once sync.Once
	return events, func() {
		once.Do(func() {
			engine.subsMu.Lock()
			delete(engine.subscribers, id)
			engine.subsMu.Unlock()
			close(events)
		})
	}
}

func (engine *Engine) emit(event Event) {
	engine.subsMu.Lock()
	defer engine.subsMu.Unlock()
	for _, events := range engine.subscribers {
		select {
		case events <- event:
		default:
		}
	}
}

package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leofalp/railgraph/providers/observability"
)

const (
	DefaultTick       = 30 * time.Second
	DefaultHistoryCap = 200
)

// RunFunc executes one due schedule. A nil error records the run as done.
type RunFunc func(ctx context.Context, schedule Schedule, trigger Trigger) error

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTick sets the interval between planning passes in Run.
func WithTick(tick time.Duration) RunnerOption {
	return func(runner *Runner) {
		if tick > 0 {
			runner.tick = tick
		}
	}
}

// WithHistoryCap bounds the number of history rows kept.
func WithHistoryCap(limit int) RunnerOption {
	return func(runner *Runner) {
		if limit > 0 {
			runner.historyCap = limit
		}
	}
}

// WithProviderCheck installs the provider availability check.
func WithProviderCheck(available func(provider string) bool) RunnerOption {
	return func(runner *Runner) {
		runner.available = available
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) RunnerOption {
	return func(runner *Runner) {
		if clock != nil {
			runner.now = clock
		}
	}
}

// WithObserver enables logging and metrics for dispatched runs.
func WithObserver(provider observability.Provider) RunnerOption {
	return func(runner *Runner) {
		runner.observer = provider
	}
}

// Runner executes due schedules, each in its own goroutine.
type Runner struct {
	mu         sync.Mutex
	schedules  []Schedule
	active     map[string]bool
	history    []RunResult
	historyCap int
	tick       time.Duration
	run        RunFunc
	available  func(provider string) bool
	now        func() time.Time
	observer   observability.Provider
	inflight   sync.WaitGroup
}

// NewRunner creates a runner over schedules.
func NewRunner(schedules []Schedule, run RunFunc, opts ...RunnerOption) *Runner {
	runner := &Runner{
		schedules:  append([]Schedule(nil), schedules...),
		active:     make(map[string]bool),
		historyCap: DefaultHistoryCap,
		tick:       DefaultTick,
		run:        run,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Tick plans against now and dispatches every due schedule. The schedule's
// LastTriggeredAt is set to now before its run starts, so a second tick in
// the same minute reports it as already triggered.
func (runner *Runner) Tick(ctx context.Context, now time.Time, trigger Trigger) Plan {
	runner.mu.Lock()
	active := make(map[string]bool, len(runner.active))
	for pipelineID := range runner.active {
		active[pipelineID] = true
	}
	plan := PlanBatchRuns(PlanInput{
		Schedules:         runner.schedules,
		ActivePipelineIDs: active,
		Now:               now,
		Trigger:           trigger,
		ProviderAvailable: runner.available,
	})
	for _, row := range plan.Results {
		if row.Status != RunQueued {
			runner.appendHistory(row)
		}
	}
	triggeredAt := now.UTC()
	for _, schedule := range plan.Due {
		runner.active[schedule.PipelineID] = true
		for index := range runner.schedules {
			if runner.schedules[index].ID == schedule.ID {
				runner.schedules[index].LastTriggeredAt = &triggeredAt
			}
		}
	}
	runner.mu.Unlock()

	for _, schedule := range plan.Due {
		runner.inflight.Add(1)
		go runner.execute(ctx, schedule, trigger)
	}
	return plan
}

func (runner *Runner) execute(ctx context.Context, schedule Schedule, trigger Trigger) {
	defer runner.inflight.Done()
	startedAt := runner.now().UTC()
	attrs := []observability.Attribute{
		observability.String(observability.AttrBatchScheduleID, schedule.ID),
		observability.String(observability.AttrBatchPipelineID, schedule.PipelineID),
		observability.String(observability.AttrBatchTrigger, string(trigger)),
	}
	if runner.observer != nil {
		runner.observer.Info(ctx, "batch run started", attrs...)
	}

	err := runner.safeRun(ctx, schedule, trigger)

	finishedAt := runner.now().UTC()
	row := RunResult{
		ID:         schedule.ID + ":" + startedAt.Format(time.RFC3339) + ":result",
		ScheduleID: schedule.ID,
		PipelineID: schedule.PipelineID,
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Status:     RunDone,
		Provider:   schedule.Provider,
	}
	if err != nil {
		row.Status = RunFailed
		row.Reason = err.Error()
	}

	runner.mu.Lock()
	runner.appendHistory(row)
	delete(runner.active, schedule.PipelineID)
	runner.mu.Unlock()

	if runner.observer != nil {
		runner.observer.Counter(observability.MetricBatchRuns).Add(ctx, 1, append(attrs, observability.String(observability.AttrStatus, string(row.Status)))...)
		if err != nil {
			runner.observer.Warn(ctx, "batch run failed", append(attrs, observability.Error(err))...)
		} else {
			runner.observer.Info(ctx, "batch run finished", attrs...)
		}
	}
}

func (runner *Runner) safeRun(ctx context.Context, schedule Schedule, trigger Trigger) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = errors.New("batch run panicked")
		}
	}()
	if runner.run == nil {
		return errors.New("no run function configured")
	}
	return runner.run(ctx, schedule, trigger)
}

// must hold runner.mu
func (runner *Runner) appendHistory(row RunResult) {
	runner.history = append(runner.history, row)
	if overflow := len(runner.history) - runner.historyCap; overflow > 0 {
		runner.history = append([]RunResult(nil), runner.history[overflow:]...)
	}
}

// Run ticks until ctx is done, then waits for in-flight runs.
func (runner *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(runner.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			runner.Wait()
			return nil
		case <-ticker.C:
			runner.Tick(ctx, runner.now(), TriggerSchedule)
		}
	}
}

// Wait blocks until every dispatched run has finished.
func (runner *Runner) Wait() {
	runner.inflight.Wait()
}

// History returns a copy of the history, oldest first.
func (runner *Runner) History() []RunResult {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return append([]RunResult(nil), runner.history...)
}

// Schedules returns a copy of the schedules with their trigger times.
func (runner *Runner) Schedules() []Schedule {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	return append([]Schedule(nil), runner.schedules...)
}

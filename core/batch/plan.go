package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScheduleStatus enables or disables a schedule.
type ScheduleStatus string

const (
	ScheduleEnabled  ScheduleStatus = "enabled"
	ScheduleDisabled ScheduleStatus = "disabled"
)

// Trigger names what caused a planning pass.
type Trigger string

const (
	TriggerSchedule  Trigger = "schedule"
	TriggerUserEvent Trigger = "user_event"
	TriggerManual    Trigger = "manual"
)

// RunStatus is the state of one batch run result.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// Schedule is a recurring pipeline run. PipelineID is the overlap key: only
// one run per pipeline may be active at a time.
type Schedule struct {
	ID              string         `json:"id" yaml:"id" mapstructure:"id"`
	PipelineID      string         `json:"pipelineId" yaml:"pipelineId" mapstructure:"pipeline_id"`
	Label           string         `json:"label" yaml:"label" mapstructure:"label"`
	Status          ScheduleStatus `json:"status" yaml:"status" mapstructure:"status"`
	Provider        string         `json:"provider" yaml:"provider" mapstructure:"provider"`
	Query           string         `json:"query" yaml:"query" mapstructure:"query"`
	Cron            string         `json:"cron" yaml:"cron" mapstructure:"cron"`
	GraphPath       string         `json:"graphPath,omitempty" yaml:"graphPath" mapstructure:"graph_path"`
	LastTriggeredAt *time.Time     `json:"lastTriggeredAt,omitempty" yaml:"lastTriggeredAt" mapstructure:"last_triggered_at"`
}

// RunResult is one history row.
type RunResult struct {
	ID         string     `json:"id"`
	ScheduleID string     `json:"scheduleId"`
	PipelineID string     `json:"pipelineId"`
	Trigger    Trigger    `json:"trigger"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     RunStatus  `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Provider   string     `json:"provider,omitempty"`
}

// Cron is a parsed "minute hour" expression evaluated in UTC. A negative
// field is a wildcard.
type Cron struct {
	Minute int
	Hour   int
}

// ParseCron parses "minute hour" where each field is a number or "*".
// Extra fields are ignored.
func ParseCron(expression string) (Cron, error) {
	fields := strings.Fields(expression)
	if len(fields) < 2 {
		return Cron{}, fmt.Errorf("cron %q: want \"minute hour\"", expression)
	}
	minute, err := parseField(fields[0], 59)
	if err != nil {
		return Cron{}, fmt.Errorf("cron %q: minute: %w", expression, err)
	}
	hour, err := parseField(fields[1], 23)
	if err != nil {
		return Cron{}, fmt.Errorf("cron %q: hour: %w", expression, err)
	}
	return Cron{Minute: minute, Hour: hour}, nil
}

func parseField(field string, maxValue int) (int, error) {
	if field == "*" {
		return -1, nil
	}
	value, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if value < 0 || value > maxValue {
		return 0, fmt.Errorf("%d out of range 0-%d", value, maxValue)
	}
	return value, nil
}

// Due reports whether now, in UTC, falls in a matching minute.
func (cron Cron) Due(now time.Time) bool {
	now = now.UTC()
	return (cron.Minute < 0 || cron.Minute == now.Minute()) && (cron.Hour < 0 || cron.Hour == now.Hour())
}

// PlanInput is everything PlanBatchRuns looks at.
type PlanInput struct {
	Schedules         []Schedule
	ActivePipelineIDs map[string]bool
	Now               time.Time
	Trigger           Trigger
	// ProviderAvailable is optional; nil treats every provider as available.
	ProviderAvailable func(provider string) bool
}

// Plan is the outcome of a planning pass. Results holds a queued row for
// every due schedule and a skipped or failed row for every schedule that was
// held back.
type Plan struct {
	Due     []Schedule
	Results []RunResult
}

// PlanBatchRuns decides which schedules start now. It performs no I/O; the
// caller runs Plan.Due and records LastTriggeredAt.
func PlanBatchRuns(input PlanInput) Plan {
	now := input.Now.UTC()
	stamp := now.Format(time.RFC3339)
	minute := now.Truncate(time.Minute)
	plan := Plan{Due: make([]Schedule, 0), Results: make([]RunResult, 0)}

	result := func(schedule Schedule, suffix string, status RunStatus, reason string) RunResult {
		row := RunResult{
			ID:         schedule.ID + ":" + stamp + ":" + suffix,
			ScheduleID: schedule.ID,
			PipelineID: schedule.PipelineID,
			Trigger:    input.Trigger,
			StartedAt:  now,
			Status:     status,
			Reason:     reason,
			Provider:   schedule.Provider,
		}
		if status != RunQueued {
			finished := now
			row.FinishedAt = &finished
		}
		return row
	}

	for _, schedule := range input.Schedules {
		if schedule.Status != ScheduleEnabled {
			plan.Results = append(plan.Results, result(schedule, "disabled", RunSkipped, "schedule disabled"))
			continue
		}
		cron, err := ParseCron(schedule.Cron)
		if err != nil || !cron.Due(now) {
			continue
		}
		if schedule.LastTriggeredAt != nil && schedule.LastTriggeredAt.UTC().Truncate(time.Minute).Equal(minute) {
			plan.Results = append(plan.Results, result(schedule, "already-triggered", RunSkipped, "already triggered on this tick"))
			continue
		}
		if input.ActivePipelineIDs[schedule.PipelineID] {
			plan.Results = append(plan.Results, result(schedule, "overlap", RunSkipped, "overlap skip"))
			continue
		}
		if input.ProviderAvailable != nil && !input.ProviderAvailable(schedule.Provider) {
			plan.Results = append(plan.Results, result(schedule, "provider-failed", RunFailed, "provider unavailable"))
			continue
		}
		plan.Due = append(plan.Due, schedule)
		plan.Results = append(plan.Results, result(schedule, "queued", RunQueued, ""))
	}
	return plan
}

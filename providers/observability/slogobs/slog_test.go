package slogobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/railgraph/providers/observability"
)

func newJSONObserver(testingHelper *testing.T, level slog.Level) (*Observer, *bytes.Buffer) {
	testingHelper.Helper()
	buffer := &bytes.Buffer{}
	return New(WithFormat(FormatJSON), WithLevel(level), WithOutput(buffer)), buffer
}

func decodeLines(testingHelper *testing.T, buffer *bytes.Buffer) []map[string]any {
	testingHelper.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buffer.String()), "\n") {
		if line == "" {
			continue
		}
		record := map[string]any{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			testingHelper.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

// TestObserver_LogLevels verifies that records below the configured level are dropped.
func TestObserver_LogLevels(t *testing.T) {
	observer, buffer := newJSONObserver(t, slog.LevelInfo)
	ctx := context.Background()

	observer.Debug(ctx, "hidden")
	observer.Info(ctx, "node finished", observability.String(observability.AttrNodeID, "A"))

	records := decodeLines(t, buffer)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %v", len(records), records)
	}
	if records[0]["msg"] != "node finished" || records[0][observability.AttrNodeID] != "A" {
		t.Errorf("unexpected record: %v", records[0])
	}
}

// TestObserver_SpanLifecycle verifies that span attributes and errors reach the log.
func TestObserver_SpanLifecycle(t *testing.T) {
	observer, buffer := newJSONObserver(t, slog.LevelDebug)

	ctx, span := observer.StartSpan(context.Background(), observability.SpanNodeExecute,
		observability.String(observability.AttrNodeID, "B"))
	if observability.SpanFromContext(ctx) != span {
		t.Fatal("StartSpan() should attach the span to the returned context")
	}
	span.SetStatus(observability.StatusError, "boom")
	span.RecordError(errors.New("executor failed"))
	span.End()

	records := decodeLines(t, buffer)
	last := records[len(records)-1]
	if last["msg"] != "span ended" {
		t.Fatalf("last record should be span end, got %v", last)
	}
	if last[observability.AttrStatus] != "error" || last["error"] != "executor failed" {
		t.Errorf("span end missing status or error: %v", last)
	}
}

func TestObserver_CounterAccumulates(t *testing.T) {
	observer, _ := newJSONObserver(t, slog.LevelError)
	ctx := context.Background()

	observer.Counter(observability.MetricNodeCount).Add(ctx, 2)
	observer.Counter(observability.MetricNodeCount).Add(ctx, 3)

	if got := observer.CounterValue(observability.MetricNodeCount); got != 5 {
		t.Errorf("CounterValue() = %d, want 5", got)
	}
	if got := observer.CounterValue("missing"); got != 0 {
		t.Errorf("CounterValue(missing) = %d, want 0", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":    LevelTrace,
		"DEBUG":    slog.LevelDebug,
		" warn ":   slog.LevelWarn,
		"error":    slog.LevelError,
		"nonsense": slog.LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/observability"
)

// answerTerminator ends a multi-line answer typed on stdin.
const answerTerminator = "."

const humanPollInterval = 500 * time.Millisecond

func newRunCommand(application *app) *cobra.Command {
	var (
		graphPath string
		question  string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a graph once and print the run record",
		Long: `Execute a graph once and print the run record.

Web turns without a bridge print their prompt on stderr and read the answer
from stdin, terminated by a line holding a single ".". Interrupting the
command cancels the run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := graph.Load(graphPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack, err := application.buildStack(ctx)
			if err != nil {
				return err
			}
			defer stack.close()

			events, unsubscribe := stack.engine.Subscribe(64)
			defer unsubscribe()

			runID, err := stack.engine.Start(ctx, g, question)
			if err != nil {
				return err
			}
			go answerHumans(ctx, stack.engine, runID, events, cmd.InOrStdin(), cmd.ErrOrStderr())

			waitCtx := context.WithoutCancel(ctx)
			go func() {
				<-ctx.Done()
				if err := stack.engine.Cancel(runID); err != nil && !errors.Is(err, run.ErrInvalidTransition) {
					stack.observer.Warn(waitCtx, "cancel run", observability.String(observability.AttrRunID, runID), observability.Error(err))
				}
			}()

			record, err := stack.engine.Wait(waitCtx, runID)
			if err != nil {
				stack.observer.Error(waitCtx, "run finished but was not persisted", observability.String(observability.AttrRunID, runID), observability.Error(err))
			}
			if err := writeValue(cmd.OutOrStdout(), output, record); err != nil {
				return err
			}
			if record.Status != string(run.StatusCompleted) {
				return fmt.Errorf("run %s ended %s: %s", runID, record.Status, record.FailureReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&graphPath, "graph", "", "graph file (YAML or JSON)")
	cmd.Flags().StringVar(&question, "question", "", "question handed to the root nodes")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "record format: json or yaml")
	_ = cmd.MarkFlagRequired("graph")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

// answerHumans serves the human queue of runID from in until the run ends
// or ctx is done. Events may be dropped for slow subscribers, so the queue
// is also polled.
func answerHumans(ctx context.Context, engine *run.Engine, runID string, events <-chan run.Event, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	ticker := time.NewTicker(humanPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !drainPending(engine, runID, reader, out) {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.RunID != runID {
				continue
			}
			if event.NodeID == "" && run.Status(event.Status).Terminal() {
				return
			}
			if event.Status != string(run.NodeWaitingUser) {
				continue
			}
			if !drainPending(engine, runID, reader, out) {
				return
			}
		}
	}
}

// drainPending answers pending tickets until none is left. It reports false
// once stdin is exhausted.
func drainPending(engine *run.Engine, runID string, reader *bufio.Reader, out io.Writer) bool {
	queue, err := engine.HumanQueue(runID)
	if err != nil {
		return false
	}
	for {
		pending := queue.Snapshot().Pending
		if pending == nil {
			return true
		}
		fmt.Fprintf(out, "\n[%s via %s] paste the answer, end with a line containing %q:\n%s\n> ",
			pending.Turn.NodeID, pending.Turn.Provider, answerTerminator, pending.Turn.Prompt)

		answer, err := readAnswer(reader)
		if err != nil {
			_ = queue.Submit(pending.ID, humanloop.Failure("no answer on stdin"))
			return false
		}
		if err := queue.Submit(pending.ID, humanloop.Response{OK: true, Output: answer}); err != nil {
			fmt.Fprintf(out, "answer dropped: %v\n", err)
		}
	}
}

func readAnswer(reader *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == answerTerminator {
			return strings.Join(lines, "\n"), nil
		}
		if trimmed != "" || err == nil {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if len(lines) > 0 && errors.Is(err, io.EOF) {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}
	}
}

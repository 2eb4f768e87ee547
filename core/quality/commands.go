package quality

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultCommandTimeout = 5 * time.Minute
	stderrTailBytes       = 2000
)

// CommandResult is the outcome of one verification command.
type CommandResult struct {
	Name       string `json:"name"`
	ExitCode   int    `json:"exitCode"`
	StderrTail string `json:"stderrTail"`
}

// CommandRunner runs verification commands for the code profile.
type CommandRunner interface {
	Run(ctx context.Context, commands []string, dir string) ([]CommandResult, error)
}

// ParseCommands trims each entry, splits multi-line entries, and drops blanks.
func ParseCommands(raw []string) []string {
	commands := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, line := range strings.Split(entry, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				commands = append(commands, line)
			}
		}
	}
	return commands
}

// ShellRunner runs each command through "sh -c" in sequence.
type ShellRunner struct {
	Shell   string
	Timeout time.Duration
}

// Run executes every command even when an earlier one fails, so the report
// lists all failures. A command that cannot be started yields exit code -1.
func (runner ShellRunner) Run(ctx context.Context, commands []string, dir string) ([]CommandResult, error) {
	shell := runner.Shell
	if shell == "" {
		shell = "sh"
	}
	timeout := runner.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	results := make([]CommandResult, 0, len(commands))
	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, runOne(ctx, shell, command, dir, timeout))
	}
	return results, nil
}

func runOne(ctx context.Context, shell, command, dir string, timeout time.Duration) CommandResult {
	commandCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(commandCtx, shell, "-c", command)
	cmd.Dir = dir
	cmd.Stderr = &stderr

	result := CommandResult{Name: command}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			fmt.Fprintf(&stderr, "%v", err)
		}
	}
	tail := stderr.String()
	if len(tail) > stderrTailBytes {
		tail = tail[len(tail)-stderrTailBytes:]
	}
	result.StderrTail = tail
	return result
}

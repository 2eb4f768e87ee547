package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/internal/utils"
)

const (
	ThresholdMin     = 10
	ThresholdMax     = 100
	ThresholdStep    = 10
	DefaultThreshold = 70

	minimumLength = 120
)

// ErrLowQuality marks an output whose score fell below its threshold.
var ErrLowQuality = errors.New("quality below threshold")

// Decision is the outcome of a quality evaluation.
type Decision string

const (
	DecisionPass   Decision = "PASS"
	DecisionReject Decision = "REJECT"
)

// Check is one rubric item.
type Check struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Kind       string `json:"kind"`
	Required   bool   `json:"required"`
	Passed     bool   `json:"passed"`
	ScoreDelta int    `json:"scoreDelta"`
	Detail     string `json:"detail,omitempty"`
}

// Report is the result of evaluating one node output.
type Report struct {
	Profile   Profile  `json:"profile"`
	Threshold int      `json:"threshold"`
	Score     int      `json:"score"`
	Decision  Decision `json:"decision"`
	Checks    []Check  `json:"checks"`
	Failures  []string `json:"failures"`
	Warnings  []string `json:"warnings"`
}

// Passed reports whether the score met the threshold.
func (report Report) Passed() bool {
	return report.Decision == DecisionPass
}

// Err returns nil for a passing report and an error wrapping ErrLowQuality
// otherwise.
func (report Report) Err() error {
	if report.Passed() {
		return nil
	}
	return fmt.Errorf("%w: score %d < threshold %d", ErrLowQuality, report.Score, report.Threshold)
}

// NormalizeScore clamps a raw score to 0..100 and rounds it to the nearest step.
func NormalizeScore(score int) int {
	return roundToStep(max(0, min(100, score)))
}

// NormalizeThreshold clamps a threshold to 10..100 in steps of 10. Zero means
// the default.
func NormalizeThreshold(threshold int) int {
	if threshold == 0 {
		return DefaultThreshold
	}
	return roundToStep(max(ThresholdMin, min(ThresholdMax, threshold)))
}

func roundToStep(value int) int {
	return int(math.Round(float64(value)/ThresholdStep)) * ThresholdStep
}

// Evaluator scores outputs. Verification commands only run when
// CommandsEnabled is set and a Runner is present.
type Evaluator struct {
	Runner          CommandRunner
	CommandsEnabled bool
	WorkDir         string
}

var (
	sourcePattern      = regexp.MustCompile(`(?i)(source|reference|citation|http|https)`)
	uncertaintyPattern = regexp.MustCompile(`(?i)(limit|uncertain|risk|counter|caveat|constraint)`)
	codePlanPattern    = regexp.MustCompile(`(?i)(file|test|lint|build|patch|module|class|function)`)

	designKeywords    = []string{"goal", "constraint", "risk", "priority", "architecture", "scope", "milestone"}
	synthesisKeywords = []string{"conclusion", "evidence", "limit", "next step", "action", "checklist"}
)

type reportBuilder struct {
	report Report
	score  int
}

func (builder *reportBuilder) add(check Check, penalty int) {
	if !check.Passed {
		builder.score = max(0, builder.score-penalty)
		check.ScoreDelta = -penalty
		if check.Required {
			builder.report.Failures = append(builder.report.Failures, check.Label)
		}
	}
	builder.report.Checks = append(builder.report.Checks, check)
}

// Evaluate scores output for the turn node nodeID.
func (evaluator *Evaluator) Evaluate(ctx context.Context, nodeID string, config graph.TurnConfig, output any) Report {
	builder := &reportBuilder{
		report: Report{
			Profile:   InferProfile(nodeID, config),
			Threshold: NormalizeThreshold(config.QualityThreshold),
			Checks:    make([]Check, 0, 4),
			Failures:  make([]string, 0),
			Warnings:  make([]string, 0),
		},
		score: 100,
	}

	text := strings.TrimSpace(parse.ExtractFinalAnswer(output))
	lowered := strings.ToLower(text)

	builder.add(Check{ID: "non_empty", Label: "response is not empty", Kind: "structure", Required: true, Passed: text != ""}, 40)
	builder.add(Check{
		ID:     "minimum_length",
		Label:  "minimum explanation length",
		Kind:   "structure",
		Passed: utf8.RuneCountInString(text) >= minimumLength,
		Detail: fmt.Sprintf("penalized below %d characters", minimumLength),
	}, 10)

	switch builder.report.Profile {
	case ProfileResearchEvidence:
		builder.add(Check{ID: "source_signal", Label: "cites sources or evidence", Kind: "evidence", Required: true, Passed: sourcePattern.MatchString(text)}, 20)
		builder.add(Check{ID: "uncertainty_signal", Label: "states limits or uncertainty", Kind: "consistency", Passed: uncertaintyPattern.MatchString(text)}, 10)
	case ProfileDesignPlanning:
		builder.add(Check{
			ID:       "design_sections",
			Label:    "covers core design sections",
			Kind:     "structure",
			Required: true,
			Passed:   keywordHits(lowered, designKeywords) >= 3,
			Detail:   "needs at least 3 of goal/constraint/risk/priority/architecture/scope/milestone",
		}, 20)
	case ProfileSynthesisFinal:
		builder.add(Check{
			ID:       "final_structure",
			Label:    "final answer structure",
			Kind:     "structure",
			Required: true,
			Passed:   keywordHits(lowered, synthesisKeywords) >= 3,
			Detail:   "needs at least 3 of conclusion/evidence/limits/next steps",
		}, 20)
	case ProfileCodeImplementation:
		builder.add(Check{ID: "code_plan_signal", Label: "mentions files, tests, or build steps", Kind: "structure", Required: true, Passed: codePlanPattern.MatchString(text)}, 20)
		evaluator.runCommands(ctx, builder, config.QualityCommands)
	}

	builder.report.Score = NormalizeScore(builder.score)
	builder.report.Decision = DecisionReject
	if builder.report.Score >= builder.report.Threshold {
		builder.report.Decision = DecisionPass
	}
	return builder.report
}

func (evaluator *Evaluator) runCommands(ctx context.Context, builder *reportBuilder, raw []string) {
	if evaluator == nil || !evaluator.CommandsEnabled || evaluator.Runner == nil {
		return
	}
	commands := ParseCommands(raw)
	if len(commands) == 0 {
		builder.report.Warnings = append(builder.report.Warnings, "quality commands are enabled but the command list is empty")
		return
	}

	check := Check{ID: "local_commands", Label: "local quality commands pass", Kind: "local_command", Required: true}
	results, err := evaluator.Runner.Run(ctx, commands, evaluator.WorkDir)
	if err != nil {
		check.Detail = err.Error()
		builder.add(check, 30)
		return
	}

	check.Passed = true
	check.Detail = "all commands succeeded"
	for _, result := range results {
		if result.ExitCode == 0 {
			continue
		}
		if check.Passed {
			check.Passed = false
			check.Detail = fmt.Sprintf("%s failed (exit=%d)", result.Name, result.ExitCode)
		}
		if tail := strings.TrimSpace(result.StderrTail); tail != "" {
			builder.report.Warnings = append(builder.report.Warnings, fmt.Sprintf("[%s] %s", result.Name, utils.ClipText(tail, 400)))
		}
	}
	builder.add(check, 30)
}

func keywordHits(text string, keywords []string) int {
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			hits++
		}
	}
	return hits
}

// Summary aggregates the reports of a run.
type Summary struct {
	AvgScore   float64 `json:"avgScore"`
	PassRate   float64 `json:"passRate"`
	TotalNodes int     `json:"totalNodes"`
	PassNodes  int     `json:"passNodes"`
}

// Summarize computes the average score (two decimals) and pass rate (a
// percentage with two decimals) over reports.
func Summarize(reports map[string]Report) Summary {
	if len(reports) == 0 {
		return Summary{}
	}
	total, passed := 0, 0
	for _, report := range reports {
		total += report.Score
		if report.Passed() {
			passed++
		}
	}
	count := float64(len(reports))
	return Summary{
		AvgScore:   math.Round(float64(total)/count*100) / 100,
		PassRate:   math.Round(float64(passed)/count*10000) / 100,
		TotalNodes: len(reports),
		PassNodes:  passed,
	}
}

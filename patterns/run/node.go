package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/evidence"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/core/quality"
	"github.com/leofalp/railgraph/internal/jsonschema"
	"github.com/leofalp/railgraph/internal/utils"
	"github.com/leofalp/railgraph/patterns/dag"
	"github.com/leofalp/railgraph/providers/ai"
	"github.com/leofalp/railgraph/providers/executor"
	"github.com/leofalp/railgraph/providers/observability"
)

const localProvider = "local"

var decisionPattern = regexp.MustCompile(`\b(PASS|REJECT)\b`)

// processNode is the scheduler task for one node. It never returns a
// failure Outcome for conditions the run absorbs (skips, pauses).
func (engine *Engine) processNode(ctx context.Context, state *runState, nodeID string) dag.Outcome {
	if state.runStatus() == StatusCancelled {
		state.setNodeStatus(nodeID, NodeCancelled, "run cancelled")
		return dag.Outcome{Status: string(NodeCancelled)}
	}
	if reason, blocked := state.blockedReason(nodeID); blocked {
		state.setNodeStatus(nodeID, NodeSkipped, reason)
		return dag.Outcome{Status: string(NodeSkipped)}
	}

	node, _ := state.index.Node(nodeID)
	input := engine.resolveInput(state, node)

	state.beginAttempt(nodeID)
	state.setNodeStatus(nodeID, NodeRunning, "")
	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(observability.String(observability.AttrRunID, state.id))
	}

	var (
		output   any
		provider = localProvider
		role     = node.Type.Label()
		err      error
	)
	switch node.Type {
	case graph.NodeTurn:
		output, provider, role, err = engine.runTurn(ctx, state, node, input)
	case graph.NodeTransform:
		output, err = runTransform(state, node, input)
	case graph.NodeGate:
		output, err = runGate(state, node, input)
	default:
		err = fmt.Errorf("unsupported node type %q", node.Type)
	}

	return engine.settle(ctx, state, nodeID, nodeResult{output: output, provider: provider, role: role, err: err})
}

type nodeResult struct {
	output   any
	provider string
	role     string
	err      error
}

// settle records the result of one attempt and maps it to the scheduler
// outcome. An attempt whose task context was cancelled by a pause is
// re-queued even when the run has been resumed since.
func (engine *Engine) settle(ctx context.Context, state *runState, nodeID string, result nodeResult) dag.Outcome {
	err := result.err
	interrupted := (errors.Is(err, executor.ErrCancelled) || errors.Is(err, context.Canceled)) &&
		ctx.Err() != nil && !state.scheduler.Cancelled()

	switch {
	case state.runStatus() == StatusCancelled:
		state.setNodeStatus(nodeID, NodeCancelled, "run cancelled")
		return dag.Outcome{Status: string(NodeCancelled), Err: ErrCancelled}

	case interrupted:
		state.setNodeStatus(nodeID, NodeQueued, "re-queued after pause")
		return dag.Outcome{Status: string(NodeQueued), Requeue: true, Err: ErrPaused}

	case errors.Is(err, quality.ErrLowQuality) && result.output != nil:
		state.setOutput(nodeID, result.output)
		state.evidence.Append(nodeID, result.role, result.provider, result.output, "")
		state.setNodeError(nodeID, err)
		state.setNodeStatus(nodeID, NodeLowQuality, err.Error())
		return dag.Outcome{Status: string(NodeLowQuality), Err: err}

	case err != nil:
		state.setNodeError(nodeID, err)
		state.setNodeStatus(nodeID, NodeFailed, err.Error())
		return dag.Outcome{Status: string(NodeFailed), Err: err}
	}

	state.setOutput(nodeID, result.output)
	state.evidence.Append(nodeID, result.role, result.provider, result.output, "")
	state.setNodeStatus(nodeID, NodeDone, "")
	return dag.Outcome{Status: string(NodeDone)}
}

// blockedReason reports why nodeID cannot run: it was not selected by a
// gate, or an upstream node ended without output. A parent skipped by a gate
// does not block a join that still has another parent with output.
func (state *runState) blockedReason(nodeID string) (string, bool) {
	if reason, skipped := state.skipReason(nodeID); skipped {
		return reason, true
	}
	parents := state.index.Parents(nodeID)
	withOutput := 0
	for _, parentID := range parents {
		if _, ok := state.output(parentID); ok {
			withOutput++
			continue
		}
		if state.nodeStatus(parentID) != NodeSkipped {
			return fmt.Sprintf("upstream %s produced no output", parentID), true
		}
	}
	if len(parents) > 0 && withOutput == 0 {
		return fmt.Sprintf("upstream %s produced no output", parents[0]), true
	}
	return "", false
}

// resolveInput picks what a node receives: the question for roots, a
// synthesis packet for joins and the final turn, and the parent's output
// otherwise.
func (engine *Engine) resolveInput(state *runState, node graph.Node) any {
	parents := state.index.Parents(node.ID)
	if len(parents) == 0 {
		return state.question
	}
	if len(parents) > 1 || (node.Type == graph.NodeTurn && state.index.IsSink(node.ID)) {
		packets := state.evidence.LatestFrom(parents)
		return evidence.BuildSynthesisPacket(state.question, packets, state.evidence.Memory())
	}
	output, _ := state.output(parents[0])
	return output
}

func (engine *Engine) runTurn(ctx context.Context, state *runState, node graph.Node, input any) (any, string, string, error) {
	config, err := graph.DecodeTurnConfig(node)
	if err != nil {
		return nil, localProvider, graph.NodeTurn.Label(), err
	}
	role := config.RoleLabel()
	provider := config.ExecutorOrDefault().ProviderName()

	if err := engine.checkApproval(node.ID, config); err != nil {
		state.logf(node.ID, "[approval] %v", err)
		return nil, provider, role, err
	}

	var schema *jsonschema.Schema
	if engine.schemaCheck && config.OutputSchema != nil {
		schema, err = jsonschema.Parse(config.OutputSchema)
		if err != nil && !errors.Is(err, jsonschema.ErrEmptySchema) {
			return nil, provider, role, fmt.Errorf("output schema: %w", err)
		}
	}
	maxRetry := engine.maxSchemaRetry
	if config.MaxSchemaRetry != nil {
		maxRetry = *config.MaxSchemaRetry
	}

	attempt := 0
	turn := func(turnCtx context.Context, turnInput any) (any, *ai.Usage, error) {
		attempt++
		result, err := engine.executor.Execute(turnCtx, executor.Request{
			RunID:  state.id,
			NodeID: node.ID,
			Config: config,
			Input:  turnInput,
			Prompt: engine.renderPrompt(state, node.ID, config, turnInput, attempt > 1),
			Humans: state.humans,
			Waiting: func(ticketID string) {
				state.setTicket(node.ID, ticketID)
				state.setNodeStatus(node.ID, NodeWaitingUser, "waiting for human input ("+ticketID+")")
			},
		})
		if state.nodeStatus(node.ID) == NodeWaitingUser && err == nil {
			state.setNodeStatus(node.ID, NodeRunning, "human response received")
		}
		if err != nil {
			return nil, nil, err
		}
		provider = result.Provider
		return result.Output, result.Usage, nil
	}

	result, err := quality.ExecuteWithSchemaRetry(ctx, input, turn, quality.RetryOptions{
		Schema:   schema,
		MaxRetry: maxRetry,
		Log:      func(message string) { state.logf(node.ID, "%s", message) },
	})
	state.addUsage(node.ID, result.Usage)
	if err != nil {
		return nil, provider, role, err
	}

	if state.index.IsSink(node.ID) || config.QualityProfile != "" || config.QualityThreshold > 0 {
		report := engine.evaluator.Evaluate(ctx, node.ID, config, result.Output)
		state.setQuality(node.ID, report)
		state.logf(node.ID, "[quality] profile=%s score=%d threshold=%d decision=%s",
			report.Profile, report.Score, report.Threshold, report.Decision)
		if qualityErr := report.Err(); qualityErr != nil {
			return result.Output, provider, role, qualityErr
		}
	}
	return result.Output, provider, role, nil
}

func (engine *Engine) checkApproval(nodeID string, config graph.TurnConfig) error {
	if config.Approval == nil {
		return nil
	}
	taskID := strings.TrimSpace(config.Approval.TaskID)
	if taskID == "" {
		taskID = nodeID
	}
	decision := engine.approvals.Evaluate(taskID, approval.ActionType(config.Approval.ActionType), config.Approval.Preview)
	if !decision.Allowed {
		return &approval.DeniedError{Decision: decision}
	}
	return nil
}

// renderPrompt fills the prompt template. {{input}} and {{question}} are
// substituted; a template without {{input}} gets the input appended. Inputs
// that are not synthesis packets also carry the run memory of other nodes.
// Schema retries send the corrective prompt unchanged.
func (engine *Engine) renderPrompt(state *runState, nodeID string, config graph.TurnConfig, input any, isRetry bool) string {
	if retryPrompt, ok := input.(string); ok && isRetry {
		return retryPrompt
	}

	text := utils.Stringify(input)
	prompt := text
	if template := strings.TrimSpace(config.PromptTemplate); template != "" {
		if strings.Contains(template, "{{input}}") {
			prompt = strings.ReplaceAll(template, "{{input}}", text)
		} else {
			prompt = template + "\n\n" + text
		}
		prompt = strings.ReplaceAll(prompt, "{{question}}", state.question)
	}

	if _, isPacket := input.(evidence.SynthesisPacket); isPacket {
		return prompt
	}
	memory := state.evidence.MemoryExcept(nodeID)
	if len(memory) == 0 {
		return prompt
	}
	var builder strings.Builder
	builder.WriteString(prompt)
	builder.WriteString("\n\n[Run memory]")
	for _, entry := range memory {
		fmt.Fprintf(&builder, "\n- %s (%s): %s", entry.RoleLabel, entry.NodeID, entry.LatestSummary)
	}
	return builder.String()
}

func runTransform(state *runState, node graph.Node, input any) (any, error) {
	config, err := graph.DecodeTransformConfig(node)
	if err != nil {
		return nil, err
	}
	switch config.Mode {
	case graph.TransformPick:
		value, found := parse.GetByPath(parse.ValidationTarget(toGeneric(input)), config.Path)
		if !found {
			return nil, fmt.Errorf("path %q not found in input", config.Path)
		}
		return value, nil

	case graph.TransformMerge:
		merged := make(map[string]any, len(config.Merge)+1)
		switch base := parse.ValidationTarget(toGeneric(input)).(type) {
		case map[string]any:
			maps.Copy(merged, base)
		case nil:
		default:
			merged["value"] = base
		}
		maps.Copy(merged, config.Merge)
		return merged, nil

	case graph.TransformTemplate:
		text := strings.ReplaceAll(config.Template, "{{input}}", parse.ExtractText(input))
		text = strings.ReplaceAll(text, "{{question}}", state.question)
		return map[string]any{"text": text}, nil
	}
	return nil, fmt.Errorf("unsupported transform mode %q", config.Mode)
}

// runGate decides PASS or REJECT and marks every child it did not select as
// skipped. The pass branch defaults to the first child and the reject
// branch to the second.
func runGate(state *runState, node graph.Node, input any) (any, error) {
	config, err := graph.DecodeGateConfig(node)
	if err != nil {
		return nil, err
	}
	target := parse.ValidationTarget(toGeneric(input))

	if config.Schema != nil {
		schema, err := jsonschema.Parse(config.Schema)
		if err != nil && !errors.Is(err, jsonschema.ErrEmptySchema) {
			return nil, fmt.Errorf("gate schema: %w", err)
		}
		if schema != nil {
			if problems := jsonschema.Validate(schema, target); len(problems) > 0 {
				return nil, fmt.Errorf("%w: %s", quality.ErrSchemaValidation, strings.Join(problems, "; "))
			}
		}
	}

	decision := gateDecision(target, input, config.DecisionPathOrDefault())
	children := state.index.Children(node.ID)
	selected := ""
	switch {
	case decision == quality.DecisionPass && config.PassNodeID != "":
		selected = config.PassNodeID
	case decision == quality.DecisionPass && len(children) > 0:
		selected = children[0]
	case decision == quality.DecisionReject && config.RejectNodeID != "":
		selected = config.RejectNodeID
	case decision == quality.DecisionReject && len(children) > 1:
		selected = children[1]
	}

	for _, childID := range children {
		if childID != selected {
			state.markSkipped(childID, fmt.Sprintf("not selected by gate %s", node.ID))
		}
	}
	state.logf(node.ID, "[gate] decision=%s selected=%s", decision, selected)

	return map[string]any{
		"decision": string(decision),
		"selected": selected,
		"text":     parse.ExtractText(input),
	}, nil
}

func gateDecision(target, input any, path string) quality.Decision {
	if value, found := parse.GetByPath(target, path); found {
		switch typed := value.(type) {
		case string:
			switch strings.ToUpper(strings.TrimSpace(typed)) {
			case "PASS":
				return quality.DecisionPass
			case "REJECT":
				return quality.DecisionReject
			}
		case bool:
			if typed {
				return quality.DecisionPass
			}
			return quality.DecisionReject
		}
	}
	if match := decisionPattern.FindString(parse.ExtractText(input)); match != "" {
		return quality.Decision(match)
	}
	return quality.DecisionReject
}

// toGeneric converts structured Go values, such as synthesis packets, into
// the map and slice form that path lookups understand.
func toGeneric(value any) any {
	switch value.(type) {
	case nil, string, map[string]any, []any, float64, bool:
		return value
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var generic any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return value
	}
	return generic
}

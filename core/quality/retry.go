package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leofalp/railgraph/core/parse"
	"github.com/leofalp/railgraph/internal/jsonschema"
	"github.com/leofalp/railgraph/internal/utils"
	"github.com/leofalp/railgraph/providers/ai"
)

const retryInputClip = 2800

// ErrSchemaValidation marks an output that still violates its schema after
// every retry.
var ErrSchemaValidation = errors.New("output schema validation failed")

// TurnFunc performs one execution of a turn with the given input.
type TurnFunc func(ctx context.Context, input any) (output any, usage *ai.Usage, err error)

// RetryOptions configures ExecuteWithSchemaRetry. A nil Schema disables
// validation.
type RetryOptions struct {
	Schema   *jsonschema.Schema
	MaxRetry int
	Log      func(message string)
}

// RetryResult is the outcome of a turn with schema retries. Usage is summed
// over every attempt, including failed ones.
type RetryResult struct {
	Output       any
	Usage        *ai.Usage
	Attempts     int
	SchemaErrors []string
}

// ExecuteWithSchemaRetry runs turn with input and, when a schema is set,
// validates the output. Each violation triggers a corrective re-invocation
// until the output conforms or MaxRetry retries are spent.
func ExecuteWithSchemaRetry(ctx context.Context, input any, turn TurnFunc, options RetryOptions) (RetryResult, error) {
	logf := func(format string, args ...any) {
		if options.Log != nil {
			options.Log(fmt.Sprintf(format, args...))
		}
	}

	output, usage, err := turn(ctx, input)
	result := RetryResult{Output: output, Usage: ai.MergeUsage(nil, usage), Attempts: 1}
	if err != nil || options.Schema == nil {
		return result, err
	}

	result.SchemaErrors = jsonschema.Validate(options.Schema, parse.ValidationTarget(output))
	if len(result.SchemaErrors) == 0 {
		return result, nil
	}

	maxRetry := max(0, options.MaxRetry)
	logf("[schema] validation failed: %s", strings.Join(result.SchemaErrors, "; "))
	if maxRetry > 0 {
		logf("[schema] retrying up to %d times", maxRetry)
	} else {
		logf("[schema] retries disabled, failing immediately")
	}

	for retry := 0; retry < maxRetry && len(result.SchemaErrors) > 0; retry++ {
		retryInput := BuildRetryInput(input, result.Output, options.Schema, result.SchemaErrors)
		output, usage, err = turn(ctx, retryInput)
		result.Attempts++
		result.Usage = ai.MergeUsage(result.Usage, usage)
		if err != nil {
			return result, fmt.Errorf("output schema retry failed: %w", err)
		}
		result.Output = output
		result.SchemaErrors = jsonschema.Validate(options.Schema, parse.ValidationTarget(output))
	}

	if len(result.SchemaErrors) > 0 {
		return result, fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(result.SchemaErrors, "; "))
	}
	logf("[schema] output schema validation PASS")
	return result, nil
}

// BuildRetryInput renders the corrective follow-up prompt: the original
// input, the previous output, the schema, and the numbered error list.
func BuildRetryInput(originalInput, previousOutput any, schema *jsonschema.Schema, schemaErrors []string) string {
	clipped := func(value any) string {
		text := strings.TrimSpace(utils.Stringify(value))
		if text == "" {
			return "(none)"
		}
		return utils.ClipText(text, retryInputClip)
	}

	numbered := make([]string, len(schemaErrors))
	for index, message := range schemaErrors {
		numbered[index] = fmt.Sprintf("%d. %s", index+1, message)
	}

	return strings.Join([]string{
		"[Original input]",
		clipped(originalInput),
		"[Previous output]",
		clipped(parse.ValidationTarget(previousOutput)),
		"[Output schema (JSON)]",
		utils.JSONToString(schema, true),
		"[Schema errors]",
		strings.Join(numbered, "\n"),
		"[Retry instruction]",
		"Please correct the schema errors above. Output only the structure that strictly conforms to the schema, without extra explanation.",
	}, "\n\n")
}

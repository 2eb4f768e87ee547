package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// DefaultDecisionPath is where a gate looks for its PASS/REJECT decision
// when GateConfig.DecisionPath is empty.
const DefaultDecisionPath = "DECISION"

// TurnConfig configures a turn node.
type TurnConfig struct {
	Executor         ExecutorKind  `mapstructure:"executor" validate:"omitempty,executor"`
	Model            string        `mapstructure:"model"`
	Role             string        `mapstructure:"role"`
	PromptTemplate   string        `mapstructure:"promptTemplate"`
	QualityProfile   string        `mapstructure:"qualityProfile" validate:"omitempty,oneof=code_implementation research_evidence design_planning synthesis_final generic"`
	QualityThreshold int           `mapstructure:"qualityThreshold" validate:"omitempty,min=0,max=100"`
	OutputSchema     any           `mapstructure:"outputSchema"`
	MaxSchemaRetry   *int          `mapstructure:"maxSchemaRetry" validate:"omitempty,min=0,max=10"`
	QualityCommands  []string      `mapstructure:"qualityCommands"`
	WebResultMode    WebResultMode `mapstructure:"webResultMode" validate:"omitempty,oneof=bridgeAssisted auto manualPasteJson manualPasteText"`
	Approval         *ApprovalSpec `mapstructure:"approval"`
}

// ApprovalSpec declares that a turn node performs a gated action that must
// have an approved request before it executes.
type ApprovalSpec struct {
	TaskID     string `mapstructure:"taskId"`
	ActionType string `mapstructure:"actionType" validate:"required,oneof=commandExecution fileChange externalCall unknown"`
	Preview    string `mapstructure:"preview" validate:"required"`
}

// ExecutorOrDefault returns the configured executor, defaulting to codex.
func (config TurnConfig) ExecutorOrDefault() ExecutorKind {
	if config.Executor == "" {
		return ExecutorCodex
	}
	return config.Executor
}

// RoleLabel returns the role, or a generic label when none was authored.
func (config TurnConfig) RoleLabel() string {
	if strings.TrimSpace(config.Role) != "" {
		return strings.TrimSpace(config.Role)
	}
	return NodeTurn.Label()
}

// TransformMode selects the transform operation.
type TransformMode string

const (
	TransformPick     TransformMode = "pick"
	TransformMerge    TransformMode = "merge"
	TransformTemplate TransformMode = "template"
)

// TransformConfig configures a transform node.
type TransformConfig struct {
	Mode     TransformMode  `mapstructure:"mode" validate:"required,oneof=pick merge template"`
	Path     string         `mapstructure:"path" validate:"required_if=Mode pick"`
	Merge    map[string]any `mapstructure:"merge"`
	Template string         `mapstructure:"template" validate:"required_if=Mode template"`
}

// GateConfig configures a gate node.
type GateConfig struct {
	DecisionPath string `mapstructure:"decisionPath"`
	PassNodeID   string `mapstructure:"passNodeId"`
	RejectNodeID string `mapstructure:"rejectNodeId"`
	Schema       any    `mapstructure:"schema"`
}

// DecisionPathOrDefault returns the configured decision path or DefaultDecisionPath.
func (config GateConfig) DecisionPathOrDefault() string {
	if strings.TrimSpace(config.DecisionPath) == "" {
		return DefaultDecisionPath
	}
	return strings.TrimSpace(config.DecisionPath)
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("executor", func(field validator.FieldLevel) bool {
		return ExecutorKind(field.Field().String()).Valid()
	})
	return validate
}

// DecodeTurnConfig decodes and validates the config of a turn node.
func DecodeTurnConfig(node Node) (TurnConfig, error) {
	var config TurnConfig
	if err := decodeConfig(node, &config); err != nil {
		return TurnConfig{}, err
	}
	return config, nil
}

// DecodeTransformConfig decodes and validates the config of a transform node.
func DecodeTransformConfig(node Node) (TransformConfig, error) {
	var config TransformConfig
	if err := decodeConfig(node, &config); err != nil {
		return TransformConfig{}, err
	}
	return config, nil
}

// DecodeGateConfig decodes and validates the config of a gate node.
func DecodeGateConfig(node Node) (GateConfig, error) {
	var config GateConfig
	if err := decodeConfig(node, &config); err != nil {
		return GateConfig{}, err
	}
	return config, nil
}

func decodeConfig(node Node, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("node %q: config decoder: %w", node.ID, err)
	}
	if err := decoder.Decode(node.Config); err != nil {
		return fmt.Errorf("node %q: decode %s config: %w", node.ID, node.Type, err)
	}
	if err := configValidator.Struct(target); err != nil {
		return fmt.Errorf("node %q: %w", node.ID, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]error, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		field := fieldError.Namespace()
		if dot := strings.Index(field, "."); dot >= 0 {
			field = field[dot+1:]
		}
		switch fieldError.Tag() {
		case "required", "required_if":
			messages = append(messages, fmt.Errorf("field '%s' is required", field))
		case "oneof":
			messages = append(messages, fmt.Errorf("field '%s' must be one of [%s]", field, fieldError.Param()))
		case "executor":
			messages = append(messages, fmt.Errorf("field '%s' names unknown executor %q", field, fieldError.Value()))
		case "min", "max":
			messages = append(messages, fmt.Errorf("field '%s' must satisfy %s=%s", field, fieldError.Tag(), fieldError.Param()))
		default:
			messages = append(messages, fmt.Errorf("field '%s' failed '%s' validation", field, fieldError.Tag()))
		}
	}
	return errors.Join(messages...)
}

package config

import (
	"time"

	"github.com/leofalp/railgraph/core/batch"
)

// EnvPrefix prefixes every environment override: run.log_cap is read from
// RAILGRAPH_RUN_LOG_CAP.
const EnvPrefix = "RAILGRAPH"

// Config is the full application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Run       RunConfig       `mapstructure:"run"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Batch     BatchConfig     `mapstructure:"batch"`
}

type LogConfig struct {
	Format string `mapstructure:"format" validate:"oneof=text json"`
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// RunConfig holds the engine defaults applied to every run.
type RunConfig struct {
	MultiAgentMode         string `mapstructure:"multi_agent_mode" validate:"oneof=off balanced max"`
	MaxSchemaRetry         int    `mapstructure:"max_schema_retry" validate:"min=0,max=10"`
	SchemaCheck            bool   `mapstructure:"schema_check"`
	QualityCommandsEnabled bool   `mapstructure:"quality_commands_enabled"`
	QualityWorkDir         string `mapstructure:"quality_work_dir"`
	LogCap                 int    `mapstructure:"log_cap" validate:"min=0"`
}

// StoreConfig selects where finished runs are persisted. DSN is a file path
// for sqlite and a connection string for postgres.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required_unless=Driver memory"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Ollama OllamaConfig `mapstructure:"ollama"`
	Bridge BridgeConfig `mapstructure:"bridge"`
}

// OpenAIConfig configures the codex executor. An empty APIKey falls back to
// OPENAI_API_KEY.
type OpenAIConfig struct {
	BaseURL           string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" validate:"min=0"`
}

type OllamaConfig struct {
	ServerURL string `mapstructure:"server_url" validate:"omitempty,url"`
	Model     string `mapstructure:"model"`
}

// BridgeConfig points web executors at a browser automation bridge. Without
// a URL every web turn goes to the human queue.
type BridgeConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// BatchConfig drives the batch runner of the serve command. Schedules may
// be listed inline or loaded from SchedulesFile; both are combined.
type BatchConfig struct {
	Tick          time.Duration    `mapstructure:"tick" validate:"min=1s"`
	HistoryCap    int              `mapstructure:"history_cap" validate:"min=1"`
	SchedulesFile string           `mapstructure:"schedules_file"`
	Schedules     []batch.Schedule `mapstructure:"schedules"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "text", Level: "info"},
		Run: RunConfig{
			MultiAgentMode: "off",
			MaxSchemaRetry: 2,
			SchemaCheck:    true,
			LogCap:         200,
		},
		Store:  StoreConfig{Driver: "memory"},
		Server: ServerConfig{Addr: ":8080"},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{Model: "gpt-4o-mini"},
			Ollama: OllamaConfig{ServerURL: "http://localhost:11434", Model: "llama3.1"},
		},
		Batch: BatchConfig{Tick: 30 * time.Second, HistoryCap: 200},
	}
}

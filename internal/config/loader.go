package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration. dotenvFiles defaults to ".env"; missing dotenv
// files are ignored. An empty path skips the config file, leaving defaults
// and environment overrides.
func Load(path string, dotenvFiles ...string) (*Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load dotenv: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key, which is also what makes AutomaticEnv
// see the key when it is absent from the file.
func setDefaults(v *viper.Viper, defaults Config) {
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.level", defaults.Log.Level)

	v.SetDefault("run.multi_agent_mode", defaults.Run.MultiAgentMode)
	v.SetDefault("run.max_schema_retry", defaults.Run.MaxSchemaRetry)
	v.SetDefault("run.schema_check", defaults.Run.SchemaCheck)
	v.SetDefault("run.quality_commands_enabled", defaults.Run.QualityCommandsEnabled)
	v.SetDefault("run.quality_work_dir", defaults.Run.QualityWorkDir)
	v.SetDefault("run.log_cap", defaults.Run.LogCap)

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("server.addr", defaults.Server.Addr)

	v.SetDefault("providers.openai.base_url", defaults.Providers.OpenAI.BaseURL)
	v.SetDefault("providers.openai.api_key", defaults.Providers.OpenAI.APIKey)
	v.SetDefault("providers.openai.model", defaults.Providers.OpenAI.Model)
	v.SetDefault("providers.openai.requests_per_minute", defaults.Providers.OpenAI.RequestsPerMinute)
	v.SetDefault("providers.ollama.server_url", defaults.Providers.Ollama.ServerURL)
	v.SetDefault("providers.ollama.model", defaults.Providers.Ollama.Model)
	v.SetDefault("providers.bridge.url", defaults.Providers.Bridge.URL)

	v.SetDefault("batch.tick", defaults.Batch.Tick)
	v.SetDefault("batch.history_cap", defaults.Batch.HistoryCap)
	v.SetDefault("batch.schedules_file", defaults.Batch.SchedulesFile)
}

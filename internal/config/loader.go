package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path falls back to
// ~/.orquestra/orquestra.json.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file and ORQUESTRA_* environment
// overrides. A missing file is not an error; defaults plus env apply.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".orquestra", "orquestra.json")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	// ORQUESTRA_BREAKER_MAX_FAILURES overrides breaker.max_failures, etc.
	v.SetEnvPrefix("ORQUESTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// bindEnvKeys makes env-only overrides visible to Unmarshal. AutomaticEnv
// alone does not surface keys that are absent from the config file.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"store.backend",
		"store.redis_url",
		"store.sqlite_path",
		"store.sweep_seconds",
		"classifier.provider",
		"classifier.model",
		"classifier.max_attempts",
		"classifier.backoff_base_ms",
		"classifier.backoff_max_ms",
		"classifier.timeout_seconds",
		"agents.provider",
		"agents.model",
		"agents.max_attempts",
		"agents.timeout_seconds",
		"breaker.max_failures",
		"breaker.open_ttl_seconds",
		"history.max_turns",
		"history.session_ttl_seconds",
		"gateway.host",
		"gateway.port",
		"gateway.api_key",
		"logging.level",
		"logging.file",
		"synonyms_file",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

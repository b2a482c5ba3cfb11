package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills in defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./scenesmith.yaml, ~/.scenesmith/config.yaml.
// If none exists, a config of pure defaults is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"scenesmith.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".scenesmith", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with working defaults. A zero
// in the file is indistinguishable from unset, so score_threshold: 0 and
// temperature: 0 cannot be expressed here; use the run command's flags to
// force those values.
func applyDefaults(cfg *Config) {
	if cfg.Run.MaxIterations == 0 {
		cfg.Run.MaxIterations = 5
	}
	if cfg.Run.ScoreThreshold == 0 {
		cfg.Run.ScoreThreshold = 0.9
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "SCENESMITH_LLM_API_KEY"
	}
	if cfg.LLM.PlannerModel == "" {
		cfg.LLM.PlannerModel = "anthropic/claude-sonnet-4"
	}
	if cfg.LLM.CodegenModel == "" {
		cfg.LLM.CodegenModel = "qwen/qwen-2.5-coder-32b-instruct"
	}
	if cfg.LLM.JudgeModel == "" {
		cfg.LLM.JudgeModel = cfg.LLM.PlannerModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}

	if cfg.Bridge.Address == "" {
		cfg.Bridge.Address = "localhost:9876"
	}
	if cfg.Bridge.Timeout == "" {
		cfg.Bridge.Timeout = "30s"
	}

	if cfg.Limits.PlanningRetries == 0 {
		cfg.Limits.PlanningRetries = 3
	}
	if cfg.Limits.CodegenRetries == 0 {
		cfg.Limits.CodegenRetries = 3
	}
	if cfg.Limits.MaxSubTasks == 0 {
		cfg.Limits.MaxSubTasks = 12
	}
}

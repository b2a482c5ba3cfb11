package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Run.MaxIterations < 1 {
		errs = append(errs, ValidationError{Field: "run.max_iterations", Message: "must be at least 1"})
	}
	if cfg.Run.ScoreThreshold < 0 || cfg.Run.ScoreThreshold > 1 {
		errs = append(errs, ValidationError{Field: "run.score_threshold", Message: "must be within [0,1]"})
	}

	if cfg.LLM.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "llm.base_url", Message: "is required"})
	}
	if cfg.LLM.APIKeyEnv == "" {
		errs = append(errs, ValidationError{Field: "llm.api_key_env", Message: "is required"})
	}
	for _, m := range []struct {
		field string
		value string
	}{
		{"llm.planner_model", cfg.LLM.PlannerModel},
		{"llm.codegen_model", cfg.LLM.CodegenModel},
		{"llm.judge_model", cfg.LLM.JudgeModel},
	} {
		if m.value == "" {
			errs = append(errs, ValidationError{Field: m.field, Message: "is required"})
		}
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "llm.temperature", Message: "must be within [0,2]"})
	}

	if cfg.Bridge.Address == "" {
		errs = append(errs, ValidationError{Field: "bridge.address", Message: "is required"})
	}
	if cfg.Bridge.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Bridge.Timeout); err != nil {
			errs = append(errs, ValidationError{Field: "bridge.timeout", Message: fmt.Sprintf("invalid duration %q", cfg.Bridge.Timeout)})
		} else if d <= 0 {
			errs = append(errs, ValidationError{Field: "bridge.timeout", Message: "must be positive"})
		}
	}

	if cfg.Limits.PlanningRetries < 1 {
		errs = append(errs, ValidationError{Field: "limits.planning_retries", Message: "must be at least 1"})
	}
	if cfg.Limits.CodegenRetries < 1 {
		errs = append(errs, ValidationError{Field: "limits.codegen_retries", Message: "must be at least 1"})
	}
	if cfg.Limits.MaxSubTasks < 1 {
		errs = append(errs, ValidationError{Field: "limits.max_sub_tasks", Message: "must be at least 1"})
	}

	return errs
}

// BridgeTimeout parses the configured bridge timeout, falling back to 30s.
func (c *Config) BridgeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Bridge.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

package cli

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/scenesmith/internal/config"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	return cfg
}

func TestApplyRunOverridesLeavesConfigWhenUnset(t *testing.T) {
	cfg := defaultConfig(t)
	want := cfg.Run.ScoreThreshold

	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&runBudget, "budget", 0, "")
	cmd.Flags().Float64Var(&runThreshold, "threshold", 0, "")
	applyRunOverrides(cmd, cfg)

	if cfg.Run.ScoreThreshold != want {
		t.Errorf("ScoreThreshold = %v, want untouched %v", cfg.Run.ScoreThreshold, want)
	}
	if cfg.Run.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want default 5", cfg.Run.MaxIterations)
	}
}

func TestApplyRunOverrides(t *testing.T) {
	cfg := defaultConfig(t)

	cmd := &cobra.Command{}
	cmd.Flags().IntVar(&runBudget, "budget", 0, "")
	cmd.Flags().Float64Var(&runThreshold, "threshold", 0, "")
	if err := cmd.Flags().Set("budget", "2"); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if err := cmd.Flags().Set("threshold", "0"); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	applyRunOverrides(cmd, cfg)

	if cfg.Run.MaxIterations != 2 {
		t.Errorf("MaxIterations = %d, want 2", cfg.Run.MaxIterations)
	}
	// An explicit zero on the command line must win over the 0.9 default.
	if cfg.Run.ScoreThreshold != 0 {
		t.Errorf("ScoreThreshold = %v, want 0", cfg.Run.ScoreThreshold)
	}
	if errs := config.Validate(cfg); len(errs) != 0 {
		t.Errorf("overridden config should validate, got %v", errs)
	}
}

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/scenesmith/internal/bridge"
	"github.com/lucasnoah/scenesmith/internal/codegen"
	"github.com/lucasnoah/scenesmith/internal/config"
	"github.com/lucasnoah/scenesmith/internal/db"
	"github.com/lucasnoah/scenesmith/internal/judge"
	"github.com/lucasnoah/scenesmith/internal/llm"
	"github.com/lucasnoah/scenesmith/internal/orchestrator"
	"github.com/lucasnoah/scenesmith/internal/planner"
	"github.com/lucasnoah/scenesmith/internal/state"
)

var (
	runResume    string
	runParallel  bool
	runBudget    int
	runThreshold float64
)

var runCmd = &cobra.Command{
	Use:   "run [requirement]",
	Short: "Build a scene from a natural-language requirement",
	Long: `Run the refinement loop against the scene host until the judge's score
meets the configured threshold or the iteration budget is exhausted.

Pass a requirement to start a fresh run, or --resume with a run id to
continue an interrupted one from its last saved state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runResume == "" && len(args) == 0 {
			return fmt.Errorf("provide a requirement or --resume <run-id>")
		}

		// Secrets may live in a local .env; absence is fine.
		_ = godotenv.Load()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunOverrides(cmd, cfg)
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("config: %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}

		eventLog, err := openDB()
		if err != nil {
			cmd.PrintErrf("event log unavailable: %v\n", err)
		} else {
			defer eventLog.Close()
		}

		orch, err := buildOrchestrator(cfg, store, eventLog)
		if err != nil {
			return err
		}
		orch.SetProgress(cmd.OutOrStdout())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := orchestrator.RunOpts{ResumeRunID: runResume}
		if len(args) == 1 {
			opts.Requirement = args[0]
		}

		ec, err := orch.Run(ctx, opts)
		if err != nil {
			if ec != nil {
				if cp := store.LatestCheckpointPath(ec.RunID); cp != "" {
					cmd.PrintErrf("last checkpoint: %s\n", cp)
				}
			}
			return err
		}

		cmd.Printf("\nrun %s finished: %s after %d iteration(s)\n", ec.RunID, ec.TerminationReason, len(ec.History))
		if eval := ec.LatestEvaluation(); eval != nil {
			cmd.Printf("final score: %.2f\n", eval.Score)
		}
		if ec.TerminationReason != state.ReasonThresholdMet {
			if cp := store.LatestCheckpointPath(ec.RunID); cp != "" {
				cmd.Printf("resume from: scenesmith run --resume %s\n", ec.RunID)
				cmd.Printf("last checkpoint: %s\n", cp)
			}
			return fmt.Errorf("run ended without meeting the threshold: %s", ec.TerminationReason)
		}
		return nil
	},
}

// applyRunOverrides copies run flags onto the loaded config. Presence is
// decided by Changed, not by value, so an explicit --threshold 0 or
// --budget 1 wins over the config file.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("budget") {
		cfg.Run.MaxIterations = runBudget
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Run.ScoreThreshold = runThreshold
	}
	if runParallel {
		cfg.Run.Parallel = true
	}
}

// buildOrchestrator wires the agents, bridge and store from configuration.
func buildOrchestrator(cfg *config.Config, store *state.Store, eventLog *db.DB) (*orchestrator.Orchestrator, error) {
	plannerClient, err := llm.New(cfg.LLM, cfg.LLM.PlannerModel)
	if err != nil {
		return nil, fmt.Errorf("planner model: %w", err)
	}
	codegenClient, err := llm.New(cfg.LLM, cfg.LLM.CodegenModel)
	if err != nil {
		return nil, fmt.Errorf("codegen model: %w", err)
	}
	judgeClient, err := llm.New(cfg.LLM, cfg.LLM.JudgeModel)
	if err != nil {
		return nil, fmt.Errorf("judge model: %w", err)
	}

	p := planner.New(plannerClient, cfg.Limits.PlanningRetries, cfg.Limits.MaxSubTasks)
	g := codegen.New(codegenClient, cfg.Limits.CodegenRetries)
	j := judge.New(judgeClient)

	host := bridge.NewClient(cfg.Bridge.Address, cfg.BridgeTimeout())

	var events orchestrator.EventLog
	if eventLog != nil {
		events = eventLog
	}
	return orchestrator.New(store, host, p, g, j, events, cfg.Run), nil
}

// openStore returns the run store, honoring a configured state directory.
func openStore(cfg *config.Config) (*state.Store, error) {
	if cfg.Run.StateDir != "" {
		if err := os.MkdirAll(cfg.Run.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", cfg.Run.StateDir, err)
		}
		return state.NewStore(cfg.Run.StateDir), nil
	}
	return state.DefaultStore()
}

// openDB opens the event log database and applies migrations.
func openDB() (*db.DB, error) {
	path, err := db.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func init() {
	runCmd.Flags().StringVar(&runResume, "resume", "", "resume an existing run by id")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "dispatch independent sub-tasks concurrently")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "override the iteration budget")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "override the score threshold")
}

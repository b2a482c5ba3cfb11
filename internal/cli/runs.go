package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/scenesmith/internal/state"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and manage stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all runs with their status",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runsStore()
		if err != nil {
			return err
		}
		runs, err := store.List()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No runs found.")
			return nil
		}
		for _, ec := range runs {
			status := string(ec.TerminationReason)
			if status == "" {
				status = "in-progress"
			}
			score := "-"
			if eval := ec.LatestEvaluation(); eval != nil {
				score = fmt.Sprintf("%.2f", eval.Score)
			}
			cmd.Printf("%s  %-20s  iters=%d  score=%s  %q\n", ec.RunID, status, len(ec.History), score, truncate(ec.Requirement, 60))
		}
		return nil
	},
}

var runsStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the full state of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runsStore()
		if err != nil {
			return err
		}
		ec, err := store.LoadLatest(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("run %s\n", ec.RunID)
		cmd.Printf("requirement: %s\n", ec.Requirement)
		cmd.Printf("started: %s  updated: %s\n", ec.StartedAt, ec.UpdatedAt)
		if ec.TerminationReason != "" {
			cmd.Printf("terminated: %s\n", ec.TerminationReason)
		}
		for i := range ec.History {
			it := &ec.History[i]
			cmd.Printf("\niteration %d (%d sub-tasks)\n", it.Index, len(it.SubTasks))
			for j := range it.SubTasks {
				t := &it.SubTasks[j]
				cmd.Printf("  [%-9s] %s: %s\n", t.Status, t.ID, truncate(t.Instruction, 70))
				if t.Outcome != nil && t.Outcome.Error != "" {
					cmd.Printf("              error: %s\n", truncate(t.Outcome.Error, 70))
				}
			}
			if it.Evaluation != nil {
				cmd.Printf("  score: %.2f\n", it.Evaluation.Score)
				if it.Evaluation.Rationale != "" {
					cmd.Printf("  rationale: %s\n", truncate(it.Evaluation.Rationale, 100))
				}
			}
			if it.Degraded {
				cmd.Println("  degraded: all sub-tasks failed")
			}
		}
		return nil
	},
}

var runsCheckpointsCmd = &cobra.Command{
	Use:   "checkpoints <run-id>",
	Short: "List the checkpoints of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runsStore()
		if err != nil {
			return err
		}
		names, err := store.ListCheckpoints(args[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			cmd.Println(name)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runsStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		cmd.Printf("deleted run %s\n", args[0])
		return nil
	},
}

func runsStore() (*state.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsCheckpointsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

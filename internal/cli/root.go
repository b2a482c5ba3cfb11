package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "scenesmith",
	Short: "scenesmith — iterative LLM-driven 3D scene construction",
	Long: `scenesmith turns a natural-language scene requirement into a 3D scene by
looping three agents (planner, code generator, judge) against a running
scene host over its remote command socket.

All state is stored in ~/.scenesmith/ (SQLite for events, JSON for run
state and checkpoints). Interrupted runs can be resumed from their last
checkpoint.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}

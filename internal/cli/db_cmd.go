package cli

import (
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Event log database management",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the event log database and apply the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		cmd.Println("Event log database ready.")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the event log database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Reset(); err != nil {
			return err
		}
		cmd.Println("Event log database reset.")
		return nil
	},
}

var dbEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show recent events for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.RecentRunEvents(args[0], 50)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			cmd.Println("No events recorded.")
			return nil
		}
		for _, e := range events {
			cmd.Printf("%s  iter=%d  %-20s  %s\n", e.Timestamp, e.Iteration, e.Event, e.Detail)
		}
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbEventsCmd)
}

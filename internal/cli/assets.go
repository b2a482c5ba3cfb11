package cli

import (
	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Search and fetch assets from the host's library",
}

var assetsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the host's asset library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := bridgeClient()
		if err != nil {
			return err
		}
		assets, err := host.SearchAssets(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			cmd.Println("No assets found.")
			return nil
		}
		for _, a := range assets {
			cmd.Printf("%s  %s", a.ID, a.Name)
			if a.Category != "" {
				cmd.Printf("  (%s)", a.Category)
			}
			cmd.Println()
		}
		return nil
	},
}

var assetsFetchCmd = &cobra.Command{
	Use:   "fetch <asset-id>",
	Short: "Download an asset into the host scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := bridgeClient()
		if err != nil {
			return err
		}
		handle, err := host.FetchAsset(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("asset %s available as %s\n", args[0], handle)
		return nil
	},
}

func init() {
	assetsCmd.AddCommand(assetsSearchCmd)
	assetsCmd.AddCommand(assetsFetchCmd)
}

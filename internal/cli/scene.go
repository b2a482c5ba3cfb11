package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/scenesmith/internal/bridge"
	"github.com/lucasnoah/scenesmith/internal/scene"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Inspect the live scene over the host bridge",
}

var sceneInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the host's scene metadata and a structural analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := bridgeClient()
		if err != nil {
			return err
		}
		raw, err := host.InspectScene(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println(raw)
		cmd.Println()
		cmd.Println(scene.Probe(scene.Parse(raw)).Summary())
		return nil
	},
}

var sceneScreenshotCmd = &cobra.Command{
	Use:   "screenshot <output.png>",
	Short: "Capture the viewport to a PNG file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := bridgeClient()
		if err != nil {
			return err
		}
		data, err := host.CaptureViewport(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		cmd.Printf("wrote %d bytes to %s\n", len(data), args[0])
		return nil
	},
}

func bridgeClient() (*bridge.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bridge.NewClient(cfg.Bridge.Address, cfg.BridgeTimeout()), nil
}

func init() {
	sceneCmd.AddCommand(sceneInfoCmd)
	sceneCmd.AddCommand(sceneScreenshotCmd)
}

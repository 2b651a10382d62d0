package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <video file>",
	Short: "Inspect a video file and print its description",
	Long: `Inspect a video file with ffprobe and print the resulting media
description as JSON: dimensions, frame rate, codec, pixel format, duration
and size. The same preflight checks as convert apply, so probe also reports
unsupported formats and oversized sources.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}

	desc, err := eng.prober.Inspect(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", args[0], err)
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding description: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

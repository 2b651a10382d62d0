package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/endoforge/endoforge/internal/dicom"
	"github.com/endoforge/endoforge/internal/dimse"
)

var sendCmd = &cobra.Command{
	Use:   "send <file.dcm> [file.dcm...]",
	Short: "Send existing DICOM objects to the PACS",
	Long: `Send one or more existing DICOM files to the configured PACS with
C-STORE exchanges. Each file's meta information is validated first; a file
that is not a Part-10 DICOM object is rejected before any network traffic.

Files are sent one at a time, each over its own association. The first
failure stops the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	registerEndpointFlags(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	endpoint := endpointFromFlags(cmd.Flags(), cfg)

	// Validate every file before the first send so a bad file in the middle
	// of the list is caught up front.
	for _, path := range args {
		if _, err := dicom.ReadFileMeta(path); err != nil {
			return fmt.Errorf("validating %s: %w", path, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dimse.NewClient(endpoint, slog.Default())

	for _, path := range args {
		if err := client.Store(ctx, path); err != nil {
			return fmt.Errorf("sending %s: %w", path, err)
		}
		fmt.Printf("sent %s\n", path)
	}
	return nil
}

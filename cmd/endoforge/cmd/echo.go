package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/endoforge/endoforge/internal/dimse"
)

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Verify PACS connectivity with a C-ECHO",
	Long: `Verify connectivity to the configured PACS endpoint with a DICOM
C-ECHO exchange. Success means the peer accepted the association and
answered the echo with a success status; anything else, including a
timeout, is reported as an error.`,
	Args: cobra.NoArgs,
	RunE: runEcho,
}

func init() {
	rootCmd.AddCommand(echoCmd)
	registerEndpointFlags(echoCmd)
}

func runEcho(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	endpoint := endpointFromFlags(cmd.Flags(), cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dimse.NewClient(endpoint, slog.Default())

	start := time.Now()
	if err := client.Echo(ctx); err != nil {
		return fmt.Errorf("echo %s: %w", endpoint.Address(), err)
	}

	fmt.Printf("echo %s (%s): success in %s\n",
		endpoint.Address(), endpoint.CalledAETitle, time.Since(start).Round(time.Millisecond))
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/endoforge/endoforge/internal/config"
	"github.com/endoforge/endoforge/internal/ffmpeg"
	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
)

// doneSuffix marks inputs that have been converted so they are never picked
// up again.
const doneSuffix = ".done"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and convert dropped video files",
	Long: `Watch an inbox directory and convert every supported video file that
appears in it. A file is picked up once its size has stayed stable for one
settle interval, so partially copied files are left alone. Converted inputs
are renamed with a ` + doneSuffix + ` suffix.

Files are processed one at a time. The subject record uses the configured
watch defaults; an empty patient id falls back to the file name stem.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("inbox", "", "inbox directory to watch (overrides config)")
	watchCmd.Flags().Duration("settle-interval", 0, "size-stability interval before pickup (overrides config)")
	watchCmd.Flags().String("patient-id", "", "default patient identifier (overrides config)")
	watchCmd.Flags().String("patient-name", "", "default patient name (overrides config)")
	watchCmd.Flags().Bool("send", false, "transmit converted objects to the PACS endpoint")

	registerEndpointFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("inbox") {
		cfg.Watch.InboxDir, _ = flags.GetString("inbox")
	}
	if flags.Changed("settle-interval") {
		cfg.Watch.SettleInterval, _ = flags.GetDuration("settle-interval")
	}
	if flags.Changed("patient-id") {
		cfg.Watch.PatientID, _ = flags.GetString("patient-id")
	}
	if flags.Changed("patient-name") {
		cfg.Watch.PatientName, _ = flags.GetString("patient-name")
	}
	if cfg.Watch.InboxDir == "" {
		return fmt.Errorf("no inbox directory configured (--inbox or watch.inbox_dir)")
	}
	if cfg.Watch.SettleInterval <= 0 {
		cfg.Watch.SettleInterval = 2 * time.Second
	}

	logger := observability.WithComponent(slog.Default(), "watch")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	transmit, _ := flags.GetBool("send")
	var endpoint *models.EndpointConfig
	if transmit {
		endpoint = endpointFromFlags(cmd.Flags(), cfg)
		if err := endpoint.Validate(); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.Watch.InboxDir); err != nil {
		return fmt.Errorf("watching %s: %w", cfg.Watch.InboxDir, err)
	}

	// pending maps candidate paths to their last observed size; -1 means no
	// size has been recorded yet. A file is settled once its size is
	// unchanged across two consecutive ticks.
	pending := make(map[string]int64)

	// Files already sitting in the inbox at startup are candidates too.
	entries, err := os.ReadDir(cfg.Watch.InboxDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.Watch.InboxDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			considerCandidate(pending, filepath.Join(cfg.Watch.InboxDir, entry.Name()))
		}
	}

	logger.Info("watching inbox",
		slog.String("dir", cfg.Watch.InboxDir),
		slog.Duration("settle_interval", cfg.Watch.SettleInterval),
		slog.Bool("transmit", transmit),
		slog.Int("initial_candidates", len(pending)))

	ticker := time.NewTicker(cfg.Watch.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				considerCandidate(pending, event.Name)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", werr.Error()))

		case <-ticker.C:
			for _, path := range settledCandidates(pending) {
				delete(pending, path)
				if err := convertWatched(ctx, eng, cfg.Watch, endpoint, path, logger); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					logger.Error("conversion failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// considerCandidate registers a path for settle tracking if it looks like a
// convertible source.
func considerCandidate(pending map[string]int64, path string) {
	if strings.HasSuffix(path, doneSuffix) || !ffmpeg.IsSupportedExtension(path) {
		return
	}
	if _, tracked := pending[path]; !tracked {
		pending[path] = -1
	}
}

// settledCandidates returns the paths whose size stayed stable since the last
// tick and refreshes the recorded size of the rest. Vanished files are
// dropped.
func settledCandidates(pending map[string]int64) []string {
	var settled []string
	for path, last := range pending {
		fi, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if size := fi.Size(); size == last && size > 0 {
			settled = append(settled, path)
		} else {
			pending[path] = size
		}
	}
	return settled
}

// convertWatched runs one inbox file through the pipeline and renames it on
// success.
func convertWatched(ctx context.Context, eng *engine, watch config.WatchConfig, endpoint *models.EndpointConfig, path string, logger *slog.Logger) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	patientID := watch.PatientID
	if patientID == "" {
		patientID = stem
	}
	patientName := watch.PatientName
	if patientName == "" {
		patientName = stem
	}

	desc, err := eng.prober.Inspect(ctx, path)
	if err != nil {
		return err
	}

	job := models.NewConversionJob(desc, models.NewSubjectRecord(patientID, patientName))
	job.SaveToDisk = true
	if endpoint != nil {
		job.Transmit = true
		job.Endpoint = endpoint
	}

	logger.Info("converting inbox file",
		slog.String("path", path),
		slog.String("job_id", job.ID.String()))

	if err := eng.orchestrator.Execute(ctx, job); err != nil {
		return err
	}

	if err := os.Rename(path, path+doneSuffix); err != nil {
		logger.Warn("could not mark input as done",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	logger.Info("inbox file converted",
		slog.String("path", path),
		slog.String("output", job.OutputPath()))
	return nil
}

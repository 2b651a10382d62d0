package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/endoforge/endoforge/internal/config"
	"github.com/endoforge/endoforge/internal/dicom"
	"github.com/endoforge/endoforge/internal/ffmpeg"
	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/pipeline"
)

// engine bundles the conversion machinery shared by convert and watch.
type engine struct {
	cfg          *config.Config
	binaries     *ffmpeg.BinaryInfo
	prober       *ffmpeg.Prober
	orchestrator *pipeline.Orchestrator
}

// newEngine detects the ffmpeg installation and wires the pipeline from the
// configuration.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine, error) {
	detector := ffmpeg.NewBinaryDetector().
		WithPaths(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	info, err := detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting ffmpeg: %w", err)
	}
	logger.Debug("ffmpeg detected",
		slog.String("ffmpeg", info.FFmpegPath),
		slog.String("ffprobe", info.FFprobePath),
		slog.String("version", info.Version))

	runner := ffmpeg.NewRunner(logger)
	prober := ffmpeg.NewProber(info.FFprobePath, runner, logger).
		WithMaxSourceSize(cfg.FFmpeg.MaxSourceSize.Bytes())
	transcoder := ffmpeg.NewTranscoder(info.FFmpegPath, runner, logger).
		WithTempDir(cfg.Storage.TempPath())

	uids, err := dicom.NewGenerator(cfg.DICOM.OrgRoot)
	if err != nil {
		return nil, fmt.Errorf("uid generator: %w", err)
	}
	encoder := dicom.NewEncoder(uids, logger)

	orchestrator := pipeline.NewOrchestrator(transcoder, encoder, cfg.Storage.OutputDir, logger).
		WithTempDir(cfg.Storage.TempPath()).
		WithKeepIntermediates(cfg.Storage.KeepIntermediates)

	return &engine{
		cfg:          cfg,
		binaries:     info,
		prober:       prober,
		orchestrator: orchestrator,
	}, nil
}

// registerEndpointFlags adds the PACS endpoint flags shared by every command
// that talks to the network.
func registerEndpointFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "PACS hostname or address")
	cmd.Flags().Int("port", 104, "PACS TCP port")
	cmd.Flags().String("calling-aet", "", "calling application entity title")
	cmd.Flags().String("called-aet", "", "called application entity title")
	cmd.Flags().Duration("timeout", 30*time.Second, "network operation timeout")
	cmd.Flags().Bool("tls", false, "wrap the association in TLS")
}

// endpointFromFlags builds the endpoint from config, overridden by any flag
// the user explicitly set. This preserves the flag > env > config > default
// precedence without binding the flags to viper.
func endpointFromFlags(flags *pflag.FlagSet, cfg *config.Config) *models.EndpointConfig {
	ep := cfg.Endpoint

	if flags.Changed("host") {
		ep.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		ep.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("calling-aet") {
		ep.CallingAETitle, _ = flags.GetString("calling-aet")
	}
	if flags.Changed("called-aet") {
		ep.CalledAETitle, _ = flags.GetString("called-aet")
	}
	if flags.Changed("timeout") {
		ep.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("tls") {
		ep.UseTLS, _ = flags.GetBool("tls")
	}

	return &ep
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/pipeline"
)

var convertCmd = &cobra.Command{
	Use:   "convert <video file>",
	Short: "Convert a video file into a DICOM object",
	Long: `Convert a video recording into a DICOM Video Endoscopic object.

The source is inspected, optionally trimmed, re-encoded to an H.264
elementary stream, and wrapped in a DICOM object carrying the patient
record. By default the object is written to the output directory; --send
additionally transmits it to the configured PACS, and --no-save combined
with --send transmits without keeping a local copy.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	// Subject flags
	convertCmd.Flags().String("patient-id", "", "patient identifier (required)")
	convertCmd.Flags().String("patient-name", "", "patient name in Family^Given form (required)")
	convertCmd.Flags().String("birth-date", "", "patient birth date (YYYYMMDD)")
	convertCmd.Flags().String("sex", "", "patient sex (M, F, O)")
	convertCmd.Flags().String("study-description", "", "study description")
	convertCmd.Flags().String("series-description", "", "series description")
	convertCmd.Flags().String("referring-physician", "", "referring physician name")
	convertCmd.Flags().String("performing-physician", "", "performing physician name")
	convertCmd.Flags().String("modality", "", "modality code (default ES)")

	// Trim flags
	convertCmd.Flags().Duration("trim-start", 0, "trim window start (e.g. 2s, 1m30s)")
	convertCmd.Flags().Duration("trim-end", 0, "trim window end (default: source duration)")

	// Output flags
	convertCmd.Flags().String("output-dir", "", "output directory (overrides config)")
	convertCmd.Flags().Bool("no-save", false, "do not keep the object on disk")
	convertCmd.Flags().Bool("send", false, "transmit the object to the PACS endpoint")
	convertCmd.Flags().Bool("keep-intermediates", false, "keep intermediate files, for debugging")
	convertCmd.Flags().Bool("progress", false, "render stage progress on stderr")

	registerEndpointFlags(convertCmd)

	_ = convertCmd.MarkFlagRequired("patient-id")
	_ = convertCmd.MarkFlagRequired("patient-name")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Storage.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("keep-intermediates") {
		cfg.Storage.KeepIntermediates, _ = flags.GetBool("keep-intermediates")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	source := args[0]
	desc, err := eng.prober.Inspect(ctx, source)
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", source, err)
	}

	if flags.Changed("trim-start") || flags.Changed("trim-end") {
		start, _ := flags.GetDuration("trim-start")
		end := desc.Duration
		if flags.Changed("trim-end") {
			end, _ = flags.GetDuration("trim-end")
		}
		desc, err = desc.WithTrim(start, end)
		if err != nil {
			return fmt.Errorf("trim window %s-%s: %w", start, end, err)
		}
	}

	job := models.NewConversionJob(desc, subjectFromFlags(cmd))

	noSave, _ := flags.GetBool("no-save")
	job.SaveToDisk = !noSave
	job.Transmit, _ = flags.GetBool("send")
	if job.Transmit {
		job.Endpoint = endpointFromFlags(cmd.Flags(), cfg)
	}

	orchestrator := eng.orchestrator
	showProgress, _ := flags.GetBool("progress")
	if showProgress {
		orchestrator = orchestrator.WithProgressCallback(renderProgress)
	}

	err = orchestrator.Execute(ctx, job)
	if showProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	if path := job.OutputPath(); path != "" {
		fmt.Println(path)
	}
	return nil
}

// subjectFromFlags builds the subject record from the convert flags.
func subjectFromFlags(cmd *cobra.Command) *models.SubjectRecord {
	flags := cmd.Flags()
	id, _ := flags.GetString("patient-id")
	name, _ := flags.GetString("patient-name")

	subject := models.NewSubjectRecord(id, name)
	subject.BirthDate, _ = flags.GetString("birth-date")
	subject.Sex, _ = flags.GetString("sex")
	subject.StudyDescription, _ = flags.GetString("study-description")
	subject.SeriesDescription, _ = flags.GetString("series-description")
	subject.ReferringPhysician, _ = flags.GetString("referring-physician")
	subject.PerformingPhysician, _ = flags.GetString("performing-physician")
	if modality, _ := flags.GetString("modality"); modality != "" {
		subject.Modality = modality
	}
	return subject
}

// renderProgress writes a single self-overwriting progress line to stderr.
func renderProgress(p pipeline.StageProgress) {
	fmt.Fprintf(os.Stderr, "\r%-9s %5.1f%%  overall %5.1f%%", p.Stage, p.Percent, p.Overall)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/endoforge/endoforge/internal/dimse"
	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
)

// Orchestrator drives one conversion job through its stage sequence and owns
// the job's lifecycle transitions. One orchestrator serves many jobs, but it
// runs them one at a time; concurrent submission is the caller's concern.
type Orchestrator struct {
	transcoder        Transcoder
	encoder           Encoder
	newSender         func(endpoint *models.EndpointConfig, onMilestone dimse.MilestoneFunc) Sender
	outputDir         string
	tempDir           string
	keepIntermediates bool
	onProgress        ProgressCallback
	logger            *slog.Logger
}

// NewOrchestrator creates an orchestrator around the real transcode and
// encode engines. The sender is constructed per job because the endpoint
// travels with the job.
func NewOrchestrator(transcoder Transcoder, encoder Encoder, outputDir string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transcoder: transcoder,
		encoder:    encoder,
		outputDir:  outputDir,
		tempDir:    os.TempDir(),
		logger:     observability.WithComponent(logger, "pipeline"),
		newSender: func(endpoint *models.EndpointConfig, onMilestone dimse.MilestoneFunc) Sender {
			return dimse.NewClient(endpoint, logger).WithMilestones(onMilestone)
		},
	}
}

// WithTempDir sets the scratch directory for transmit-only objects.
func (o *Orchestrator) WithTempDir(dir string) *Orchestrator {
	if dir != "" {
		o.tempDir = dir
	}
	return o
}

// WithKeepIntermediates disables artifact cleanup, for debugging.
func (o *Orchestrator) WithKeepIntermediates(keep bool) *Orchestrator {
	o.keepIntermediates = keep
	return o
}

// WithProgressCallback registers an observer for stage progress events.
func (o *Orchestrator) WithProgressCallback(cb ProgressCallback) *Orchestrator {
	o.onProgress = cb
	return o
}

// WithSenderFactory overrides transmission client construction; tests inject
// fakes here.
func (o *Orchestrator) WithSenderFactory(f func(*models.EndpointConfig, dimse.MilestoneFunc) Sender) *Orchestrator {
	o.newSender = f
	return o
}

// Execute runs the job to a terminal state and returns the error that ended
// it, if any. The job's artifacts are removed on every exit path; cleanup
// failures are swallowed so they never mask the primary outcome.
func (o *Orchestrator) Execute(ctx context.Context, job *models.ConversionJob) error {
	logger := observability.WithJobID(o.logger, job.ID.String())

	if err := o.validate(job); err != nil {
		job.MarkFailed(err)
		return err
	}
	if !job.MarkProcessing() {
		return fmt.Errorf("job %s is not pending (state %s)", job.ID, job.State())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.SetCancel(cancel)

	stages := o.buildStages(job)
	weights := make([]stageWeight, len(stages))
	for i, s := range stages {
		weights[i] = stageWeight{name: s.name(), weight: s.weight()}
	}

	tracker := NewTracker(func(p StageProgress) {
		job.SetProgress(p.Overall)
		if o.onProgress != nil {
			o.onProgress(p)
		}
	}, weights...)
	defer tracker.Close()

	st := &state{job: job, media: job.Media}
	defer o.cleanup(job, logger)

	logger.Info("job started",
		slog.String("source", job.Media.Path),
		slog.Int("stages", len(stages)),
		slog.Bool("save", job.SaveToDisk),
		slog.Bool("transmit", job.Transmit))

	for _, s := range stages {
		tracker.StartStage(s.name())
		logger.Debug("stage started", slog.String("stage", s.name()))

		if err := s.run(ctx, st, tracker.Update); err != nil {
			if errors.Is(err, context.Canceled) {
				job.MarkCancelled()
				logger.Info("job cancelled", slog.String("stage", s.name()))
				return err
			}
			wrapped := &StageError{Stage: s.name(), Err: err}
			job.MarkFailed(wrapped)
			logger.Error("job failed",
				slog.String("stage", s.name()),
				slog.String("error", err.Error()))
			return wrapped
		}

		tracker.CompleteStage()
		logger.Debug("stage complete", slog.String("stage", s.name()))
	}

	job.MarkCompleted(st.savedPath)
	logger.Info("job complete", slog.String("output", st.savedPath))
	return nil
}

// validate rejects jobs that could never produce a result.
func (o *Orchestrator) validate(job *models.ConversionJob) error {
	if !job.SaveToDisk && !job.Transmit {
		return ErrNoOutputIntent
	}
	if job.Transmit && job.Endpoint == nil {
		return ErrEndpointRequired
	}
	if err := job.Subject.Validate(); err != nil {
		return err
	}
	return nil
}

// buildStages assembles the stage sequence for one job.
func (o *Orchestrator) buildStages(job *models.ConversionJob) []stage {
	var stages []stage
	if job.Media.IsTrimmed() {
		stages = append(stages, &trimStage{transcoder: o.transcoder})
	}
	stages = append(stages,
		&transcodeStage{transcoder: o.transcoder},
		&encodeStage{encoder: o.encoder, outputDir: o.outputDir, tempDir: o.tempDir},
	)
	if job.Transmit {
		stages = append(stages, &transmitStage{newSender: o.newSender})
	}
	return stages
}

// cleanup removes the job's intermediate artifacts, best effort.
func (o *Orchestrator) cleanup(job *models.ConversionJob, logger *slog.Logger) {
	if o.keepIntermediates {
		return
	}
	for _, path := range job.Artifacts() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug("artifact not removed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}

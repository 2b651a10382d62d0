package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/endoforge/endoforge/internal/dimse"
	"github.com/endoforge/endoforge/internal/ffmpeg"
	"github.com/endoforge/endoforge/internal/models"
)

// Stage names, used in progress events and error wrapping.
const (
	StageTrim      = "trim"
	StageTranscode = "transcode"
	StageEncode    = "encode"
	StageTransmit  = "transmit"
)

// Transcoder is the trim/transcode engine surface the pipeline depends on.
type Transcoder interface {
	Trim(ctx context.Context, desc *models.MediaDescriptor, start, end time.Duration) (string, error)
	Transcode(ctx context.Context, desc *models.MediaDescriptor, onProgress ffmpeg.ProgressFunc) (string, error)
}

// Encoder builds the DICOM object from the elementary stream.
type Encoder interface {
	EncodeToFile(stream []byte, desc *models.MediaDescriptor, subject *models.SubjectRecord, dir string) (string, error)
}

// Sender transmits an encoded object to the configured endpoint.
type Sender interface {
	Store(ctx context.Context, path string) error
}

// state carries the intermediate results between stages. Stages mutate it in
// sequence; nothing else aliases it.
type state struct {
	job *models.ConversionJob

	// media is the descriptor the transcode stage consumes. The trim stage
	// replaces it with a descriptor of the trimmed temp file.
	media *models.MediaDescriptor

	// streamPath is the transcoded elementary stream.
	streamPath string

	// objectPath is the encoded object, wherever it was written.
	objectPath string

	// savedPath is the final output path when the job saves to disk.
	savedPath string
}

// stage is one sequential pipeline step.
type stage interface {
	name() string
	weight() float64
	run(ctx context.Context, st *state, progress func(float64)) error
}

// trimStage cuts the configured window out of the source with a lossless
// stream copy before any re-encoding happens.
type trimStage struct {
	transcoder Transcoder
}

func (s *trimStage) name() string    { return StageTrim }
func (s *trimStage) weight() float64 { return 10 }

func (s *trimStage) run(ctx context.Context, st *state, progress func(float64)) error {
	media := st.media
	var start time.Duration
	if media.TrimStart != nil {
		start = *media.TrimStart
	}
	end := media.Duration
	if media.TrimEnd != nil {
		end = *media.TrimEnd
	}

	out, err := s.transcoder.Trim(ctx, media, start, end)
	if err != nil {
		return err
	}
	st.job.AddArtifact(out)

	// The trimmed file replaces the source for the rest of the pipeline: its
	// duration is the effective window and no trim points remain.
	trimmed := *media
	trimmed.Path = out
	trimmed.Duration = media.EffectiveDuration()
	trimmed.TrimStart = nil
	trimmed.TrimEnd = nil
	if fi, statErr := os.Stat(out); statErr == nil {
		trimmed.SizeBytes = fi.Size()
	}
	st.media = &trimmed
	return nil
}

// transcodeStage re-encodes the current source into the elementary H.264
// stream; the only stage with fine-grained progress.
type transcodeStage struct {
	transcoder Transcoder
}

func (s *transcodeStage) name() string    { return StageTranscode }
func (s *transcodeStage) weight() float64 { return 60 }

func (s *transcodeStage) run(ctx context.Context, st *state, progress func(float64)) error {
	out, err := s.transcoder.Transcode(ctx, st.media, progress)
	if err != nil {
		return err
	}
	st.job.AddArtifact(out)
	st.streamPath = out
	return nil
}

// encodeStage wraps the elementary stream into the DICOM object. Jobs that
// only transmit write the object into the scratch directory, where cleanup
// removes it after the send.
type encodeStage struct {
	encoder   Encoder
	outputDir string
	tempDir   string
}

func (s *encodeStage) name() string    { return StageEncode }
func (s *encodeStage) weight() float64 { return 20 }

func (s *encodeStage) run(ctx context.Context, st *state, progress func(float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stream, err := os.ReadFile(st.streamPath)
	if err != nil {
		return fmt.Errorf("reading elementary stream: %w", err)
	}
	progress(30)

	dir := s.outputDir
	if !st.job.SaveToDisk {
		dir = s.tempDir
	}

	path, err := s.encoder.EncodeToFile(stream, st.media, st.job.Subject, dir)
	if err != nil {
		return err
	}

	st.objectPath = path
	if st.job.SaveToDisk {
		st.savedPath = path
	} else {
		st.job.AddArtifact(path)
	}
	return nil
}

// transmitStage sends the encoded object to the PACS endpoint. Progress moves
// in coarse milestones; the protocol offers nothing finer.
type transmitStage struct {
	newSender func(endpoint *models.EndpointConfig, onMilestone dimse.MilestoneFunc) Sender
}

// milestonePercents maps the four protocol milestones onto the stage scale.
var milestonePercents = map[dimse.Milestone]float64{
	dimse.MilestoneConnect:   25,
	dimse.MilestoneAssociate: 50,
	dimse.MilestoneSend:      75,
	dimse.MilestoneResponse:  95,
}

func (s *transmitStage) name() string    { return StageTransmit }
func (s *transmitStage) weight() float64 { return 10 }

func (s *transmitStage) run(ctx context.Context, st *state, progress func(float64)) error {
	sender := s.newSender(st.job.Endpoint, func(m dimse.Milestone) {
		if pct, ok := milestonePercents[m]; ok {
			progress(pct)
		}
	})
	return sender.Store(ctx, st.objectPath)
}

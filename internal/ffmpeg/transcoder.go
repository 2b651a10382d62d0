package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
)

// Fixed output shape. The encapsulated transfer syntax declares H.264 High
// Profile / Level 4.1, and the target viewer decodes exactly that, so none
// of these are configurable.
const (
	maxOutputWidth  = 1920
	maxOutputHeight = 1080
	outputFrameRate = 30
)

// Transcoder issues the two transcoder invocations of a conversion: the
// lossless stream-copy trim and the deterministic re-encode to a raw
// Annex-B H.264 elementary stream.
type Transcoder struct {
	ffmpegPath string
	runner     *Runner
	tempDir    string
	logger     *slog.Logger
}

// NewTranscoder creates a transcoder around the given ffmpeg binary.
func NewTranscoder(ffmpegPath string, runner *Runner, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		tempDir:    os.TempDir(),
		logger:     observability.WithComponent(logger, "transcoder"),
	}
}

// WithTempDir sets the scratch directory for intermediate artifacts.
func (t *Transcoder) WithTempDir(dir string) *Transcoder {
	if dir != "" {
		t.tempDir = dir
	}
	return t
}

// Trim cuts [start, end) out of the source with a container-level stream
// copy, no re-encode, and returns the path of the trimmed temp file. The
// window is validated before any subprocess is launched.
func (t *Transcoder) Trim(ctx context.Context, desc *models.MediaDescriptor, start, end time.Duration) (path string, err error) {
	if start < 0 || start >= end || end > desc.Duration {
		return "", models.ErrInvalidTrimWindow
	}

	done := observability.TimedOperationWithError(ctx, t.logger, "trim", &err)
	defer done()

	out := t.tempFile("trim", filepath.Ext(desc.Path))
	args := buildTrimArgs(desc.Path, start, end-start, out)

	res, err := t.runner.Run(ctx, t.ffmpegPath, args, nil)
	if err != nil {
		removeQuietly(out)
		return "", err
	}
	if !res.Success() {
		removeQuietly(out)
		return "", fmt.Errorf("%w: exit code %d: %s", ErrTrimFailed, res.ExitCode, res.Stderr)
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return "", fmt.Errorf("%w: no output produced", ErrTrimFailed)
	}

	t.logger.Debug("trim complete",
		slog.String("output", out),
		slog.Duration("start", start),
		slog.Duration("end", end))
	return out, nil
}

// Transcode re-encodes the descriptor's file into a raw Annex-B H.264
// elementary stream and returns the temp file path. Progress derives from
// ffmpeg's time= markers measured against the effective duration; the
// resulting stream is verified before it is handed on.
func (t *Transcoder) Transcode(ctx context.Context, desc *models.MediaDescriptor, onProgress ProgressFunc) (path string, err error) {
	done := observability.TimedOperationWithError(ctx, t.logger, "transcode", &err)
	defer done()

	width, height := outputDimensions(desc.Width, desc.Height)
	out := t.tempFile("transcode", ".h264")
	args := buildTranscodeArgs(desc.Path, width, height, out)

	t.logger.Debug("transcode starting",
		slog.String("input", desc.Path),
		slog.Int("source_width", desc.Width),
		slog.Int("source_height", desc.Height),
		slog.Int("output_width", width),
		slog.Int("output_height", height),
		slog.Duration("expected", desc.EffectiveDuration()))

	res, err := t.runner.RunWithProgress(ctx, t.ffmpegPath, args, desc.EffectiveDuration(), onProgress)
	if err != nil {
		removeQuietly(out)
		return "", err
	}
	if !res.Success() {
		removeQuietly(out)
		return "", fmt.Errorf("%w: exit code %d: %s", ErrTranscodeFailed, res.ExitCode, res.Stderr)
	}
	if fi, statErr := os.Stat(out); statErr != nil || fi.Size() == 0 {
		removeQuietly(out)
		return "", fmt.Errorf("%w: no output produced", ErrTranscodeFailed)
	}

	if verifyErr := VerifyElementaryStream(out, t.logger); verifyErr != nil {
		removeQuietly(out)
		return "", fmt.Errorf("%w: %v", ErrTranscodeFailed, verifyErr)
	}

	return out, nil
}

// buildTrimArgs assembles the stream-copy cut. -ss before -i seeks on the
// demuxer; -avoid_negative_ts keeps copied timestamps monotonic after the cut.
func buildTrimArgs(input string, start, duration time.Duration, output string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-i", input,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	}
}

// buildTranscodeArgs assembles the fixed re-encode: High Profile level 4.1,
// 30 fps CFR, 4:2:0, one keyframe per second, no B-frames, audio stripped,
// raw Annex-B output via the h264 muxer.
func buildTranscodeArgs(input string, width, height int, output string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-stats",
		"-y",
		"-i", input,
		"-an",
		"-c:v", EncoderH264,
		"-profile:v", "high",
		"-level:v", "4.1",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(outputFrameRate),
		"-g", strconv.Itoa(outputFrameRate),
		"-bf", "0",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", MuxerH264,
		output,
	}
}

// outputDimensions fits (w, h) inside 1920x1080 preserving aspect ratio and
// forces both dimensions even, as 4:2:0 chroma subsampling requires.
func outputDimensions(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxOutputWidth, maxOutputHeight
	}

	scale := 1.0
	if float64(w)*scale > maxOutputWidth {
		scale = maxOutputWidth / float64(w)
	}
	if float64(h)*scale > maxOutputHeight {
		scale = maxOutputHeight / float64(h)
	}

	outW := int(float64(w)*scale) &^ 1
	outH := int(float64(h)*scale) &^ 1
	if outW < 2 {
		outW = 2
	}
	if outH < 2 {
		outH = 2
	}
	return outW, outH
}

// formatSeconds renders a duration as fractional seconds for ffmpeg args.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// tempFile returns a uniquely named scratch path so concurrent jobs never
// collide.
func (t *Transcoder) tempFile(stage, ext string) string {
	return filepath.Join(t.tempDir, fmt.Sprintf("endoforge-%s-%s%s", stage, uuid.NewString(), ext))
}

// removeQuietly deletes a partial output; cleanup is best-effort and never
// masks the primary failure.
func removeQuietly(path string) {
	_ = os.Remove(path)
}

package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
)

// DefaultMaxSourceSize is the source-size ceiling applied when the
// configuration does not supply one.
const DefaultMaxSourceSize int64 = 5 << 30 // 5 GiB

// supportedExtensions lists the container extensions the inspector accepts.
var supportedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".wmv":  true,
	".mpg":  true,
	".mpeg": true,
	".m4v":  true,
	".webm": true,
	".flv":  true,
	".3gp":  true,
}

// IsSupportedExtension reports whether the path names a container format the
// pipeline can read.
func IsSupportedExtension(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ProbeResult contains the ffprobe report fields the inspector consumes.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NumStreams int    `json:"nb_streams"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio, subtitle, data
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

// Prober inspects source media files with ffprobe.
type Prober struct {
	ffprobePath   string
	runner        *Runner
	maxSourceSize int64
	timeout       time.Duration
	logger        *slog.Logger
}

// NewProber creates a media inspector around the given ffprobe binary.
func NewProber(ffprobePath string, runner *Runner, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		ffprobePath:   ffprobePath,
		runner:        runner,
		maxSourceSize: DefaultMaxSourceSize,
		timeout:       30 * time.Second,
		logger:        observability.WithComponent(logger, "prober"),
	}
}

// WithMaxSourceSize sets the source file size ceiling. Zero disables the check.
func (p *Prober) WithMaxSourceSize(limit int64) *Prober {
	p.maxSourceSize = limit
	return p
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Inspect probes path and returns a typed description of its first video
// stream. The path, extension and size checks run before any subprocess is
// launched.
func (p *Prober) Inspect(ctx context.Context, path string) (*models.MediaDescriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !IsSupportedExtension(path) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if p.maxSourceSize > 0 && fi.Size() > p.maxSourceSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds ceiling of %d", ErrSourceTooLarge, fi.Size(), p.maxSourceSize)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	res, err := p.runner.Run(ctx, p.ffprobePath, args, nil)
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("%w: ffprobe exit code %d: %s", ErrProbeParse, res.ExitCode, res.Stderr)
	}

	report, err := ParseProbeOutput([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}

	video := report.VideoStream()
	if video == nil {
		return nil, fmt.Errorf("%w: no video stream in %s", ErrProbeParse, path)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("%w: video stream carries no dimensions", ErrProbeParse)
	}

	desc := &models.MediaDescriptor{
		Path:        path,
		SizeBytes:   fi.Size(),
		Duration:    report.Duration(),
		Width:       video.Width,
		Height:      video.Height,
		FrameRate:   video.Framerate(),
		Codec:       video.CodecName,
		PixelFormat: video.PixFmt,
		BitRate:     report.BitRate(),
	}

	p.logger.Debug("source inspected",
		slog.String("path", path),
		slog.Int("width", desc.Width),
		slog.Int("height", desc.Height),
		slog.Float64("frame_rate", desc.FrameRate),
		slog.String("codec", desc.Codec),
		slog.String("pix_fmt", desc.PixelFormat),
		slog.Duration("duration", desc.Duration))

	return desc, nil
}

// ParseProbeOutput decodes an ffprobe JSON report.
func ParseProbeOutput(data []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeParse, err)
	}
	return &result, nil
}

// VideoStream returns the first video stream, or nil when none is present.
func (r *ProbeResult) VideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// Duration returns the container duration.
func (r *ProbeResult) Duration() time.Duration {
	if r.Format.Duration == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// BitRate returns the overall container bit rate in bits per second.
func (r *ProbeResult) BitRate() int64 {
	if r.Format.BitRate == "" {
		return 0
	}
	rate, err := strconv.ParseInt(r.Format.BitRate, 10, 64)
	if err != nil {
		return 0
	}
	return rate
}

// Framerate resolves the stream frame rate, preferring r_frame_rate.
func (s *ProbeStream) Framerate() float64 {
	if s.RFrameRate != "" {
		return parseFramerate(s.RFrameRate)
	}
	if s.AvgFrameRate != "" {
		return parseFramerate(s.AvgFrameRate)
	}
	return 0
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}

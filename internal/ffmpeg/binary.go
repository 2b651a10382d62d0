// Package ffmpeg wraps the external ffmpeg/ffprobe binaries: detection,
// supervised subprocess execution, source inspection, and the trim and
// transcode operations that produce the H.264 elementary stream handed to
// the DICOM encoder.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/endoforge/endoforge/internal/util"
)

const (
	// EncoderH264 is the software encoder every conversion depends on.
	EncoderH264 = "libx264"

	// MuxerH264 is the raw Annex-B elementary stream muxer.
	MuxerH264 = "h264"
)

// BinaryInfo contains information about the detected FFmpeg/FFprobe installation.
type BinaryInfo struct {
	FFmpegPath   string       `json:"ffmpeg_path"`
	FFprobePath  string       `json:"ffprobe_path"`
	Version      string       `json:"version"`
	MajorVersion int          `json:"major_version"`
	MinorVersion int          `json:"minor_version"`
	Encoders     []string     `json:"encoders,omitempty"`
	Formats      []FormatInfo `json:"formats,omitempty"`
}

// FormatInfo represents format/container information from FFmpeg.
type FormatInfo struct {
	Name     string `json:"name"`
	LongName string `json:"long_name,omitempty"`
	CanMux   bool   `json:"can_mux"`
	CanDemux bool   `json:"can_demux"`
}

// BinaryDetector handles detection and caching of FFmpeg binaries.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration

	ffmpegPath  string
	ffprobePath string
}

// NewBinaryDetector creates a new binary detector.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{
		cacheTTL: 5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// WithPaths pins configured ffmpeg/ffprobe paths instead of searching for
// them. Either argument may be empty to keep auto-detection for that binary.
func (d *BinaryDetector) WithPaths(ffmpegPath, ffprobePath string) *BinaryDetector {
	d.ffmpegPath = ffmpegPath
	d.ffprobePath = ffprobePath
	return d
}

// Detect detects FFmpeg and FFprobe binaries and verifies the capabilities
// the conversion pipeline depends on.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear clears the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

// detect performs the actual binary detection.
func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	// Resolve ffmpeg: configured path -> ENDOFORGE_FFMPEG_BINARY env var ->
	// ./ffmpeg -> PATH. A configured path that is not executable is an error,
	// never silently ignored.
	ffmpegPath, err := d.resolve("ffmpeg", "ENDOFORGE_FFMPEG_BINARY", d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	info.FFmpegPath = ffmpegPath

	// ffprobe is required here, unlike installations that only re-mux:
	// every job starts with an inspection pass.
	ffprobePath, err := d.resolve("ffprobe", "ENDOFORGE_FFPROBE_BINARY", d.ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	info.FFprobePath = ffprobePath

	version, err := d.getVersion(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	info.Version = version.Full
	info.MajorVersion = version.Major
	info.MinorVersion = version.Minor

	encoders, err := d.getEncoders(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg encoders: %w", err)
	}
	info.Encoders = encoders

	formats, err := d.getFormats(ctx, ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("listing ffmpeg formats: %w", err)
	}
	info.Formats = formats

	// The transcode stage is non-negotiable about its output shape, so a
	// build without libx264 or the raw h264 muxer cannot serve any job.
	if !info.HasEncoder(EncoderH264) {
		return nil, fmt.Errorf("ffmpeg at %s has no %s encoder", ffmpegPath, EncoderH264)
	}
	if !info.HasFormat(MuxerH264) {
		return nil, fmt.Errorf("ffmpeg at %s cannot mux raw %s streams", ffmpegPath, MuxerH264)
	}

	return info, nil
}

// resolve locates one binary, preferring an explicitly configured path.
func (d *BinaryDetector) resolve(name, envVar, configured string) (string, error) {
	if configured != "" {
		if err := util.VerifyExecutable(configured); err != nil {
			return "", fmt.Errorf("configured path %s: %w", configured, err)
		}
		return configured, nil
	}
	return util.FindBinary(name, envVar)
}

// versionInfo holds parsed version information.
type versionInfo struct {
	Full  string
	Major int
	Minor int
}

// getVersion extracts version information from ffmpeg.
func (d *BinaryDetector) getVersion(ctx context.Context, ffmpegPath string) (*versionInfo, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	info := &versionInfo{}
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		// Version strings look like "6.0", "n6.0-2-g..." or "6.0.1".
		parts := strings.Fields(line)
		if len(parts) >= 3 {
			info.Full = parts[2]
			versionRegex := regexp.MustCompile(`^n?(\d+)\.(\d+)`)
			matches := versionRegex.FindStringSubmatch(parts[2])
			if len(matches) >= 3 {
				info.Major, _ = strconv.Atoi(matches[1])
				info.Minor, _ = strconv.Atoi(matches[2])
			}
		}
		break
	}

	if info.Full == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}

	return info, nil
}

// getEncoders retrieves available encoders.
func (d *BinaryDetector) getEncoders(ctx context.Context, ffmpegPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var encoders []string
	inEncoderList := false

	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "------") {
			inEncoderList = true
			continue
		}
		if !inEncoderList {
			continue
		}

		// Format: V....D encoder_name description
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}

		rest := strings.TrimSpace(line[6:])
		parts := strings.Fields(rest)
		if len(parts) >= 1 && parts[0] != "" {
			encoders = append(encoders, parts[0])
		}
	}

	return encoders, nil
}

// getFormats retrieves available formats.
func (d *BinaryDetector) getFormats(ctx context.Context, ffmpegPath string) ([]FormatInfo, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-formats", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var formats []FormatInfo
	inFormatList := false

	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "--") {
			inFormatList = true
			continue
		}
		if !inFormatList || len(line) < 4 {
			continue
		}

		flags := strings.TrimSpace(line[:3])
		rest := strings.TrimSpace(line[3:])
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) < 1 {
			continue
		}

		format := FormatInfo{
			Name:     parts[0],
			CanDemux: strings.Contains(flags, "D"),
			CanMux:   strings.Contains(flags, "E"),
		}
		if len(parts) > 1 {
			format.LongName = strings.TrimSpace(parts[1])
		}

		if format.Name != "" {
			formats = append(formats, format)
		}
	}

	return formats, nil
}

// HasEncoder returns true if the encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// HasFormat returns true if the format is available for muxing.
func (info *BinaryInfo) HasFormat(name string) bool {
	for _, f := range info.Formats {
		if f.Name == name && f.CanMux {
			return true
		}
	}
	return false
}

// SupportsMinVersion returns true if FFmpeg version meets minimum requirement.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	if info.MajorVersion == major && info.MinorVersion >= minor {
		return true
	}
	return false
}

// JSON returns the binary info as JSON string.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}

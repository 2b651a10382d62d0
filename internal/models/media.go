package models

import (
	"encoding/json"
	"time"
)

// MediaDescriptor is an immutable description of a probed source file.
// It is created by the media inspector and never mutated afterwards; setting
// a trim window produces a new value via WithTrim so the original analysis
// stays intact.
type MediaDescriptor struct {
	// Path is the absolute path of the source file.
	Path string `json:"path"`

	// SizeBytes is the source file size.
	SizeBytes int64 `json:"size_bytes"`

	// Duration is the container duration reported by the probe.
	Duration time.Duration `json:"-"`

	// Width and Height are the coded dimensions of the first video stream.
	Width  int `json:"width"`
	Height int `json:"height"`

	// FrameRate is r_frame_rate resolved to a floating ratio (num/den).
	FrameRate float64 `json:"frame_rate"`

	// Codec is the source video codec name (e.g. "h264", "hevc").
	Codec string `json:"codec"`

	// PixelFormat is the source pixel format (e.g. "yuv420p").
	PixelFormat string `json:"pixel_format"`

	// BitRate is the overall container bit rate in bits per second, if known.
	BitRate int64 `json:"bit_rate,omitempty"`

	// TrimStart and TrimEnd bound the optional trim window. Both nil means
	// the whole file is used.
	TrimStart *time.Duration `json:"-"`
	TrimEnd   *time.Duration `json:"-"`
}

// IsTrimmed returns true if a trim point is set on either end.
func (m *MediaDescriptor) IsTrimmed() bool {
	return m.TrimStart != nil || m.TrimEnd != nil
}

// EffectiveDuration returns the duration that survives trimming:
// (trimEnd or duration) - (trimStart or 0).
func (m *MediaDescriptor) EffectiveDuration() time.Duration {
	end := m.Duration
	if m.TrimEnd != nil {
		end = *m.TrimEnd
	}
	var start time.Duration
	if m.TrimStart != nil {
		start = *m.TrimStart
	}
	return end - start
}

// WithTrim returns a copy of the descriptor carrying the given trim window.
// The window must satisfy 0 <= start < end <= duration.
func (m *MediaDescriptor) WithTrim(start, end time.Duration) (*MediaDescriptor, error) {
	if start < 0 || start >= end || end > m.Duration {
		return nil, ErrInvalidTrimWindow
	}
	out := *m
	out.TrimStart = &start
	out.TrimEnd = &end
	return &out, nil
}

// MarshalJSON renders durations in seconds rather than nanoseconds so probe
// output lines up with what ffprobe reports.
func (m *MediaDescriptor) MarshalJSON() ([]byte, error) {
	type alias MediaDescriptor
	out := struct {
		*alias
		DurationSeconds  float64  `json:"duration_seconds"`
		TrimStartSeconds *float64 `json:"trim_start_seconds,omitempty"`
		TrimEndSeconds   *float64 `json:"trim_end_seconds,omitempty"`
	}{
		alias:           (*alias)(m),
		DurationSeconds: m.Duration.Seconds(),
	}
	if m.TrimStart != nil {
		s := m.TrimStart.Seconds()
		out.TrimStartSeconds = &s
	}
	if m.TrimEnd != nil {
		s := m.TrimEnd.Seconds()
		out.TrimEndSeconds = &s
	}
	return json.Marshal(out)
}

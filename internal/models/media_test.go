package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor() *MediaDescriptor {
	return &MediaDescriptor{
		Path:        "/videos/sample.mp4",
		SizeBytes:   1 << 20,
		Duration:    10 * time.Second,
		Width:       1920,
		Height:      1080,
		FrameRate:   30,
		Codec:       "h264",
		PixelFormat: "yuv420p",
		BitRate:     4_000_000,
	}
}

func TestMediaDescriptor_WithTrim(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Duration
		end     time.Duration
		wantErr bool
	}{
		{
			name:  "valid window",
			start: 2 * time.Second,
			end:   6 * time.Second,
		},
		{
			name:  "full range",
			start: 0,
			end:   10 * time.Second,
		},
		{
			name:    "start equals end",
			start:   4 * time.Second,
			end:     4 * time.Second,
			wantErr: true,
		},
		{
			name:    "start after end",
			start:   6 * time.Second,
			end:     2 * time.Second,
			wantErr: true,
		},
		{
			name:    "end past duration",
			start:   2 * time.Second,
			end:     11 * time.Second,
			wantErr: true,
		},
		{
			name:    "negative start",
			start:   -1 * time.Second,
			end:     5 * time.Second,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := sampleDescriptor()
			trimmed, err := desc.WithTrim(tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTrimWindow)
				assert.Nil(t, trimmed)
				return
			}
			require.NoError(t, err)
			assert.True(t, trimmed.IsTrimmed())
			assert.Equal(t, tt.end-tt.start, trimmed.EffectiveDuration())

			// Original descriptor stays untouched.
			assert.False(t, desc.IsTrimmed())
			assert.Equal(t, desc.Duration, desc.EffectiveDuration())
		})
	}
}

func TestMediaDescriptor_EffectiveDuration(t *testing.T) {
	desc := sampleDescriptor()
	assert.Equal(t, 10*time.Second, desc.EffectiveDuration())
	assert.False(t, desc.IsTrimmed())

	trimmed, err := desc.WithTrim(2*time.Second, 6*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, trimmed.EffectiveDuration())
}

func TestMediaDescriptor_MarshalJSON(t *testing.T) {
	desc := sampleDescriptor()
	trimmed, err := desc.WithTrim(2*time.Second, 6*time.Second)
	require.NoError(t, err)

	data, err := json.Marshal(trimmed)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.InDelta(t, 10.0, out["duration_seconds"], 0.001)
	assert.InDelta(t, 2.0, out["trim_start_seconds"], 0.001)
	assert.InDelta(t, 6.0, out["trim_end_seconds"], 0.001)
	assert.Equal(t, "h264", out["codec"])

	// Untrimmed descriptors omit the trim fields entirely.
	data, err = json.Marshal(desc)
	require.NoError(t, err)
	var plain map[string]any
	require.NoError(t, json.Unmarshal(data, &plain))
	assert.NotContains(t, plain, "trim_start_seconds")
	assert.NotContains(t, plain, "trim_end_seconds")
}

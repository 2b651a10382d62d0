package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
	"streams": [
		{
			"index": 0,
			"codec_name": "aac",
			"codec_type": "audio",
			"bit_rate": "128000"
		},
		{
			"index": 1,
			"codec_name": "h264",
			"codec_type": "video",
			"width": 1920,
			"height": 1080,
			"pix_fmt": "yuv420p",
			"r_frame_rate": "30000/1001",
			"avg_frame_rate": "30000/1001"
		}
	],
	"format": {
		"filename": "sample.mp4",
		"nb_streams": 2,
		"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
		"duration": "10.010000",
		"size": "1048576",
		"bit_rate": "838860"
	}
}`

func TestParseProbeOutput(t *testing.T) {
	report, err := ParseProbeOutput([]byte(sampleProbeJSON))
	require.NoError(t, err)

	video := report.VideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)
	assert.Equal(t, 1920, video.Width)
	assert.Equal(t, 1080, video.Height)
	assert.Equal(t, "yuv420p", video.PixFmt)
	assert.InDelta(t, 29.97, video.Framerate(), 0.001)

	assert.InDelta(t, 10.01, report.Duration().Seconds(), 0.001)
	assert.Equal(t, int64(838860), report.BitRate())
}

func TestParseProbeOutputMalformed(t *testing.T) {
	_, err := ParseProbeOutput([]byte("this is not json"))
	assert.ErrorIs(t, err, ErrProbeParse)
}

func TestVideoStreamAbsent(t *testing.T) {
	report, err := ParseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	require.NoError(t, err)
	assert.Nil(t, report.VideoStream())
}

func TestParseFramerate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97},
		{"25", 25},
		{"0/0", 0},
		{"30/0", 0}, // divide-by-zero guard
		{"", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseFramerate(tt.in), 0.01)
		})
	}
}

func TestIsSupportedExtension(t *testing.T) {
	assert.True(t, IsSupportedExtension("video.mp4"))
	assert.True(t, IsSupportedExtension("VIDEO.MOV"))
	assert.True(t, IsSupportedExtension("/some/dir/clip.mkv"))
	assert.False(t, IsSupportedExtension("document.pdf"))
	assert.False(t, IsSupportedExtension("archive.tar.gz"))
	assert.False(t, IsSupportedExtension("noextension"))
}

func TestInspectPreflightChecks(t *testing.T) {
	// None of these cases may launch ffprobe, so a bogus binary path proves
	// the checks run first.
	prober := NewProber("/nonexistent/ffprobe", NewRunner(nil), nil)

	t.Run("not found", func(t *testing.T) {
		_, err := prober.Inspect(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unsupported format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
		_, err := prober.Inspect(context.Background(), path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.mp4")
		require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o644))

		limited := NewProber("/nonexistent/ffprobe", NewRunner(nil), nil).WithMaxSourceSize(1024)
		_, err := limited.Inspect(context.Background(), path)
		assert.ErrorIs(t, err, ErrSourceTooLarge)
	})
}

func TestInspectRealFile(t *testing.T) {
	info := detectOrSkip(t)

	source := makeTestVideo(t, info.FFmpegPath, 2*time.Second)
	prober := NewProber(info.FFprobePath, NewRunner(nil), nil)

	desc, err := prober.Inspect(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, source, desc.Path)
	assert.Equal(t, 320, desc.Width)
	assert.Equal(t, 240, desc.Height)
	assert.InDelta(t, 2.0, desc.Duration.Seconds(), 0.5)
	assert.Greater(t, desc.FrameRate, 0.0)
	assert.NotEmpty(t, desc.Codec)
}

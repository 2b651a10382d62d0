package ffmpeg

import "errors"

var (
	// ErrNotFound indicates the source file does not exist.
	ErrNotFound = errors.New("source file not found")

	// ErrUnsupportedFormat indicates the source extension is not in the
	// supported container set.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrSourceTooLarge indicates the source exceeds the configured size ceiling.
	ErrSourceTooLarge = errors.New("source file too large")

	// ErrProbeParse indicates the probe report was malformed or carried no
	// video stream.
	ErrProbeParse = errors.New("unusable probe output")

	// ErrTrimFailed indicates the stream-copy trim produced no output.
	ErrTrimFailed = errors.New("trim failed")

	// ErrTranscodeFailed indicates the re-encode produced no usable
	// elementary stream.
	ErrTranscodeFailed = errors.New("transcode failed")
)

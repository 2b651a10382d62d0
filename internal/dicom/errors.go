package dicom

import "errors"

var (
	// ErrInvalidSubject indicates the subject record is missing required
	// fields; no output is produced.
	ErrInvalidSubject = errors.New("invalid subject record")

	// ErrEncodeFailed wraps I/O failures while writing the object.
	ErrEncodeFailed = errors.New("encode failed")

	// ErrNotDICOM indicates a file without a valid Part-10 header.
	ErrNotDICOM = errors.New("not a DICOM part-10 file")
)

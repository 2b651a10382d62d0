// Package pipeline sequences one conversion job: optional trim, transcode,
// encode, optional transmit. Stages run strictly in order, share one
// cancellation context and report into one progress tracker; intermediate
// artifacts are removed on every exit path.
package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoOutputIntent indicates a job that neither saves nor transmits; running
// it would discard the result.
var ErrNoOutputIntent = errors.New("job has no output intent: enable save or transmit")

// ErrEndpointRequired indicates a transmit intent without an endpoint.
var ErrEndpointRequired = errors.New("transmit requested but no endpoint configured")

// StageError wraps a stage failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As classification.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Package dimse implements the minimal DICOM upper-layer protocol the
// pipeline needs: association negotiation over TCP (optionally TLS), C-ECHO
// for connectivity checks and C-STORE for object transmission. Each operation
// opens and tears down its own association.
package dimse

import "errors"

var (
	// ErrConnectionFailed indicates the peer could not be reached or the
	// association negotiation failed at the transport level.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrAssociationRejected indicates the peer answered the association
	// request with an explicit rejection.
	ErrAssociationRejected = errors.New("association rejected")

	// ErrTransmissionFailed indicates the peer answered a request with a
	// non-success status.
	ErrTransmissionFailed = errors.New("transmission failed")

	// ErrTimeout indicates no response arrived within the configured window.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrNoAcceptedContext indicates the peer accepted the association but
	// refused every offered presentation context.
	ErrNoAcceptedContext = errors.New("no presentation context accepted")
)

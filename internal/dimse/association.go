package dimse

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/endoforge/endoforge/internal/dicom"
	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/version"
)

// Aliases for the UID constants the association layer negotiates with.
const (
	uidVerification       = dicom.UIDVerification
	uidImplicitVRLE       = dicom.UIDImplicitVRLittleEndian
	uidApplicationContext = dicom.UIDApplicationContext
)

// association is one negotiated connection. It lives for a single operation:
// open, use, release (or abort), close.
type association struct {
	conn     net.Conn
	accepted map[byte]string
	maxPDU   uint32
	timeout  time.Duration
	logger   *slog.Logger
}

// dial opens the TCP (or TLS) connection to the endpoint.
func dial(ctx context.Context, endpoint *models.EndpointConfig) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: endpoint.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrConnectionFailed, endpoint.Address(), err)
	}

	if !endpoint.UseTLS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: endpoint.Host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: TLS handshake with %s: %v", ErrConnectionFailed, endpoint.Address(), err)
	}
	return tlsConn, nil
}

// negotiate sends an A-ASSOCIATE-RQ offering the given presentation contexts
// and waits for the peer's answer.
func negotiate(ctx context.Context, conn net.Conn, endpoint *models.EndpointConfig, contexts []proposedContext, logger *slog.Logger) (*association, error) {
	rq := &associateRQ{
		calledAE:  endpoint.CalledAETitle,
		callingAE: endpoint.CallingAETitle,
		contexts:  contexts,
		implClass: version.ImplementationClassUID,
		implName:  version.ImplementationVersionName(),
	}

	deadline := time.Now().Add(endpoint.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if err := writePDU(conn, pduAssociateRQ, rq.encode(uidApplicationContext)); err != nil {
		return nil, fmt.Errorf("%w: sending associate request: %v", ErrConnectionFailed, err)
	}

	pduType, body, err := readPDU(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: reading associate response: %v", ErrConnectionFailed, err)
	}

	switch pduType {
	case pduAssociateAC:
		ac, err := decodeAssociateAC(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		if len(ac.accepted) == 0 {
			return nil, ErrNoAcceptedContext
		}
		logger.Debug("association established",
			slog.String("peer", endpoint.Address()),
			slog.Int("accepted_contexts", len(ac.accepted)),
			slog.Uint64("max_pdu", uint64(ac.maxPDU)))
		return &association{
			conn:     conn,
			accepted: ac.accepted,
			maxPDU:   ac.maxPDU,
			timeout:  endpoint.Timeout,
			logger:   logger,
		}, nil

	case pduAssociateRJ:
		return nil, fmt.Errorf("%w: %s", ErrAssociationRejected, rejectReason(body))

	case pduAbort:
		return nil, fmt.Errorf("%w: peer aborted during negotiation", ErrConnectionFailed)

	default:
		return nil, fmt.Errorf("%w: unexpected PDU type 0x%02x during negotiation", ErrConnectionFailed, pduType)
	}
}

// sendCommand transmits one command set as a single command PDV.
func (a *association) sendCommand(contextID byte, command []byte) error {
	body := encodePDataTF([]pdv{{
		contextID: contextID,
		command:   true,
		last:      true,
		data:      command,
	}})
	if err := writePDU(a.conn, pduPDataTF, body); err != nil {
		return fmt.Errorf("%w: sending command: %v", ErrConnectionFailed, err)
	}
	return nil
}

// sendDataSet streams r as data PDVs sized to the peer's max PDU length.
func (a *association) sendDataSet(contextID byte, r io.Reader) error {
	// PDU header (6) + PDV header (6) must fit inside the peer's ceiling.
	chunkSize := int(a.maxPDU) - 12
	if chunkSize <= 0 {
		chunkSize = defaultMaxPDU - 12
	}

	buf := make([]byte, chunkSize)
	for {
		n, readErr := io.ReadFull(r, buf)
		last := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
		if n > 0 || last {
			body := encodePDataTF([]pdv{{
				contextID: contextID,
				last:      last,
				data:      buf[:n],
			}})
			if err := writePDU(a.conn, pduPDataTF, body); err != nil {
				return fmt.Errorf("%w: sending dataset: %v", ErrConnectionFailed, err)
			}
		}
		if last {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: reading dataset: %v", ErrConnectionFailed, readErr)
		}
	}
}

// readCommandResponse blocks until a complete command message arrives,
// reassembling it across PDVs. Dataset PDVs in the response are drained and
// discarded; none of the operations we issue expect response data.
func (a *association) readCommandResponse() (*commandSet, error) {
	var command []byte
	for {
		pduType, body, err := readPDU(a.conn)
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrConnectionFailed, err)
		}

		switch pduType {
		case pduPDataTF:
			pdvs, err := decodePDataTF(body)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
			}
			for _, p := range pdvs {
				if !p.command {
					continue
				}
				command = append(command, p.data...)
				if p.last {
					return decodeCommandSet(command)
				}
			}

		case pduAbort:
			return nil, fmt.Errorf("%w: peer aborted the association", ErrConnectionFailed)

		default:
			return nil, fmt.Errorf("%w: unexpected PDU type 0x%02x while awaiting response", ErrConnectionFailed, pduType)
		}
	}
}

// release performs the orderly A-RELEASE exchange. Best effort: failures are
// logged, not returned, because the operation outcome is already decided.
func (a *association) release() {
	_ = a.conn.SetDeadline(time.Now().Add(a.timeout))
	if err := writePDU(a.conn, pduReleaseRQ, make([]byte, 4)); err != nil {
		a.logger.Debug("release request failed", slog.String("error", err.Error()))
		return
	}
	for {
		pduType, _, err := readPDU(a.conn)
		if err != nil {
			a.logger.Debug("release response not received", slog.String("error", err.Error()))
			return
		}
		if pduType == pduReleaseRP {
			return
		}
		// Straggling P-DATA before the release response is legal; skip it.
		if pduType != pduPDataTF {
			return
		}
	}
}

// close tears down the transport.
func (a *association) close() {
	_ = a.conn.Close()
}

// contextFor returns the accepted presentation context id, preferring the
// proposed id when the peer accepted it.
func (a *association) contextFor(proposedID byte) (byte, string, bool) {
	if ts, ok := a.accepted[proposedID]; ok {
		return proposedID, ts, true
	}
	for id, ts := range a.accepted {
		return id, ts, true
	}
	return 0, "", false
}

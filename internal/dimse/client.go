package dimse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/endoforge/endoforge/internal/dicom"
	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
)

// Milestone is a coarse progress marker. The protocol exposes no finer
// granularity: one request, one terminal response.
type Milestone string

const (
	MilestoneConnect   Milestone = "connect"
	MilestoneAssociate Milestone = "associate"
	MilestoneSend      Milestone = "send"
	MilestoneResponse  Milestone = "response"
)

// MilestoneFunc observes operation milestones as they are passed.
type MilestoneFunc func(Milestone)

// Client performs C-ECHO and C-STORE operations against one configured PACS
// endpoint. Every operation negotiates and tears down its own association.
type Client struct {
	endpoint    *models.EndpointConfig
	logger      *slog.Logger
	onMilestone MilestoneFunc
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint *models.EndpointConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		logger:   observability.WithComponent(logger, "dimse"),
	}
}

// WithMilestones registers a milestone observer.
func (c *Client) WithMilestones(f MilestoneFunc) *Client {
	c.onMilestone = f
	return c
}

// Echo verifies connectivity with a C-ECHO exchange. A nil return means the
// peer explicitly answered with a success status; every other outcome,
// including timeouts and non-success statuses, is an error.
func (c *Client) Echo(ctx context.Context) (err error) {
	done := observability.TimedOperationWithError(ctx, c.logger, "c-echo", &err)
	defer done()

	if err := c.endpoint.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	conn, err := dial(ctx, c.endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.milestone(MilestoneConnect)

	assoc, err := negotiate(ctx, conn, c.endpoint, []proposedContext{{
		id:               1,
		abstractSyntax:   uidVerification,
		transferSyntaxes: []string{uidImplicitVRLE},
	}}, c.logger)
	if err != nil {
		return err
	}
	defer assoc.close()
	c.milestone(MilestoneAssociate)

	ctxID, _, ok := assoc.contextFor(1)
	if !ok {
		return ErrNoAcceptedContext
	}

	if err := assoc.sendCommand(ctxID, encodeEchoRQ(1)); err != nil {
		return err
	}
	c.milestone(MilestoneSend)

	rsp, err := c.awaitResponse(ctx, assoc)
	if err != nil {
		return err
	}
	c.milestone(MilestoneResponse)

	if rsp.commandField() != cmdCEchoRSP {
		return fmt.Errorf("%w: unexpected response command 0x%04x", ErrTransmissionFailed, rsp.commandField())
	}
	if status := rsp.status(); status != StatusSuccess {
		return fmt.Errorf("%w: echo status 0x%04x", ErrTransmissionFailed, status)
	}

	assoc.release()
	return nil
}

// Store transmits a Part-10 file with a C-STORE exchange. The file's own SOP
// class and transfer syntax are offered in negotiation, so the object travels
// exactly as encoded.
func (c *Client) Store(ctx context.Context, path string) (err error) {
	done := observability.TimedOperationWithError(ctx, c.logger, "c-store", &err)
	defer done()

	if err := c.endpoint.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	parsed, err := dicom.ReadFileMeta(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Seek(parsed.DataSetOffset, 0); err != nil {
		return fmt.Errorf("seeking dataset: %w", err)
	}

	conn, err := dial(ctx, c.endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.milestone(MilestoneConnect)

	assoc, err := negotiate(ctx, conn, c.endpoint, []proposedContext{{
		id:               1,
		abstractSyntax:   parsed.Meta.SOPClassUID,
		transferSyntaxes: []string{parsed.Meta.TransferSyntaxUID},
	}}, c.logger)
	if err != nil {
		return err
	}
	defer assoc.close()
	c.milestone(MilestoneAssociate)

	ctxID, _, ok := assoc.contextFor(1)
	if !ok {
		return ErrNoAcceptedContext
	}

	if err := assoc.sendCommand(ctxID, encodeStoreRQ(1, parsed.Meta.SOPClassUID, parsed.Meta.SOPInstanceUID)); err != nil {
		return err
	}
	if err := assoc.sendDataSet(ctxID, f); err != nil {
		return err
	}
	c.milestone(MilestoneSend)

	rsp, err := c.awaitResponse(ctx, assoc)
	if err != nil {
		return err
	}
	c.milestone(MilestoneResponse)

	if rsp.commandField() != cmdCStoreRSP {
		return fmt.Errorf("%w: unexpected response command 0x%04x", ErrTransmissionFailed, rsp.commandField())
	}
	if status := rsp.status(); status != StatusSuccess {
		return fmt.Errorf("%w: store status 0x%04x", ErrTransmissionFailed, status)
	}

	c.logger.Info("object stored",
		slog.String("peer", c.endpoint.Address()),
		slog.String("sop_instance_uid", parsed.Meta.SOPInstanceUID))

	assoc.release()
	return nil
}

// awaitResponse waits for exactly one terminal response with a select over
// (response ready, cancellation, timeout). The blocking read runs on its own
// goroutine and resolves a single-value completion channel; on timeout or
// cancellation the connection is closed to unblock it, which the peer sees as
// an abnormal release.
func (c *Client) awaitResponse(ctx context.Context, assoc *association) (*commandSet, error) {
	type outcome struct {
		rsp *commandSet
		err error
	}

	// The transport deadline backstops the select below so the reader
	// goroutine can never leak.
	_ = assoc.conn.SetDeadline(time.Now().Add(c.endpoint.Timeout + time.Second))

	ch := make(chan outcome, 1)
	go func() {
		rsp, err := assoc.readCommandResponse()
		ch <- outcome{rsp, err}
	}()

	select {
	case out := <-ch:
		return out.rsp, out.err
	case <-ctx.Done():
		assoc.close()
		<-ch
		return nil, ctx.Err()
	case <-time.After(c.endpoint.Timeout):
		assoc.close()
		<-ch
		return nil, fmt.Errorf("%w: no response within %s", ErrTimeout, c.endpoint.Timeout)
	}
}

// milestone forwards a progress marker when an observer is registered.
func (c *Client) milestone(m Milestone) {
	if c.onMilestone != nil {
		c.onMilestone(m)
	}
}

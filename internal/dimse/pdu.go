package dimse

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Upper-layer PDU types.
const (
	pduAssociateRQ = 0x01
	pduAssociateAC = 0x02
	pduAssociateRJ = 0x03
	pduPDataTF     = 0x04
	pduReleaseRQ   = 0x05
	pduReleaseRP   = 0x06
	pduAbort       = 0x07
)

// Variable item types inside associate PDUs.
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	itemMaxPDULength          = 0x51
	itemImplementationClass   = 0x52
	itemImplementationVersion = 0x55
)

// maxIncomingPDU bounds what readPDU will buffer; a peer announcing anything
// larger is misbehaving.
const maxIncomingPDU = 16 << 20

// defaultMaxPDU is the receive size we announce during negotiation.
const defaultMaxPDU = 64 * 1024

// protocolVersion is the only DICOM upper-layer protocol version ever defined.
const protocolVersion = 1

// proposedContext is one presentation context offered in an A-ASSOCIATE-RQ.
type proposedContext struct {
	id               byte
	abstractSyntax   string
	transferSyntaxes []string
}

// associateRQ carries everything needed to build an association request.
type associateRQ struct {
	calledAE  string
	callingAE string
	contexts  []proposedContext
	implClass string
	implName  string
}

// associateAC is the decoded acceptance: which contexts were accepted with
// which transfer syntax, and the peer's receive ceiling.
type associateAC struct {
	accepted map[byte]string
	maxPDU   uint32
}

// pdv is one presentation data value inside a P-DATA-TF PDU.
type pdv struct {
	contextID byte
	command   bool
	last      bool
	data      []byte
}

// writePDU frames and writes one PDU.
func writePDU(w io.Writer, pduType byte, body []byte) error {
	header := make([]byte, 6)
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readPDU reads one framed PDU.
func readPDU(r io.Reader) (byte, []byte, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[2:])
	if length > maxIncomingPDU {
		return 0, nil, fmt.Errorf("peer announced %d byte PDU, limit is %d", length, maxIncomingPDU)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return header[0], body, nil
}

// encodeAssociateRQ builds the A-ASSOCIATE-RQ body.
func (rq *associateRQ) encode(appContext string) []byte {
	var b []byte

	b = binary.BigEndian.AppendUint16(b, protocolVersion)
	b = append(b, 0x00, 0x00)
	b = append(b, padAETitle(rq.calledAE)...)
	b = append(b, padAETitle(rq.callingAE)...)
	b = append(b, make([]byte, 32)...)

	b = appendItem(b, itemApplicationContext, []byte(appContext))

	for _, pc := range rq.contexts {
		var body []byte
		body = append(body, pc.id, 0x00, 0x00, 0x00)
		body = appendItem(body, itemAbstractSyntax, []byte(pc.abstractSyntax))
		for _, ts := range pc.transferSyntaxes {
			body = appendItem(body, itemTransferSyntax, []byte(ts))
		}
		b = appendItem(b, itemPresentationContextRQ, body)
	}

	var user []byte
	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, defaultMaxPDU)
	user = appendItem(user, itemMaxPDULength, maxLen)
	user = appendItem(user, itemImplementationClass, []byte(rq.implClass))
	user = appendItem(user, itemImplementationVersion, []byte(rq.implName))
	b = appendItem(b, itemUserInformation, user)

	return b
}

// decodeAssociateAC parses an A-ASSOCIATE-AC body into the accepted contexts
// and the peer's max PDU length.
func decodeAssociateAC(body []byte) (*associateAC, error) {
	// Fixed part: version(2) + reserved(2) + two AE fields + 32 reserved.
	const fixed = 2 + 2 + 16 + 16 + 32
	if len(body) < fixed {
		return nil, fmt.Errorf("associate-ac too short: %d bytes", len(body))
	}

	ac := &associateAC{
		accepted: make(map[byte]string),
		maxPDU:   defaultMaxPDU,
	}

	items := body[fixed:]
	for len(items) > 0 {
		itemType, itemBody, rest, err := readItem(items)
		if err != nil {
			return nil, err
		}
		items = rest

		switch itemType {
		case itemPresentationContextAC:
			if len(itemBody) < 4 {
				return nil, fmt.Errorf("presentation context item too short")
			}
			ctxID, result := itemBody[0], itemBody[2]
			if result != 0x00 {
				continue // refused or no-reason
			}
			sub := itemBody[4:]
			for len(sub) > 0 {
				subType, subBody, subRest, err := readItem(sub)
				if err != nil {
					return nil, err
				}
				sub = subRest
				if subType == itemTransferSyntax {
					ac.accepted[ctxID] = strings.TrimRight(string(subBody), "\x00")
				}
			}

		case itemUserInformation:
			sub := itemBody
			for len(sub) > 0 {
				subType, subBody, subRest, err := readItem(sub)
				if err != nil {
					return nil, err
				}
				sub = subRest
				if subType == itemMaxPDULength && len(subBody) == 4 {
					ac.maxPDU = binary.BigEndian.Uint32(subBody)
				}
			}
		}
	}

	if ac.maxPDU == 0 || ac.maxPDU > maxIncomingPDU {
		ac.maxPDU = defaultMaxPDU
	}
	return ac, nil
}

// rejectReason renders an A-ASSOCIATE-RJ body as a diagnostic string.
func rejectReason(body []byte) string {
	if len(body) < 4 {
		return "malformed rejection"
	}
	result := map[byte]string{1: "rejected-permanent", 2: "rejected-transient"}[body[1]]
	if result == "" {
		result = fmt.Sprintf("result %d", body[1])
	}
	source := map[byte]string{1: "service-user", 2: "service-provider (ACSE)", 3: "service-provider (presentation)"}[body[2]]
	if source == "" {
		source = fmt.Sprintf("source %d", body[2])
	}
	return fmt.Sprintf("%s by %s, reason %d", result, source, body[3])
}

// encodePDataTF builds a P-DATA-TF body from one or more PDVs.
func encodePDataTF(pdvs []pdv) []byte {
	var b []byte
	for _, p := range pdvs {
		b = binary.BigEndian.AppendUint32(b, uint32(len(p.data)+2))
		b = append(b, p.contextID)
		var control byte
		if p.command {
			control |= 0x01
		}
		if p.last {
			control |= 0x02
		}
		b = append(b, control)
		b = append(b, p.data...)
	}
	return b
}

// decodePDataTF parses a P-DATA-TF body into its PDVs.
func decodePDataTF(body []byte) ([]pdv, error) {
	var out []pdv
	for len(body) > 0 {
		if len(body) < 6 {
			return nil, fmt.Errorf("truncated PDV header")
		}
		length := binary.BigEndian.Uint32(body)
		if length < 2 || int(length) > len(body)-4 {
			return nil, fmt.Errorf("PDV length %d out of range", length)
		}
		out = append(out, pdv{
			contextID: body[4],
			command:   body[5]&0x01 != 0,
			last:      body[5]&0x02 != 0,
			data:      body[6 : 4+length],
		})
		body = body[4+length:]
	}
	return out, nil
}

// appendItem appends one variable item (type, reserved, 16-bit length, body).
func appendItem(b []byte, itemType byte, body []byte) []byte {
	b = append(b, itemType, 0x00)
	b = binary.BigEndian.AppendUint16(b, uint16(len(body)))
	return append(b, body...)
}

// readItem consumes one variable item from b.
func readItem(b []byte) (itemType byte, body, rest []byte, err error) {
	if len(b) < 4 {
		return 0, nil, nil, fmt.Errorf("truncated item header")
	}
	length := binary.BigEndian.Uint16(b[2:])
	if int(length) > len(b)-4 {
		return 0, nil, nil, fmt.Errorf("item length %d exceeds remaining %d bytes", length, len(b)-4)
	}
	return b[0], b[4 : 4+length], b[4+length:], nil
}

// padAETitle space-pads an AE title to the fixed 16-byte field.
func padAETitle(title string) []byte {
	out := []byte(fmt.Sprintf("%-16s", title))
	return out[:16]
}

package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Command field values.
const (
	cmdCStoreRQ  = 0x0001
	cmdCStoreRSP = 0x8001
	cmdCEchoRQ   = 0x0030
	cmdCEchoRSP  = 0x8030
)

// dataSetAbsent marks a command message without an attached dataset; any
// other value means a dataset follows.
const dataSetAbsent = 0x0101

// StatusSuccess is the only response status treated as success.
const StatusSuccess = 0x0000

// Command group 0000 element tags (group, element).
type commandTag struct {
	group, element uint16
}

var (
	tagCommandGroupLength   = commandTag{0x0000, 0x0000}
	tagAffectedSOPClass     = commandTag{0x0000, 0x0002}
	tagCommandField         = commandTag{0x0000, 0x0100}
	tagMessageID            = commandTag{0x0000, 0x0110}
	tagMessageIDRespondedTo = commandTag{0x0000, 0x0120}
	tagPriority             = commandTag{0x0000, 0x0700}
	tagCommandDataSetType   = commandTag{0x0000, 0x0800}
	tagStatus               = commandTag{0x0000, 0x0900}
	tagAffectedSOPInstance  = commandTag{0x0000, 0x1000}
)

// commandSet is a decoded group 0000 message. Command sets are always encoded
// implicit VR little endian regardless of the negotiated transfer syntax.
type commandSet struct {
	elements map[commandTag][]byte
}

// encodeEchoRQ builds a C-ECHO-RQ command set.
func encodeEchoRQ(messageID uint16) []byte {
	b := newCommandBuilder()
	b.addUID(tagAffectedSOPClass, uidVerification)
	b.addUint16(tagCommandField, cmdCEchoRQ)
	b.addUint16(tagMessageID, messageID)
	b.addUint16(tagCommandDataSetType, dataSetAbsent)
	return b.finish()
}

// encodeStoreRQ builds a C-STORE-RQ command set announcing the dataset that
// follows in separate PDVs.
func encodeStoreRQ(messageID uint16, sopClassUID, sopInstanceUID string) []byte {
	b := newCommandBuilder()
	b.addUID(tagAffectedSOPClass, sopClassUID)
	b.addUint16(tagCommandField, cmdCStoreRQ)
	b.addUint16(tagMessageID, messageID)
	b.addUint16(tagPriority, 0x0000)
	b.addUint16(tagCommandDataSetType, 0x0000)
	b.addUID(tagAffectedSOPInstance, sopInstanceUID)
	return b.finish()
}

// decodeCommandSet parses an implicit VR little endian command set.
func decodeCommandSet(data []byte) (*commandSet, error) {
	cs := &commandSet{elements: make(map[commandTag][]byte)}
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("truncated command element header")
		}
		tag := commandTag{
			group:   binary.LittleEndian.Uint16(data[0:]),
			element: binary.LittleEndian.Uint16(data[2:]),
		}
		length := binary.LittleEndian.Uint32(data[4:])
		if int(length) > len(data)-8 {
			return nil, fmt.Errorf("command element %04x,%04x length %d exceeds remaining bytes",
				tag.group, tag.element, length)
		}
		cs.elements[tag] = data[8 : 8+length]
		data = data[8+length:]
	}
	return cs, nil
}

// uint16Value returns the US value for tag, if present.
func (cs *commandSet) uint16Value(tag commandTag) (uint16, bool) {
	v, ok := cs.elements[tag]
	if !ok || len(v) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(v), true
}

// uidValue returns the UI value for tag with its padding stripped.
func (cs *commandSet) uidValue(tag commandTag) string {
	return strings.TrimRight(string(cs.elements[tag]), "\x00 ")
}

// status returns the response status, defaulting to a failure value when the
// element is absent so a malformed response never reads as success.
func (cs *commandSet) status() uint16 {
	if v, ok := cs.uint16Value(tagStatus); ok {
		return v
	}
	return 0xFFFF
}

// commandField returns the command field value.
func (cs *commandSet) commandField() uint16 {
	v, _ := cs.uint16Value(tagCommandField)
	return v
}

// hasDataSet reports whether a dataset follows the command.
func (cs *commandSet) hasDataSet() bool {
	v, ok := cs.uint16Value(tagCommandDataSetType)
	return ok && v != dataSetAbsent
}

// commandBuilder accumulates implicit VR elements and prefixes the group
// length on finish.
type commandBuilder struct {
	body []byte
}

func newCommandBuilder() *commandBuilder {
	return &commandBuilder{}
}

func (b *commandBuilder) addElement(tag commandTag, value []byte) {
	b.body = binary.LittleEndian.AppendUint16(b.body, tag.group)
	b.body = binary.LittleEndian.AppendUint16(b.body, tag.element)
	b.body = binary.LittleEndian.AppendUint32(b.body, uint32(len(value)))
	b.body = append(b.body, value...)
}

func (b *commandBuilder) addUint16(tag commandTag, v uint16) {
	value := make([]byte, 2)
	binary.LittleEndian.PutUint16(value, v)
	b.addElement(tag, value)
}

func (b *commandBuilder) addUID(tag commandTag, uid string) {
	value := []byte(uid)
	if len(value)%2 != 0 {
		value = append(value, 0x00)
	}
	b.addElement(tag, value)
}

func (b *commandBuilder) finish() []byte {
	out := make([]byte, 0, len(b.body)+12)
	out = binary.LittleEndian.AppendUint16(out, tagCommandGroupLength.group)
	out = binary.LittleEndian.AppendUint16(out, tagCommandGroupLength.element)
	out = binary.LittleEndian.AppendUint32(out, 4)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.body)))
	return append(out, b.body...)
}

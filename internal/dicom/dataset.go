package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Element is one dataset attribute: a tag, its value representation and a
// typed value. Supported value types per VR:
//
//	string  text VRs (AE AS CS DA DS DT IS LO LT PN SH ST TM UI)
//	uint16  US
//	Tag     AT
//	[]byte  OB
//	nil     SQ (only the empty sequence is ever written)
type Element struct {
	Tag   Tag
	VR    string
	Value any
}

// DataSet is an ordered collection of elements. Elements are kept sorted by
// tag, as the encoding requires ascending tag order.
type DataSet struct {
	elements []Element
}

// Add inserts or replaces the element for tag.
func (d *DataSet) Add(tag Tag, vr string, value any) {
	for i := range d.elements {
		if d.elements[i].Tag == tag {
			d.elements[i] = Element{Tag: tag, VR: vr, Value: value}
			return
		}
	}
	d.elements = append(d.elements, Element{Tag: tag, VR: vr, Value: value})
	sort.Slice(d.elements, func(i, j int) bool {
		return d.elements[i].Tag.Less(d.elements[j].Tag)
	})
}

// AddString adds a text element.
func (d *DataSet) AddString(tag Tag, vr, value string) {
	d.Add(tag, vr, value)
}

// AddUint16 adds an unsigned short element.
func (d *DataSet) AddUint16(tag Tag, value uint16) {
	d.Add(tag, "US", value)
}

// AddTag adds an attribute-tag element.
func (d *DataSet) AddTag(tag Tag, value Tag) {
	d.Add(tag, "AT", value)
}

// AddEmptySequence adds a zero-length sequence element.
func (d *DataSet) AddEmptySequence(tag Tag) {
	d.Add(tag, "SQ", nil)
}

// Get returns the element for tag, if present.
func (d *DataSet) Get(tag Tag) (Element, bool) {
	for _, e := range d.elements {
		if e.Tag == tag {
			return e, true
		}
	}
	return Element{}, false
}

// GetString returns the string value for tag, or "" when absent or non-text.
func (d *DataSet) GetString(tag Tag) string {
	e, ok := d.Get(tag)
	if !ok {
		return ""
	}
	s, _ := e.Value.(string)
	return s
}

// Len returns the number of elements.
func (d *DataSet) Len() int {
	return len(d.elements)
}

// Elements returns the elements in tag order.
func (d *DataSet) Elements() []Element {
	out := make([]Element, len(d.elements))
	copy(out, d.elements)
	return out
}

// longFormVRs need the 12-byte explicit header (2 reserved bytes + 32-bit
// length) instead of the 8-byte short form.
var longFormVRs = map[string]bool{
	"OB": true, "OW": true, "OF": true, "SQ": true, "UC": true,
	"UR": true, "UT": true, "UN": true,
}

// WriteExplicitLE serializes the dataset in explicit VR little endian. Pixel
// data is not handled here; the writer emits it separately because its
// encapsulated form has its own framing.
func (d *DataSet) WriteExplicitLE(w *bytes.Buffer) error {
	for _, e := range d.elements {
		if err := writeElementExplicitLE(w, e); err != nil {
			return fmt.Errorf("element %s: %w", e.Tag, err)
		}
	}
	return nil
}

// writeElementExplicitLE emits one element with an explicit VR header.
func writeElementExplicitLE(w *bytes.Buffer, e Element) error {
	value, err := encodeValue(e)
	if err != nil {
		return err
	}
	if len(value)%2 != 0 {
		return fmt.Errorf("internal: odd value length %d", len(value))
	}

	writeTag(w, e.Tag)
	w.WriteString(e.VR)

	if longFormVRs[e.VR] {
		w.Write([]byte{0x00, 0x00})
		if err := binary.Write(w, binary.LittleEndian, uint32(len(value))); err != nil {
			return err
		}
	} else {
		if len(value) > 0xFFFF {
			return fmt.Errorf("value too long for short-form VR %s: %d bytes", e.VR, len(value))
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(value))); err != nil {
			return err
		}
	}

	w.Write(value)
	return nil
}

// encodeValue renders the element value as even-length bytes.
func encodeValue(e Element) ([]byte, error) {
	switch v := e.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return padString(v, e.VR), nil
	case uint16:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, v)
		return out, nil
	case Tag:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint16(out[0:], v.Group)
		binary.LittleEndian.PutUint16(out[2:], v.Element)
		return out, nil
	case []byte:
		if len(v)%2 != 0 {
			padded := make([]byte, len(v)+1)
			copy(padded, v)
			return padded, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T for VR %s", e.Value, e.VR)
	}
}

// padString pads a text value to even length: UIDs with a NUL byte, everything
// else with a trailing space, per the VR padding rules.
func padString(s, vr string) []byte {
	if len(s)%2 == 0 {
		return []byte(s)
	}
	if vr == "UI" {
		return append([]byte(s), 0x00)
	}
	return append([]byte(s), ' ')
}

// writeTag emits a tag as two little-endian 16-bit words.
func writeTag(w *bytes.Buffer, t Tag) {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:], t.Group)
	binary.LittleEndian.PutUint16(buf[2:], t.Element)
	w.Write(buf[:])
}

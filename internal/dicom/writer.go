package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/endoforge/endoforge/internal/version"
)

// preambleLen is the fixed Part-10 preamble size preceding the "DICM" magic.
const preambleLen = 128

// magic is the Part-10 marker following the preamble.
var magic = []byte("DICM")

// undefinedLength marks an encapsulated pixel-data element whose extent is
// bounded by a sequence delimiter rather than a length field.
const undefinedLength = 0xFFFFFFFF

// FileMeta describes the group 0002 header of a Part-10 file.
type FileMeta struct {
	SOPClassUID       string
	SOPInstanceUID    string
	TransferSyntaxUID string
}

// WriteFile serializes a complete Part-10 file: preamble, magic, file meta
// group, the dataset in explicit VR little endian, and the encapsulated pixel
// data built from stream. The stream is padded to even length with one zero
// byte when necessary.
func WriteFile(meta FileMeta, ds *DataSet, stream []byte) ([]byte, error) {
	var out bytes.Buffer

	out.Write(make([]byte, preambleLen))
	out.Write(magic)

	if err := writeFileMeta(&out, meta); err != nil {
		return nil, fmt.Errorf("file meta: %w", err)
	}
	if err := ds.WriteExplicitLE(&out); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if err := writePixelData(&out, stream); err != nil {
		return nil, fmt.Errorf("pixel data: %w", err)
	}

	return out.Bytes(), nil
}

// writeFileMeta emits group 0002, always in explicit VR little endian, with
// the group length element computed over the elements that follow it.
func writeFileMeta(w *bytes.Buffer, meta FileMeta) error {
	group := &DataSet{}
	group.Add(TagFileMetaVersion, "OB", []byte{0x00, 0x01})
	group.AddString(TagMediaStorageSOPClassUID, "UI", meta.SOPClassUID)
	group.AddString(TagMediaStorageSOPInstanceUID, "UI", meta.SOPInstanceUID)
	group.AddString(TagTransferSyntaxUID, "UI", meta.TransferSyntaxUID)
	group.AddString(TagImplementationClassUID, "UI", version.ImplementationClassUID)
	group.AddString(TagImplementationVersionName, "SH", version.ImplementationVersionName())

	var body bytes.Buffer
	if err := group.WriteExplicitLE(&body); err != nil {
		return err
	}

	length := &DataSet{}
	lengthBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBytes, uint32(body.Len()))
	length.Add(TagFileMetaGroupLength, "UL", lengthBytes)
	if err := length.WriteExplicitLE(w); err != nil {
		return err
	}

	w.Write(body.Bytes())
	return nil
}

// writePixelData emits the encapsulated pixel-data element: an OB element of
// undefined length holding an empty Basic Offset Table item, exactly one
// fragment with the whole (even-padded) stream, and the sequence delimiter.
// The two-item structure is a hard compatibility requirement of the target
// viewer; streams are never split into multiple fragments regardless of size.
func writePixelData(w *bytes.Buffer, stream []byte) error {
	padded := PadToEven(stream)

	writeTag(w, TagPixelData)
	w.WriteString("OB")
	w.Write([]byte{0x00, 0x00})
	if err := binary.Write(w, binary.LittleEndian, uint32(undefinedLength)); err != nil {
		return err
	}

	// Empty Basic Offset Table: single frame, nothing to index.
	writeTag(w, tagItem)
	if err := binary.Write(w, binary.LittleEndian, uint32(0)); err != nil {
		return err
	}

	writeTag(w, tagItem)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(padded))); err != nil {
		return err
	}
	w.Write(padded)

	writeTag(w, tagSequenceDelimiter)
	return binary.Write(w, binary.LittleEndian, uint32(0))
}

// PadToEven returns stream extended by a single zero byte when its length is
// odd; even-length input is returned unchanged.
func PadToEven(stream []byte) []byte {
	if len(stream)%2 == 0 {
		return stream
	}
	padded := make([]byte, len(stream)+1)
	copy(padded, stream)
	return padded
}

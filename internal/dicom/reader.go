package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ParsedFile is the result of reading a Part-10 header: the file meta values
// the network client needs plus the offset where the dataset begins.
type ParsedFile struct {
	Meta          FileMeta
	DataSetOffset int64
}

// ReadFileMeta parses the preamble, magic and group 0002 of a Part-10 file.
// It returns ErrNotDICOM for files without the header and never reads the
// dataset itself; the C-STORE sender streams that portion straight from disk.
func ReadFileMeta(path string) (*ParsedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return readFileMeta(f)
}

func readFileMeta(r io.Reader) (*ParsedFile, error) {
	header := make([]byte, preambleLen+len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrNotDICOM)
	}
	if !bytes.Equal(header[preambleLen:], magic) {
		return nil, fmt.Errorf("%w: missing DICM marker", ErrNotDICOM)
	}

	// The first element must be the group length, which bounds the rest of
	// group 0002.
	tag, vr, length, err := readExplicitHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDICOM, err)
	}
	if tag != TagFileMetaGroupLength || vr != "UL" || length != 4 {
		return nil, fmt.Errorf("%w: first element is %s %s, want group length", ErrNotDICOM, tag, vr)
	}
	var groupLength uint32
	if err := binary.Read(r, binary.LittleEndian, &groupLength); err != nil {
		return nil, fmt.Errorf("%w: truncated group length", ErrNotDICOM)
	}

	body := make([]byte, groupLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: truncated file meta group", ErrNotDICOM)
	}

	parsed := &ParsedFile{
		DataSetOffset: int64(preambleLen + len(magic) + 12 + int(groupLength)),
	}

	br := bytes.NewReader(body)
	for br.Len() > 0 {
		tag, _, length, err := readExplicitHeader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotDICOM, err)
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(br, value); err != nil {
			return nil, fmt.Errorf("%w: truncated element %s", ErrNotDICOM, tag)
		}
		switch tag {
		case TagMediaStorageSOPClassUID:
			parsed.Meta.SOPClassUID = trimUID(value)
		case TagMediaStorageSOPInstanceUID:
			parsed.Meta.SOPInstanceUID = trimUID(value)
		case TagTransferSyntaxUID:
			parsed.Meta.TransferSyntaxUID = trimUID(value)
		}
	}

	if parsed.Meta.TransferSyntaxUID == "" || parsed.Meta.SOPClassUID == "" {
		return nil, fmt.Errorf("%w: file meta lacks transfer syntax or SOP class", ErrNotDICOM)
	}
	return parsed, nil
}

// readExplicitHeader reads one explicit-VR element header, handling both the
// short and the long form.
func readExplicitHeader(r io.Reader) (Tag, string, uint32, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Tag{}, "", 0, fmt.Errorf("truncated element header")
	}
	tag := Tag{
		Group:   binary.LittleEndian.Uint16(buf[0:]),
		Element: binary.LittleEndian.Uint16(buf[2:]),
	}
	vr := string(buf[4:6])
	if longFormVRs[vr] {
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return Tag{}, "", 0, fmt.Errorf("truncated long-form length")
		}
		return tag, vr, length, nil
	}
	return tag, vr, uint32(binary.LittleEndian.Uint16(buf[6:])), nil
}

// trimUID strips the NUL padding byte from an even-padded UID value.
func trimUID(value []byte) string {
	return string(bytes.TrimRight(value, "\x00"))
}

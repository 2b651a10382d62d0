package dicom

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endoforge/endoforge/internal/models"
)

func testDescriptor() *models.MediaDescriptor {
	return &models.MediaDescriptor{
		Path:        "/tmp/sample.mp4",
		SizeBytes:   1 << 20,
		Duration:    10 * time.Second,
		Width:       1920,
		Height:      1080,
		FrameRate:   30,
		Codec:       "h264",
		PixelFormat: "yuv420p",
	}
}

func testSubject() *models.SubjectRecord {
	s := models.NewSubjectRecord("P1", "Doe^John")
	ts := time.Date(2024, 3, 15, 14, 30, 5, 0, time.UTC)
	s.StudyTime = ts
	s.SeriesTime = ts
	s.ContentTime = ts
	return s
}

func newTestEncoder(t *testing.T) *Encoder {
	t.Helper()
	return NewEncoder(newTestGenerator(t), nil)
}

// encapsulation is the parsed pixel-data framing of an encoded object.
type encapsulation struct {
	itemLengths []uint32
	fragment    []byte
}

// parseEncapsulation walks an encoded file to the pixel-data element and
// decodes its item structure.
func parseEncapsulation(t *testing.T, data []byte) encapsulation {
	t.Helper()

	parsed, err := readFileMeta(bytes.NewReader(data))
	require.NoError(t, err)

	r := bytes.NewReader(data[parsed.DataSetOffset:])
	for {
		tag, vr, length, err := readExplicitHeader(r)
		require.NoError(t, err, "walking dataset")
		if tag == TagPixelData {
			require.Equal(t, "OB", vr)
			require.Equal(t, uint32(undefinedLength), length)
			break
		}
		skipped := make([]byte, length)
		_, err = r.Read(skipped)
		if length > 0 {
			require.NoError(t, err)
		}
	}

	var enc encapsulation
	for {
		var hdr [8]byte
		_, err := r.Read(hdr[:])
		require.NoError(t, err, "reading item header")
		tag := Tag{binary.LittleEndian.Uint16(hdr[0:]), binary.LittleEndian.Uint16(hdr[2:])}
		length := binary.LittleEndian.Uint32(hdr[4:])
		if tag == tagSequenceDelimiter {
			require.Equal(t, uint32(0), length)
			return enc
		}
		require.Equal(t, tagItem, tag, "unexpected tag inside encapsulation")
		enc.itemLengths = append(enc.itemLengths, length)
		if length > 0 {
			body := make([]byte, length)
			_, err := r.Read(body)
			require.NoError(t, err)
			enc.fragment = body
		}
	}
}

func TestEncodeStructuralItems(t *testing.T) {
	enc := newTestEncoder(t)

	tests := []struct {
		name   string
		stream []byte
	}{
		{"empty stream", nil},
		{"single byte", []byte{0x47}},
		{"multi-megabyte", bytes.Repeat([]byte{0x00, 0x00, 0x01, 0x65}, 1<<20)},
		{"odd multi-megabyte", append(bytes.Repeat([]byte{0xAB}, 3<<20), 0xCD)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := enc.Encode(tt.stream, testDescriptor(), testSubject())
			require.NoError(t, err)

			parsed := parseEncapsulation(t, data)
			// Always exactly two items: the empty offset table and one
			// fragment, never a chunked layout.
			require.Len(t, parsed.itemLengths, 2)
			assert.Equal(t, uint32(0), parsed.itemLengths[0], "offset table must be empty")

			wantLen := len(tt.stream)
			if wantLen%2 != 0 {
				wantLen++
			}
			assert.Equal(t, uint32(wantLen), parsed.itemLengths[1])
			if len(tt.stream) > 0 {
				assert.Equal(t, tt.stream, parsed.fragment[:len(tt.stream)])
			}
		})
	}
}

func TestPadToEven(t *testing.T) {
	assert.Len(t, PadToEven([]byte{1, 2, 3}), 4)
	assert.Len(t, PadToEven([]byte{1, 2}), 2)
	assert.Len(t, PadToEven(nil), 0)

	padded := PadToEven([]byte{0x11})
	assert.Equal(t, []byte{0x11, 0x00}, padded)
}

func TestEncodeDatasetValues(t *testing.T) {
	enc := newTestEncoder(t)
	subject := testSubject()
	subject.Sex = models.SexMale
	subject.StudyDescription = "Routine endoscopy"

	data, err := enc.Encode([]byte{0x00, 0x01}, testDescriptor(), subject)
	require.NoError(t, err)

	parsed, err := readFileMeta(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, UIDVideoEndoscopicStorage, parsed.Meta.SOPClassUID)
	assert.Equal(t, UIDMPEG4HighProfile, parsed.Meta.TransferSyntaxUID)
	assert.True(t, ValidUID(parsed.Meta.SOPInstanceUID))

	ds := readTestDataset(t, data, parsed.DataSetOffset)
	assert.Equal(t, UIDVideoEndoscopicStorage, ds.GetString(TagSOPClassUID))
	assert.Equal(t, "P1", ds.GetString(TagPatientID))
	assert.Equal(t, "Doe^John", ds.GetString(TagPatientName))
	assert.Equal(t, "M", ds.GetString(TagPatientSex))
	assert.Equal(t, "ES", ds.GetString(TagModality))
	assert.Equal(t, "DV", ds.GetString(TagConversionType))
	assert.Equal(t, `ORIGINAL\SECONDARY`, ds.GetString(TagImageType))
	assert.Equal(t, "20240315", ds.GetString(TagStudyDate))
	assert.Equal(t, "143005", ds.GetString(TagStudyTime))
	assert.Equal(t, "YBR_PARTIAL_420", ds.GetString(TagPhotometricInterpretation))
	assert.Equal(t, "01", ds.GetString(TagLossyImageCompression))
	assert.Equal(t, "10", ds.GetString(TagEffectiveDuration))

	// Geometry and timing sentinels: zeros on purpose, the embedded stream
	// carries the real values.
	assert.Equal(t, "0", ds.GetString(TagNumberOfFrames))
	assert.Equal(t, "0", ds.GetString(TagCineRate))
	assert.Equal(t, "0.0", ds.GetString(TagFrameTime))

	rows, ok := ds.Get(TagRows)
	require.True(t, ok)
	assert.Equal(t, uint16(0), rows.Value)
	cols, ok := ds.Get(TagColumns)
	require.True(t, ok)
	assert.Equal(t, uint16(0), cols.Value)

	fip, ok := ds.Get(TagFrameIncrementPointer)
	require.True(t, ok)
	assert.Equal(t, TagFrameTime, fip.Value)

	seq, ok := ds.Get(TagAcquisitionContextSequence)
	require.True(t, ok)
	assert.Equal(t, "SQ", seq.VR)

	// Birth date defaults instead of going out empty.
	assert.Equal(t, "19700101", ds.GetString(TagPatientBirthDate))

	// Study and series UIDs are fresh and distinct.
	study := ds.GetString(TagStudyInstanceUID)
	series := ds.GetString(TagSeriesInstanceUID)
	assert.True(t, ValidUID(study))
	assert.True(t, ValidUID(series))
	assert.NotEqual(t, study, series)

	// Optional text attributes are present even when blank.
	_, ok = ds.Get(TagAccessionNumber)
	assert.True(t, ok)
	_, ok = ds.Get(TagManufacturer)
	assert.True(t, ok)
}

func TestEncodeBirthDatePreserved(t *testing.T) {
	enc := newTestEncoder(t)
	subject := testSubject()
	subject.BirthDate = "19851224"

	data, err := enc.Encode([]byte{0x00, 0x01}, testDescriptor(), subject)
	require.NoError(t, err)

	parsed, err := readFileMeta(bytes.NewReader(data))
	require.NoError(t, err)
	ds := readTestDataset(t, data, parsed.DataSetOffset)
	assert.Equal(t, "19851224", ds.GetString(TagPatientBirthDate))
}

func TestEncodeInvalidSubject(t *testing.T) {
	enc := newTestEncoder(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		subject *models.SubjectRecord
	}{
		{"missing id", models.NewSubjectRecord("", "Doe^John")},
		{"missing name", models.NewSubjectRecord("P1", "")},
		{"whitespace id", models.NewSubjectRecord("   ", "Doe^John")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.EncodeToFile([]byte{0x01, 0x02}, testDescriptor(), tt.subject, dir)
			require.ErrorIs(t, err, ErrInvalidSubject)

			entries, readErr := os.ReadDir(dir)
			require.NoError(t, readErr)
			assert.Empty(t, entries, "no output file may exist after a rejected subject")
		})
	}
}

func TestEncodeToFileNaming(t *testing.T) {
	enc := newTestEncoder(t)
	dir := t.TempDir()
	subject := testSubject()

	first, err := enc.EncodeToFile([]byte{0x01, 0x02}, testDescriptor(), subject, dir)
	require.NoError(t, err)
	assert.Equal(t, "P1_Doe_John_20240315143005.dcm", filepath.Base(first))

	// Same subject again: the name is taken, so a numeric suffix appears.
	second, err := enc.EncodeToFile([]byte{0x01, 0x02}, testDescriptor(), subject, dir)
	require.NoError(t, err)
	assert.Equal(t, "P1_Doe_John_20240315143005_1.dcm", filepath.Base(second))

	third, err := enc.EncodeToFile([]byte{0x01, 0x02}, testDescriptor(), subject, dir)
	require.NoError(t, err)
	assert.Equal(t, "P1_Doe_John_20240315143005_2.dcm", filepath.Base(third))
}

func TestOutputFilenameSanitized(t *testing.T) {
	subject := testSubject()
	subject.PatientID = "A/B:C"
	subject.PatientName = "Doe^John Jr"

	name := OutputFilename(subject)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, ":")
	assert.NotContains(t, name, "^")
	assert.NotContains(t, name, " ")
}

// readTestDataset parses the explicit VR dataset portion back into a DataSet,
// stopping at the pixel-data element.
func readTestDataset(t *testing.T, data []byte, offset int64) *DataSet {
	t.Helper()

	ds := &DataSet{}
	r := bytes.NewReader(data[offset:])
	for {
		tag, vr, length, err := readExplicitHeader(r)
		require.NoError(t, err)
		if tag == TagPixelData {
			return ds
		}
		value := make([]byte, length)
		if length > 0 {
			_, err = r.Read(value)
			require.NoError(t, err)
		}
		switch vr {
		case "US":
			ds.AddUint16(tag, binary.LittleEndian.Uint16(value))
		case "AT":
			ds.AddTag(tag, Tag{binary.LittleEndian.Uint16(value[0:]), binary.LittleEndian.Uint16(value[2:])})
		case "SQ":
			ds.AddEmptySequence(tag)
		case "UI":
			ds.AddString(tag, vr, string(bytes.TrimRight(value, "\x00")))
		default:
			ds.AddString(tag, vr, string(bytes.TrimRight(value, " ")))
		}
	}
}

package dicom

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/endoforge/endoforge/internal/models"
	"github.com/endoforge/endoforge/internal/observability"
	"github.com/endoforge/endoforge/internal/util"
)

// defaultBirthDate is written when the subject supplied no birth date. The
// attribute is never omitted or left empty; the target viewer refuses objects
// without it.
const defaultBirthDate = "19700101"

// Encoder builds Video Endoscopic objects from an elementary H.264 stream
// and a subject record. Every fixed attribute value below reproduces the byte
// layout of a known-good reference file; none of them are tunable.
type Encoder struct {
	uids   *Generator
	logger *slog.Logger
}

// NewEncoder creates an encoder drawing identifiers from uids.
func NewEncoder(uids *Generator, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		uids:   uids,
		logger: observability.WithComponent(logger, "encoder"),
	}
}

// Encode builds the complete Part-10 file bytes for the given elementary
// stream. The subject is validated first; an invalid subject produces no
// bytes at all.
func (e *Encoder) Encode(stream []byte, desc *models.MediaDescriptor, subject *models.SubjectRecord) ([]byte, error) {
	if err := subject.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}

	sopInstanceUID := e.uids.New()
	ds := e.buildDataSet(desc, subject, sopInstanceUID)

	meta := FileMeta{
		SOPClassUID:       UIDVideoEndoscopicStorage,
		SOPInstanceUID:    sopInstanceUID,
		TransferSyntaxUID: UIDMPEG4HighProfile,
	}

	out, err := WriteFile(meta, ds, stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	e.logger.Debug("object encoded",
		slog.String("sop_instance_uid", sopInstanceUID),
		slog.Int("stream_bytes", len(stream)),
		slog.Int("total_bytes", len(out)))
	return out, nil
}

// EncodeToFile encodes the stream and writes the object into dir under a
// deterministic name derived from the subject, disambiguated with a numeric
// suffix when the name is already taken.
func (e *Encoder) EncodeToFile(stream []byte, desc *models.MediaDescriptor, subject *models.SubjectRecord, dir string) (string, error) {
	data, err := e.Encode(stream, desc, subject)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	path := resolveOutputPath(dir, OutputFilename(subject))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	e.logger.Info("object written",
		slog.String("path", path),
		slog.Int("bytes", len(data)))
	return path, nil
}

// buildDataSet assembles the dataset. Geometry and timing attributes are
// deliberately written as zero sentinels: the viewer recovers the real values
// from the embedded stream, and real values here break playback. This
// deviates from the Video Endoscopic IOD on purpose; do not correct it
// without re-validating against the target viewer.
func (e *Encoder) buildDataSet(desc *models.MediaDescriptor, subject *models.SubjectRecord, sopInstanceUID string) *DataSet {
	ds := &DataSet{}

	ds.AddString(TagSpecificCharacterSet, "CS", "ISO_IR 100")
	ds.AddString(TagImageType, "CS", `ORIGINAL\SECONDARY`)
	ds.AddString(TagSOPClassUID, "UI", UIDVideoEndoscopicStorage)
	ds.AddString(TagSOPInstanceUID, "UI", sopInstanceUID)

	ds.AddString(TagStudyDate, "DA", subject.StudyTime.Format("20060102"))
	ds.AddString(TagSeriesDate, "DA", subject.SeriesTime.Format("20060102"))
	ds.AddString(TagContentDate, "DA", subject.ContentTime.Format("20060102"))
	ds.AddString(TagStudyTime, "TM", subject.StudyTime.Format("150405"))
	ds.AddString(TagSeriesTime, "TM", subject.SeriesTime.Format("150405"))
	ds.AddString(TagContentTime, "TM", subject.ContentTime.Format("150405"))

	// Optional text attributes are written as present-but-empty rather than
	// omitted; some viewers check for presence.
	ds.AddString(TagAccessionNumber, "SH", "")
	ds.AddString(TagModality, "CS", subject.EffectiveModality())
	ds.AddString(TagConversionType, "CS", "DV")
	ds.AddString(TagManufacturer, "LO", "")
	ds.AddString(TagReferringPhysicianName, "PN", subject.ReferringPhysician)
	ds.AddString(TagStudyDescription, "LO", subject.StudyDescription)
	ds.AddString(TagSeriesDescription, "LO", subject.SeriesDescription)
	ds.AddString(TagPerformingPhysicianName, "PN", subject.PerformingPhysician)

	ds.AddString(TagPatientName, "PN", subject.PatientName)
	ds.AddString(TagPatientID, "LO", subject.PatientID)
	birthDate := subject.BirthDate
	if birthDate == "" {
		birthDate = defaultBirthDate
	}
	ds.AddString(TagPatientBirthDate, "DA", birthDate)
	ds.AddString(TagPatientSex, "CS", subject.Sex)

	// Cine module sentinels. FrameIncrementPointer must reference FrameTime
	// even though FrameTime is zero; the module is structurally required.
	ds.AddString(TagCineRate, "IS", "0")
	ds.AddString(TagEffectiveDuration, "DS", formatDS(desc.EffectiveDuration().Seconds()))
	ds.AddString(TagFrameTime, "DS", "0.0")

	ds.AddString(TagStudyInstanceUID, "UI", e.uids.New())
	ds.AddString(TagSeriesInstanceUID, "UI", e.uids.New())
	ds.AddString(TagStudyID, "SH", "")
	ds.AddString(TagSeriesNumber, "IS", "1")
	ds.AddString(TagInstanceNumber, "IS", "1")

	ds.AddUint16(TagSamplesPerPixel, 3)
	ds.AddString(TagPhotometricInterpretation, "CS", "YBR_PARTIAL_420")
	ds.AddString(TagNumberOfFrames, "IS", "0")
	ds.AddTag(TagFrameIncrementPointer, TagFrameTime)
	ds.AddUint16(TagRows, 0)
	ds.AddUint16(TagColumns, 0)
	ds.AddUint16(TagBitsAllocated, 8)
	ds.AddUint16(TagBitsStored, 8)
	ds.AddUint16(TagHighBit, 7)
	ds.AddUint16(TagPixelRepresentation, 0)
	ds.AddString(TagLossyImageCompression, "CS", "01")

	// Structural placeholder expected by some viewers.
	ds.AddEmptySequence(TagAcquisitionContextSequence)

	return ds
}

// OutputFilename derives the deterministic object filename from the subject:
// sanitized patient id, patient name and the study timestamp.
func OutputFilename(subject *models.SubjectRecord) string {
	return fmt.Sprintf("%s_%s_%s.dcm",
		util.SanitizeFilename(subject.PatientID),
		util.SanitizeFilename(subject.PatientName),
		subject.StudyTime.Format("20060102150405"))
}

// resolveOutputPath appends _1, _2, ... to the stem until the name is free in
// dir.
func resolveOutputPath(dir, filename string) string {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// formatDS renders a float as a DICOM decimal string, capped at the DS
// 16-byte limit.
func formatDS(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	if len(s) > 16 {
		s = s[:16]
	}
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

// Package dicom builds the Video Endoscopic DICOM object: dataset
// construction, unique identifier generation, Part-10 serialization and the
// encapsulated pixel-data layout the target viewer requires.
package dicom

import "fmt"

// Well-known UIDs used by the encoder and the network client.
const (
	// UIDVideoEndoscopicStorage is the SOP class of every object we produce.
	UIDVideoEndoscopicStorage = "1.2.840.10008.5.1.4.1.1.77.1.1.1"

	// UIDVerification is the SOP class behind C-ECHO.
	UIDVerification = "1.2.840.10008.1.1"

	// UIDMPEG4HighProfile is the MPEG-4 AVC/H.264 High Profile / Level 4.1
	// encapsulated transfer syntax. It is declared in the file meta and
	// drives the dataset encoding from construction time.
	UIDMPEG4HighProfile = "1.2.840.10008.1.2.4.102"

	// UIDImplicitVRLittleEndian is the default transfer syntax every DICOM
	// node must accept; the network client offers it for command sets.
	UIDImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// UIDExplicitVRLittleEndian encodes the dataset portion of our objects.
	UIDExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// UIDApplicationContext names the DICOM application context in
	// association negotiation.
	UIDApplicationContext = "1.2.840.10008.3.1.1.1"
)

// Tag identifies one data element as a (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

// String renders the tag in the conventional (gggg,eeee) form.
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Less orders tags the way a dataset must be written: ascending group, then
// ascending element.
func (t Tag) Less(other Tag) bool {
	if t.Group != other.Group {
		return t.Group < other.Group
	}
	return t.Element < other.Element
}

// File meta information tags (group 0002).
var (
	TagFileMetaGroupLength        = Tag{0x0002, 0x0000}
	TagFileMetaVersion            = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID    = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID          = Tag{0x0002, 0x0010}
	TagImplementationClassUID     = Tag{0x0002, 0x0012}
	TagImplementationVersionName  = Tag{0x0002, 0x0013}
)

// Dataset tags written by the encoder.
var (
	TagSpecificCharacterSet       = Tag{0x0008, 0x0005}
	TagImageType                  = Tag{0x0008, 0x0008}
	TagSOPClassUID                = Tag{0x0008, 0x0016}
	TagSOPInstanceUID             = Tag{0x0008, 0x0018}
	TagStudyDate                  = Tag{0x0008, 0x0020}
	TagSeriesDate                 = Tag{0x0008, 0x0021}
	TagContentDate                = Tag{0x0008, 0x0023}
	TagStudyTime                  = Tag{0x0008, 0x0030}
	TagSeriesTime                 = Tag{0x0008, 0x0031}
	TagContentTime                = Tag{0x0008, 0x0033}
	TagAccessionNumber            = Tag{0x0008, 0x0050}
	TagModality                   = Tag{0x0008, 0x0060}
	TagConversionType             = Tag{0x0008, 0x0064}
	TagManufacturer               = Tag{0x0008, 0x0070}
	TagReferringPhysicianName     = Tag{0x0008, 0x0090}
	TagStudyDescription           = Tag{0x0008, 0x1030}
	TagSeriesDescription          = Tag{0x0008, 0x103E}
	TagPerformingPhysicianName    = Tag{0x0008, 0x1050}
	TagPatientName                = Tag{0x0010, 0x0010}
	TagPatientID                  = Tag{0x0010, 0x0020}
	TagPatientBirthDate           = Tag{0x0010, 0x0030}
	TagPatientSex                 = Tag{0x0010, 0x0040}
	TagCineRate                   = Tag{0x0018, 0x0040}
	TagEffectiveDuration          = Tag{0x0018, 0x0072}
	TagFrameTime                  = Tag{0x0018, 0x1063}
	TagStudyInstanceUID           = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID          = Tag{0x0020, 0x000E}
	TagStudyID                    = Tag{0x0020, 0x0010}
	TagSeriesNumber               = Tag{0x0020, 0x0011}
	TagInstanceNumber             = Tag{0x0020, 0x0013}
	TagSamplesPerPixel            = Tag{0x0028, 0x0002}
	TagPhotometricInterpretation  = Tag{0x0028, 0x0004}
	TagNumberOfFrames             = Tag{0x0028, 0x0008}
	TagFrameIncrementPointer      = Tag{0x0028, 0x0009}
	TagRows                       = Tag{0x0028, 0x0010}
	TagColumns                    = Tag{0x0028, 0x0011}
	TagBitsAllocated              = Tag{0x0028, 0x0100}
	TagBitsStored                 = Tag{0x0028, 0x0101}
	TagHighBit                    = Tag{0x0028, 0x0102}
	TagPixelRepresentation        = Tag{0x0028, 0x0103}
	TagLossyImageCompression      = Tag{0x0028, 0x2110}
	TagAcquisitionContextSequence = Tag{0x0040, 0x0555}
	TagPixelData                  = Tag{0x7FE0, 0x0010}
)

// Encapsulation framing tags.
var (
	tagItem              = Tag{0xFFFE, 0xE000}
	tagSequenceDelimiter = Tag{0xFFFE, 0xE0DD}
)

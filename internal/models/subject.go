package models

import (
	"strings"
	"time"
)

// Sex codes from the DICOM PatientSex enumeration.
const (
	SexMale   = "M"
	SexFemale = "F"
	SexOther  = "O"
)

// DefaultModality is the modality code written when none is supplied.
// "ES" is the DICOM code for endoscopy.
const DefaultModality = "ES"

// maxIdentifierLen is the DICOM long-string ceiling for patient id and name.
const maxIdentifierLen = 64

// SubjectRecord carries the patient and study attributes for one conversion.
// It is constructed from user input at job submission time and read-only
// afterwards. Fields tagged masq:"secret" are redacted in log output.
type SubjectRecord struct {
	// PatientID is the subject identifier. Required, at most 64 characters.
	PatientID string `json:"patient_id" masq:"secret"`

	// PatientName is the subject name in DICOM person-name form
	// ("Family^Given"). Required, at most 64 characters.
	PatientName string `json:"patient_name" masq:"secret"`

	// BirthDate is an optional DICOM date (YYYYMMDD).
	BirthDate string `json:"birth_date,omitempty" masq:"secret"`

	// Sex is one of M, F, O. Optional.
	Sex string `json:"sex,omitempty"`

	// StudyDescription and SeriesDescription are free-text labels.
	StudyDescription  string `json:"study_description,omitempty"`
	SeriesDescription string `json:"series_description,omitempty"`

	// ReferringPhysician and PerformingPhysician are person names.
	ReferringPhysician  string `json:"referring_physician,omitempty"`
	PerformingPhysician string `json:"performing_physician,omitempty"`

	// Modality is the DICOM modality code, defaulting to ES.
	Modality string `json:"modality"`

	// StudyTime, SeriesTime and ContentTime stamp the study, series and
	// content attributes of the produced object.
	StudyTime   time.Time `json:"study_time"`
	SeriesTime  time.Time `json:"series_time"`
	ContentTime time.Time `json:"content_time"`
}

// NewSubjectRecord builds a record with the default modality and all three
// timestamps set to the same current instant.
func NewSubjectRecord(patientID, patientName string) *SubjectRecord {
	now := time.Now()
	return &SubjectRecord{
		PatientID:   patientID,
		PatientName: patientName,
		Modality:    DefaultModality,
		StudyTime:   now,
		SeriesTime:  now,
		ContentTime: now,
	}
}

// EffectiveModality returns the modality code, falling back to the default
// when the field was left empty.
func (s *SubjectRecord) EffectiveModality() string {
	if strings.TrimSpace(s.Modality) == "" {
		return DefaultModality
	}
	return s.Modality
}

// Validate checks the record against the subject invariants: identifier and
// name non-empty after trimming and within the DICOM length ceiling, sex in
// the enumerated set, birth date a well-formed DICOM date when present.
func (s *SubjectRecord) Validate() error {
	if strings.TrimSpace(s.PatientID) == "" {
		return ErrPatientIDRequired
	}
	if strings.TrimSpace(s.PatientName) == "" {
		return ErrPatientNameRequired
	}
	if len(s.PatientID) > maxIdentifierLen {
		return ErrValidation{Field: "patient_id", Message: "must be at most 64 characters"}
	}
	if len(s.PatientName) > maxIdentifierLen {
		return ErrValidation{Field: "patient_name", Message: "must be at most 64 characters"}
	}
	switch s.Sex {
	case "", SexMale, SexFemale, SexOther:
	default:
		return ErrInvalidSex
	}
	if s.BirthDate != "" {
		if _, err := time.Parse("20060102", s.BirthDate); err != nil {
			return ErrInvalidBirthDate
		}
	}
	return nil
}

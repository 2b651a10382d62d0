package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubjectRecord(t *testing.T) {
	subject := NewSubjectRecord("P1", "Doe^John")

	assert.Equal(t, "P1", subject.PatientID)
	assert.Equal(t, "Doe^John", subject.PatientName)
	assert.Equal(t, DefaultModality, subject.Modality)
	assert.False(t, subject.StudyTime.IsZero())
	assert.Equal(t, subject.StudyTime, subject.SeriesTime)
	assert.Equal(t, subject.StudyTime, subject.ContentTime)
	require.NoError(t, subject.Validate())
}

func TestSubjectRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*SubjectRecord)
		wantErr error
	}{
		{
			name:   "valid record",
			modify: func(_ *SubjectRecord) {},
		},
		{
			name:    "empty patient id",
			modify:  func(s *SubjectRecord) { s.PatientID = "" },
			wantErr: ErrPatientIDRequired,
		},
		{
			name:    "whitespace patient id",
			modify:  func(s *SubjectRecord) { s.PatientID = "   " },
			wantErr: ErrPatientIDRequired,
		},
		{
			name:    "empty patient name",
			modify:  func(s *SubjectRecord) { s.PatientName = "" },
			wantErr: ErrPatientNameRequired,
		},
		{
			name:    "whitespace patient name",
			modify:  func(s *SubjectRecord) { s.PatientName = "\t " },
			wantErr: ErrPatientNameRequired,
		},
		{
			name:    "invalid sex code",
			modify:  func(s *SubjectRecord) { s.Sex = "X" },
			wantErr: ErrInvalidSex,
		},
		{
			name:   "valid sex codes",
			modify: func(s *SubjectRecord) { s.Sex = SexFemale },
		},
		{
			name:    "malformed birth date",
			modify:  func(s *SubjectRecord) { s.BirthDate = "1970-01-01" },
			wantErr: ErrInvalidBirthDate,
		},
		{
			name:    "impossible birth date",
			modify:  func(s *SubjectRecord) { s.BirthDate = "19701332" },
			wantErr: ErrInvalidBirthDate,
		},
		{
			name:   "valid birth date",
			modify: func(s *SubjectRecord) { s.BirthDate = "19850412" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject := NewSubjectRecord("P1", "Doe^John")
			tt.modify(subject)

			err := subject.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSubjectRecord_Validate_LengthCeiling(t *testing.T) {
	subject := NewSubjectRecord(strings.Repeat("9", 65), "Doe^John")

	var verr ErrValidation
	err := subject.Validate()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient_id", verr.Field)

	subject = NewSubjectRecord("P1", strings.Repeat("A", 65))
	err = subject.Validate()
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient_name", verr.Field)

	// Exactly 64 characters is still legal.
	subject = NewSubjectRecord(strings.Repeat("9", 64), strings.Repeat("A", 64))
	assert.NoError(t, subject.Validate())
}

func TestSubjectRecord_EffectiveModality(t *testing.T) {
	subject := NewSubjectRecord("P1", "Doe^John")
	assert.Equal(t, "ES", subject.EffectiveModality())

	subject.Modality = "OT"
	assert.Equal(t, "OT", subject.EffectiveModality())

	subject.Modality = "  "
	assert.Equal(t, "ES", subject.EffectiveModality())
}

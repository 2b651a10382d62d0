package models

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversionJob(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))

	assert.False(t, job.ID.IsZero())
	assert.Equal(t, JobStatePending, job.State())
	assert.Zero(t, job.Progress())
	assert.Nil(t, job.StartedAt())
	assert.False(t, job.IsTerminal())
}

func TestConversionJob_Lifecycle(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))

	require.True(t, job.MarkProcessing())
	assert.Equal(t, JobStateProcessing, job.State())
	assert.NotNil(t, job.StartedAt())
	assert.Zero(t, job.Progress())

	// A second transition attempt is rejected.
	assert.False(t, job.MarkProcessing())

	job.MarkCompleted("/out/P1.dcm")
	assert.Equal(t, JobStateCompleted, job.State())
	assert.Equal(t, "/out/P1.dcm", job.OutputPath())
	assert.Equal(t, 100.0, job.Progress())
	assert.NotNil(t, job.CompletedAt())
	assert.True(t, job.IsTerminal())
}

func TestConversionJob_TerminalIsFinal(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))
	job.MarkProcessing()
	job.MarkFailed(errors.New("transcode exploded"))

	assert.Equal(t, JobStateFailed, job.State())
	require.Error(t, job.Err())

	// Later transitions must not overwrite the terminal state.
	job.MarkCompleted("/out/late.dcm")
	assert.Equal(t, JobStateFailed, job.State())
	assert.Empty(t, job.OutputPath())

	job.MarkCancelled()
	assert.Equal(t, JobStateFailed, job.State())
}

func TestConversionJob_MarkCancelled(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))
	job.MarkProcessing()
	job.MarkCancelled()

	assert.Equal(t, JobStateCancelled, job.State())
	assert.True(t, job.IsTerminal())
	assert.NoError(t, job.Err())
}

func TestConversionJob_Progress(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))

	job.SetProgress(42.5)
	assert.Equal(t, 42.5, job.Progress())

	job.SetProgress(150)
	assert.Equal(t, 100.0, job.Progress())

	job.SetProgress(-5)
	assert.Equal(t, 0.0, job.Progress())
}

func TestConversionJob_Artifacts(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))

	job.AddArtifact("/tmp/trim-abc.mp4")
	job.AddArtifact("/tmp/stream-abc.h264")
	job.AddArtifact("")

	artifacts := job.Artifacts()
	assert.Equal(t, []string{"/tmp/trim-abc.mp4", "/tmp/stream-abc.h264"}, artifacts)

	// The returned slice is a copy.
	artifacts[0] = "mutated"
	assert.Equal(t, "/tmp/trim-abc.mp4", job.Artifacts()[0])
}

func TestConversionJob_Cancel(t *testing.T) {
	job := NewConversionJob(sampleDescriptor(), NewSubjectRecord("P1", "Doe^John"))

	// Cancel before any handle is registered is a no-op.
	job.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	job.SetCancel(cancel)
	job.Cancel()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

package models

import (
	"context"
	"sync"
	"time"
)

// JobState represents the lifecycle state of a conversion job.
type JobState string

const (
	// JobStatePending indicates the job has not started yet.
	JobStatePending JobState = "pending"
	// JobStateProcessing indicates the pipeline is running.
	JobStateProcessing JobState = "processing"
	// JobStateCompleted indicates the job finished successfully.
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates a stage failed.
	JobStateFailed JobState = "failed"
	// JobStateCancelled indicates the job was cancelled before completion.
	JobStateCancelled JobState = "cancelled"
)

// ConversionJob is the unit of work: one source description, one subject
// record, the output intents, and the lifecycle bookkeeping. The orchestrator
// owns the job; stage callbacks may update progress from other goroutines, so
// mutable fields are guarded by a mutex.
type ConversionJob struct {
	// ID identifies the job in logs and progress events.
	ID ULID `json:"id"`

	// Media is the probed source, possibly carrying a trim window.
	Media *MediaDescriptor `json:"media"`

	// Subject is the patient/study record written into the object.
	Subject *SubjectRecord `json:"subject"`

	// SaveToDisk keeps the encoded object in the output directory.
	SaveToDisk bool `json:"save_to_disk"`

	// Transmit sends the encoded object to Endpoint after encoding.
	Transmit bool `json:"transmit"`

	// Endpoint is the PACS target, required when Transmit is set.
	Endpoint *EndpointConfig `json:"endpoint,omitempty"`

	mu          sync.Mutex
	state       JobState
	progress    float64
	err         error
	outputPath  string
	artifacts   []string
	startedAt   *time.Time
	completedAt *time.Time
	cancel      context.CancelFunc
}

// NewConversionJob creates a pending job with a fresh ULID.
func NewConversionJob(media *MediaDescriptor, subject *SubjectRecord) *ConversionJob {
	return &ConversionJob{
		ID:      NewULID(),
		Media:   media,
		Subject: subject,
		state:   JobStatePending,
	}
}

// State returns the current lifecycle state.
func (j *ConversionJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the most recent overall percentage (0-100).
func (j *ConversionJob) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// SetProgress records the overall percentage, clamped to [0, 100].
func (j *ConversionJob) SetProgress(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.mu.Lock()
	j.progress = pct
	j.mu.Unlock()
}

// Err returns the error captured on failure, nil otherwise.
func (j *ConversionJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// OutputPath returns the final object path once the job completed.
func (j *ConversionJob) OutputPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputPath
}

// StartedAt returns when processing began, nil while pending.
func (j *ConversionJob) StartedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

// CompletedAt returns when the job reached a terminal state.
func (j *ConversionJob) CompletedAt() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedAt
}

// IsTerminal returns true once the job reached a final state.
func (j *ConversionJob) IsTerminal() bool {
	switch j.State() {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// MarkProcessing transitions Pending -> Processing, capturing the start
// timestamp and resetting progress to zero. Returns false if the job is not
// pending.
func (j *ConversionJob) MarkProcessing() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobStatePending {
		return false
	}
	now := time.Now()
	j.state = JobStateProcessing
	j.startedAt = &now
	j.progress = 0
	return true
}

// MarkCompleted transitions to Completed with the final output path.
func (j *ConversionJob) MarkCompleted(outputPath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminalLocked() {
		return
	}
	now := time.Now()
	j.state = JobStateCompleted
	j.completedAt = &now
	j.outputPath = outputPath
	j.progress = 100
}

// MarkFailed transitions to Failed, capturing the stage error.
func (j *ConversionJob) MarkFailed(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminalLocked() {
		return
	}
	now := time.Now()
	j.state = JobStateFailed
	j.completedAt = &now
	j.err = err
}

// MarkCancelled transitions to Cancelled.
func (j *ConversionJob) MarkCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminalLocked() {
		return
	}
	now := time.Now()
	j.state = JobStateCancelled
	j.completedAt = &now
}

func (j *ConversionJob) terminalLocked() bool {
	switch j.state {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// AddArtifact records an intermediate file owned by the job. Artifacts are
// removed by the orchestrator's cleanup on every exit path.
func (j *ConversionJob) AddArtifact(path string) {
	if path == "" {
		return
	}
	j.mu.Lock()
	j.artifacts = append(j.artifacts, path)
	j.mu.Unlock()
}

// Artifacts returns a copy of the recorded intermediate file paths.
func (j *ConversionJob) Artifacts() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.artifacts))
	copy(out, j.artifacts)
	return out
}

// SetCancel stores the cancellation handle for the running pipeline.
func (j *ConversionJob) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

// Cancel requests cooperative cancellation of the running pipeline. Safe to
// call at any time, including before the job started.
func (j *ConversionJob) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

package pipeline

import "sync"

// StageProgress is one progress event: the active stage, its percentage and
// the weighted overall percentage. Stage percentages are monotonic within a
// stage and reset to zero when the next stage starts; only the overall value
// is monotonic across the whole job.
type StageProgress struct {
	Stage   string
	Percent float64
	Overall float64
}

// ProgressCallback observes progress events.
type ProgressCallback func(StageProgress)

// stageWeight pairs a stage name with its share of the overall percentage.
type stageWeight struct {
	name   string
	weight float64
}

// Tracker aggregates per-stage progress into one weighted overall value and
// fans events out to a callback. Safe for use from the runner goroutine plus
// subprocess line readers.
type Tracker struct {
	mu       sync.Mutex
	stages   []stageWeight
	total    float64
	index    int
	stagePct float64
	callback ProgressCallback
	closed   bool
}

// NewTracker creates a tracker over the given stage sequence. Weights are
// relative; they do not need to sum to anything in particular.
func NewTracker(callback ProgressCallback, stages ...stageWeight) *Tracker {
	t := &Tracker{
		stages:   stages,
		index:    -1,
		callback: callback,
	}
	for _, s := range stages {
		t.total += s.weight
	}
	return t
}

// StartStage advances to the named stage and resets its percentage to zero.
// Unknown names are ignored.
func (t *Tracker) StartStage(name string) {
	t.mu.Lock()
	for i, s := range t.stages {
		if s.name == name {
			t.index = i
			t.stagePct = 0
			break
		}
	}
	event, send := t.eventLocked()
	t.mu.Unlock()
	if send {
		t.callback(event)
	}
}

// Update records progress for the active stage. Events are emitted only for
// strict increases, so progress never moves backwards within a stage and no
// percentage is reported twice.
func (t *Tracker) Update(pct float64) {
	t.mu.Lock()
	if pct > 100 {
		pct = 100
	}
	if t.index < 0 || pct <= t.stagePct {
		t.mu.Unlock()
		return
	}
	t.stagePct = pct
	event, send := t.eventLocked()
	t.mu.Unlock()
	if send {
		t.callback(event)
	}
}

// CompleteStage forces the active stage to 100.
func (t *Tracker) CompleteStage() {
	t.Update(100)
}

// Overall returns the weighted overall percentage.
func (t *Tracker) Overall() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overallLocked()
}

// Close stops event delivery. Updates arriving after Close are dropped, which
// keeps late subprocess callbacks from racing job teardown.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *Tracker) overallLocked() float64 {
	if t.total == 0 || t.index < 0 {
		return 0
	}
	var done float64
	for i := 0; i < t.index; i++ {
		done += t.stages[i].weight
	}
	done += t.stages[t.index].weight * t.stagePct / 100
	return done / t.total * 100
}

func (t *Tracker) eventLocked() (StageProgress, bool) {
	if t.closed || t.callback == nil || t.index < 0 {
		return StageProgress{}, false
	}
	return StageProgress{
		Stage:   t.stages[t.index].name,
		Percent: t.stagePct,
		Overall: t.overallLocked(),
	}, true
}

// Package progress records where the current pipeline run is and fans the
// state out to subscribers.
package progress

import (
	"math"
	"sync"
	"time"

	"market-predictor/internal/domain"
)

var stageOrder = map[domain.Stage]int{
	domain.StageIdle:                0,
	domain.StageInitializing:        1,
	domain.StageFetchingData:        2,
	domain.StageProcessingTechnical: 3,
	domain.StageProcessingSentiment: 4,
	domain.StageCalculating:         5,
	domain.StageComplete:            6,
	domain.StageError:               7,
}

// Tracker holds the state of one run at a time. Percent never decreases
// within a run; only Reset and Fail bring it back to zero.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	state   domain.ProgressState
	started time.Time
	subs    map[int]chan domain.ProgressState
	nextID  int
}

func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now:   now,
		state: domain.ProgressState{Stage: domain.StageIdle, UpdatedAt: now()},
		subs:  make(map[int]chan domain.ProgressState),
	}
}

// Reset starts a new run at Idle, 0%.
func (t *Tracker) Reset(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.started = now
	t.state = domain.ProgressState{RunID: runID, Stage: domain.StageIdle, UpdatedAt: now}
	t.publish()
}

// Update moves the run to stage at percent. Updates that would move the
// stage backwards, or that arrive after the run finished, are ignored.
func (t *Tracker) Update(stage domain.Stage, percent float64, item string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Stage.Terminal() || stage == domain.StageError {
		return
	}
	if stageOrder[stage] < stageOrder[t.state.Stage] {
		return
	}
	if math.IsNaN(percent) {
		percent = 0
	}
	percent = math.Min(math.Max(percent, 0), 100)

	t.state.Stage = stage
	t.state.Percent = math.Max(t.state.Percent, percent)
	t.state.CurrentItem = item
	t.stamp()
	t.publish()
}

// Transition enters stage without moving percent.
func (t *Tracker) Transition(stage domain.Stage, item string) {
	t.mu.Lock()
	percent := t.state.Percent
	t.mu.Unlock()
	t.Update(stage, percent, item)
}

// Complete marks the run finished at 100%.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Stage.Terminal() {
		return
	}
	t.state.Stage = domain.StageComplete
	t.state.Percent = 100
	t.state.CurrentItem = ""
	t.stamp()
	t.publish()
}

// Fail moves the run into Error and resets percent to 0.
func (t *Tracker) Fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Stage.Terminal() {
		return
	}
	t.state.Stage = domain.StageError
	t.state.Percent = 0
	t.state.CurrentItem = reason
	t.stamp()
	t.publish()
}

// Snapshot returns the current state with elapsed time brought up to date
// for a run still in flight.
func (t *Tracker) Snapshot() domain.ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	if !t.started.IsZero() && !s.Stage.Terminal() && s.Stage != domain.StageIdle {
		s.ElapsedSeconds = math.Max(t.now().Sub(t.started).Seconds(), 0)
	}
	return s
}

// Subscribe returns a channel of state updates and a cancel func that closes
// it. A slow subscriber loses intermediate updates but always receives the
// newest one.
func (t *Tracker) Subscribe(buffer int) (<-chan domain.ProgressState, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	ch := make(chan domain.ProgressState, buffer)
	t.subs[id] = ch
	ch <- t.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
}

// stamp must be called with mu held.
func (t *Tracker) stamp() {
	now := t.now()
	t.state.UpdatedAt = now
	elapsed := 0.0
	if !t.started.IsZero() {
		elapsed = math.Max(now.Sub(t.started).Seconds(), 0)
	}
	t.state.ElapsedSeconds = elapsed

	p := t.state.Percent
	switch {
	case t.state.Stage.Terminal(), p >= 100:
		t.state.ETASeconds = 0
	case p > 0:
		t.state.ETASeconds = math.Max(elapsed*(100/p-1), 0)
	default:
		t.state.ETASeconds = 0
	}
}

// publish must be called with mu held.
func (t *Tracker) publish() {
	for _, ch := range t.subs {
		select {
		case ch <- t.state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t.state:
			default:
			}
		}
	}
}

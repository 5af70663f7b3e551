package metrics

import (
	"sync"
	"time"

	"github.com/MikeSquared-Agency/sift/internal/chunker"
	"github.com/MikeSquared-Agency/sift/internal/executor"
)

// Run states reported by Tracker.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateFinished = "finished"
)

// Tracker keeps live progress counters for the status API. It implements
// dispatcher.Observer.
type Tracker struct {
	mu      sync.Mutex
	p       Progress
	now     func() time.Time
	running startedSet
}

func NewTracker() *Tracker {
	return &Tracker{p: Progress{State: StateIdle}, now: time.Now}
}

// Begin resets the tracker for a run of total chunks.
func (t *Tracker) Begin(runID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p = Progress{RunID: runID, State: StateRunning, StartedAt: t.now().UTC(), Total: total}
	t.running = startedSet{}
}

func (t *Tracker) ChunkStarted(c chunker.Chunk) {
	t.running.add(c.ConversationID, c.Index)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Started++
	t.p.InFlight++
}

func (t *Tracker) ChunkFinished(r executor.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.OK() {
		t.p.Succeeded++
	} else {
		t.p.Failed++
	}
	if t.running.remove(r.ConversationID, r.ChunkIndex) {
		t.p.InFlight--
	}
}

func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.State = StateFinished
	t.p.FinishedAt = t.now().UTC()
	t.p.InFlight = 0
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

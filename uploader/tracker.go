package uploader

import (
	"sync"
	"time"
)

// Progress is a point-in-time snapshot of one upload batch.
type Progress struct {
	BatchID   string    `json:"batch_id"`
	JobCode   string    `json:"job_code"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker keeps counters for in-flight upload batches so the web layer can
// report progress. Finished batches are dropped on the next Snapshot call
// after a grace period.
type Tracker struct {
	mu      *sync.Mutex
	batches map[string]*Progress
	done    map[string]time.Time
}

const doneRetention = time.Minute

func NewTracker() *Tracker {
	return &Tracker{
		mu:      &sync.Mutex{},
		batches: make(map[string]*Progress),
		done:    make(map[string]time.Time),
	}
}

func (t *Tracker) Begin(batchID, jobCode string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.batches[batchID] = &Progress{
		BatchID:   batchID,
		JobCode:   jobCode,
		Total:     total,
		StartedAt: time.Now().UTC(),
	}
}

func (t *Tracker) IncrCompleted(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.batches[batchID]; ok {
		p.Completed++
	}
}

func (t *Tracker) IncrFailed(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.batches[batchID]; ok {
		p.Failed++
	}
}

func (t *Tracker) End(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done[batchID] = time.Now().UTC()
}

// Get returns the progress of one batch.
func (t *Tracker) Get(batchID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.batches[batchID]
	if !ok {
		return Progress{}, false
	}

	return *p, true
}

// Snapshot returns all known batches and prunes finished ones past the
// retention window.
func (t *Tracker) Snapshot() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().UTC().Add(-doneRetention)

	for id, at := range t.done {
		if at.Before(cutoff) {
			delete(t.done, id)
			delete(t.batches, id)
		}
	}

	out := make([]Progress, 0, len(t.batches))
	for _, p := range t.batches {
		out = append(out, *p)
	}

	return out
}

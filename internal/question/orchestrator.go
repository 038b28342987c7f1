package question

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle state of an interview question.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
)

// ErrInvalidTransition is returned for a rejected status change. The
// state is left untouched; callers log and move on.
var ErrInvalidTransition = errors.New("question: invalid status transition")

// ErrNotFound is returned when the target question does not exist locally.
var ErrNotFound = errors.New("question: not found")

// Question is one interview question tracked by the orchestrator.
// Questions are created by the remote generator and merged in by the
// poller; status is mutated only through the orchestrator.
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Order     int       `json:"order"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Orchestrator owns the local view of question statuses and enforces the
// transition rules. At most one question is active at any instant.
type Orchestrator struct {
	mu        sync.Mutex
	questions map[string]*Question

	// pending holds local optimistic writes not yet acknowledged by the
	// remote store; merge preserves them over stale remote snapshots.
	pending map[string]Status

	autoAdvance bool
	debounce    time.Duration
	advanceGen  uint64

	// onActivate fires after a question becomes active (marker injection
	// and similar side effects live outside the lock).
	onActivate func(Question)

	schedule func(time.Duration, func())
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAutoAdvance enables activating the next pending question after
// MarkDone, delayed by debounce to absorb bursts of updates.
func WithAutoAdvance(debounce time.Duration) Option {
	return func(o *Orchestrator) {
		o.autoAdvance = true
		o.debounce = debounce
	}
}

// WithActivateHook registers a callback invoked whenever a question
// becomes active through SetActive (user action or auto-advance).
func WithActivateHook(fn func(Question)) Option {
	return func(o *Orchestrator) { o.onActivate = fn }
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		questions: make(map[string]*Question),
		pending:   make(map[string]Status),
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns a copy of all questions ordered by their canonical
// sequence.
func (o *Orchestrator) Snapshot() []Question {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Question, 0, len(o.questions))
	for _, q := range o.questions {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Active returns the currently active question, if any.
func (o *Orchestrator) Active() (Question, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, q := range o.questions {
		if q.Status == StatusActive {
			return *q, true
		}
	}
	return Question{}, false
}

// PendingWrites returns a copy of the local status writes awaiting remote
// acknowledgement. Consumed by the poller's push phase.
func (o *Orchestrator) PendingWrites() map[string]Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Status, len(o.pending))
	for id, st := range o.pending {
		out[id] = st
	}
	return out
}

// Acknowledge clears a pending write once the remote store has accepted
// it. A stale acknowledgement (status no longer matches) is ignored.
func (o *Orchestrator) Acknowledge(id string, st Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending[id] == st {
		delete(o.pending, id)
	}
}

// SetActive marks the target question active and demotes any other
// active question to pending. The single-active invariant holds on exit.
func (o *Orchestrator) SetActive(id string) error {
	o.mu.Lock()
	q, ok := o.questions[id]
	if !ok {
		o.mu.Unlock()
		return ErrNotFound
	}
	if q.Status == StatusActive {
		o.mu.Unlock()
		return nil
	}
	if q.Status != StatusPending {
		o.mu.Unlock()
		slog.Warn("rejected status change", "question", id, "from", q.Status, "to", StatusActive)
		return ErrInvalidTransition
	}

	for _, other := range o.questions {
		if other.ID != id && other.Status == StatusActive {
			other.Status = StatusPending
			o.pending[other.ID] = StatusPending
		}
	}
	q.Status = StatusActive
	o.pending[id] = StatusActive
	o.advanceGen++
	activated := *q
	hook := o.onActivate
	o.mu.Unlock()

	if hook != nil {
		hook(activated)
	}
	return nil
}

// MarkDone completes the active question. With auto-advance enabled, the
// lowest-order pending question after it is activated once the debounce
// delay passes without further completions.
func (o *Orchestrator) MarkDone(id string) error {
	o.mu.Lock()
	q, ok := o.questions[id]
	if !ok {
		o.mu.Unlock()
		return ErrNotFound
	}
	if q.Status != StatusActive {
		o.mu.Unlock()
		slog.Warn("rejected status change", "question", id, "from", q.Status, "to", StatusDone)
		return ErrInvalidTransition
	}
	q.Status = StatusDone
	o.pending[id] = StatusDone

	var nextID string
	if o.autoAdvance {
		if next := o.nextPendingLocked(q.Order); next != nil {
			nextID = next.ID
		}
	}
	o.advanceGen++
	gen := o.advanceGen
	o.mu.Unlock()

	if nextID != "" {
		o.schedule(o.debounce, func() {
			o.mu.Lock()
			stale := gen != o.advanceGen
			o.mu.Unlock()
			if stale {
				return
			}
			if err := o.SetActive(nextID); err != nil {
				slog.Warn("auto-advance skipped", "question", nextID, "err", err)
			}
		})
	}
	return nil
}

// MarkSkipped skips the active question. Skipping never auto-advances.
func (o *Orchestrator) MarkSkipped(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.questions[id]
	if !ok {
		return ErrNotFound
	}
	if q.Status != StatusActive {
		slog.Warn("rejected status change", "question", id, "from", q.Status, "to", StatusSkipped)
		return ErrInvalidTransition
	}
	q.Status = StatusSkipped
	o.pending[id] = StatusSkipped
	o.advanceGen++
	return nil
}

// nextPendingLocked finds the lowest-order pending question strictly
// after the given order.
func (o *Orchestrator) nextPendingLocked(after int) *Question {
	var best *Question
	for _, q := range o.questions {
		if q.Status != StatusPending || q.Order <= after {
			continue
		}
		if best == nil || q.Order < best.Order {
			best = q
		}
	}
	return best
}

// Merge reconciles a remote snapshot into local state. The remote is
// authoritative for existence, order and text. For status, a local
// optimistic write wins until the remote has acknowledged it; done and
// skipped questions dropped by the remote are kept as local history.
func (o *Orchestrator) Merge(remote []Question) {
	o.mu.Lock()

	seen := make(map[string]bool, len(remote))
	for _, rq := range remote {
		seen[rq.ID] = true
		local, ok := o.questions[rq.ID]
		if !ok {
			q := rq
			if q.Status == "" {
				q.Status = StatusPending
			}
			o.questions[q.ID] = &q
			continue
		}
		local.Text = rq.Text
		local.Order = rq.Order
		if !rq.CreatedAt.IsZero() {
			local.CreatedAt = rq.CreatedAt
		}

		if want, unacked := o.pending[rq.ID]; unacked {
			if rq.Status == want {
				// Remote caught up with our write.
				delete(o.pending, rq.ID)
				local.Status = rq.Status
			}
			// Otherwise the snapshot is stale: the local write stands.
			continue
		}
		if rq.Status != "" {
			local.Status = rq.Status
		}
	}

	for id, q := range o.questions {
		if seen[id] {
			continue
		}
		switch q.Status {
		case StatusDone, StatusSkipped:
			// The backend drops completed questions from its list; their
			// disappearance is the acknowledgement.
			delete(o.pending, id)
		default:
			delete(o.questions, id)
			delete(o.pending, id)
		}
	}

	// Re-assert the single-active invariant after remote overwrites.
	var keep *Question
	for _, q := range o.questions {
		if q.Status != StatusActive {
			continue
		}
		if keep == nil || q.Order < keep.Order {
			keep = q
		}
	}
	if keep != nil {
		for _, q := range o.questions {
			if q.Status == StatusActive && q.ID != keep.ID {
				q.Status = StatusPending
			}
		}
	}
	o.mu.Unlock()
}

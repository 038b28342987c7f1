package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes recognized speech from injected annotations.
type Kind string

const (
	KindSpeech Kind = "speech"
	KindMarker Kind = "marker"
)

// Chunk is one immutable unit of transcript: recognized speech aggregated
// over a flush window, or an out-of-band marker.
type Chunk struct {
	ID      string        `json:"id"`
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed_ms"`
	Kind    Kind          `json:"kind"`
}

// Timestamp renders the elapsed time as MM:SS.
func (c Chunk) Timestamp() string {
	total := int(c.Elapsed.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Aggregator buffers finalized text fragments and flushes them into
// discrete chunks on a fixed cadence or on demand. Chunks reach the sink
// in non-decreasing elapsed-time order and are never empty.
type Aggregator struct {
	mu          sync.Mutex
	acc         []string
	startedAt   time.Time
	lastElapsed time.Duration
	sink        func(Chunk)
	now         func() time.Time
}

// NewAggregator creates an aggregator for a session that started at
// startedAt. Every emitted chunk is handed to sink synchronously under
// the aggregator's lock; sinks must not block or call back in.
func NewAggregator(startedAt time.Time, sink func(Chunk)) *Aggregator {
	return &Aggregator{
		startedAt: startedAt,
		sink:      sink,
		now:       time.Now,
	}
}

// Add appends one finalized fragment to the accumulator. Blank fragments
// are ignored.
func (a *Aggregator) Add(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.acc = append(a.acc, fragment)
	a.mu.Unlock()
}

// Flush emits the accumulated fragments as one speech chunk, if any.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.acc) == 0 {
		return
	}
	text := strings.TrimSpace(strings.Join(a.acc, " "))
	a.acc = a.acc[:0]
	// Delivered under the lock so concurrent emitters cannot reorder
	// chunks between creation and delivery. Sinks must not block.
	a.sink(a.newChunkLocked(text, KindSpeech))
}

// InjectMarker emits a marker chunk immediately, bypassing the timer and
// the accumulator.
func (a *Aggregator) InjectMarker(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink(a.newChunkLocked(text, KindMarker))
}

func (a *Aggregator) newChunkLocked(text string, kind Kind) Chunk {
	elapsed := a.now().Sub(a.startedAt)
	if elapsed < a.lastElapsed {
		elapsed = a.lastElapsed
	}
	a.lastElapsed = elapsed
	return Chunk{
		ID:      uuid.NewString(),
		Text:    text,
		Elapsed: elapsed,
		Kind:    kind,
	}
}

// Run flushes on a fixed interval until ctx is cancelled, then performs a
// final flush so a trailing partial chunk is never lost.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.Flush()
		case <-ctx.Done():
			a.Flush()
			return
		}
	}
}

package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pmflab/interviewd/internal/api"
	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/transcript"
)

// Backend is the slice of the session API the poller uses.
type Backend interface {
	GetQuestions(ctx context.Context, sessionID string) (api.QuestionSnapshot, error)
	UpdateQuestionStatus(ctx context.Context, sessionID, questionID string, st question.Status) error
	SubmitTranscript(ctx context.Context, sessionID, text string) ([]string, error)
}

// Poller reconciles local question state against the remote store on a
// fixed interval and forwards aggregated speech chunks for follow-up
// generation. Every tick is independent: a failed poll is logged and
// retried at the next tick, never surfaced as fatal.
type Poller struct {
	backend   Backend
	orch      *question.Orchestrator
	sessionID string
	interval  time.Duration

	mu        sync.Mutex
	queue     []transcript.Chunk
	activated bool // first-poll current-question activation done
}

func New(backend Backend, orch *question.Orchestrator, sessionID string, interval time.Duration) *Poller {
	return &Poller{
		backend:   backend,
		orch:      orch,
		sessionID: sessionID,
		interval:  interval,
	}
}

// Submit queues one chunk for forwarding. Markers annotate the local
// transcript only and are not sent to the question generator.
func (p *Poller) Submit(c transcript.Chunk) {
	if c.Kind != transcript.KindSpeech {
		return
	}
	p.mu.Lock()
	p.queue = append(p.queue, c)
	p.mu.Unlock()
}

// Run polls until ctx is cancelled, then makes one last attempt to flush
// unsynced status writes and queued chunks. Blocks.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("session poller started", "session", p.sessionID, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.pushStatusWrites(flushCtx)
			p.pushChunks(flushCtx)
			cancel()
			slog.Info("session poller stopped", "session", p.sessionID)
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick pulls before pushing: the merged snapshot then predates the
// status pushes, so local writes are still unacknowledged during merge
// and cannot be clobbered by the very state they are about to create.
func (p *Poller) tick(ctx context.Context) {
	p.pull(ctx)
	p.pushStatusWrites(ctx)
	p.pushChunks(ctx)
}

// pushStatusWrites sends unacknowledged local status changes upstream.
func (p *Poller) pushStatusWrites(ctx context.Context) {
	for id, st := range p.orch.PendingWrites() {
		if err := p.backend.UpdateQuestionStatus(ctx, p.sessionID, id, st); err != nil {
			slog.Warn("status push failed, will retry", "question", id, "status", st, "err", err)
			continue
		}
		p.orch.Acknowledge(id, st)
	}
}

// pushChunks forwards queued speech chunks. A failed submission keeps the
// chunk queued for the next tick.
func (p *Poller) pushChunks(ctx context.Context) {
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for i, c := range pending {
		followups, err := p.backend.SubmitTranscript(ctx, p.sessionID, c.Text)
		if err != nil {
			slog.Warn("transcript push failed, will retry", "chunk", c.ID, "err", err)
			p.mu.Lock()
			p.queue = append(pending[i:], p.queue...)
			p.mu.Unlock()
			return
		}
		if len(followups) > 0 {
			// Follow-ups arrive as real questions on the next poll;
			// the inline response is informational.
			slog.Info("follow-up questions suggested", "count", len(followups))
		}
	}
}

// pull fetches the remote snapshot and reconciles it into local state.
func (p *Poller) pull(ctx context.Context) {
	snap, err := p.backend.GetQuestions(ctx, p.sessionID)
	if err != nil {
		slog.Warn("question poll failed, will retry", "session", p.sessionID, "err", err)
		return
	}
	p.orch.Merge(snap.Questions)

	// On the first successful poll, adopt the backend's designated
	// current question when nothing is active locally yet.
	if !p.activated {
		p.activated = true
		if _, ok := p.orch.Active(); !ok && snap.Current != nil {
			if err := p.orch.SetActive(snap.Current.ID); err != nil {
				slog.Warn("initial activation failed", "question", snap.Current.ID, "err", err)
			}
		}
	}
}

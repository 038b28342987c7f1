// Package session runs one live interview recording: microphone capture
// feeding a streaming recognizer, with recognized speech aggregated into
// transcript chunks and fanned out to the configured sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pmflab/interviewd/internal/audio"
	"github.com/pmflab/interviewd/internal/pcm"
	"github.com/pmflab/interviewd/internal/stt"
	"github.com/pmflab/interviewd/internal/transcript"
)

// ErrAlreadyRecording means Start was called while a recording is live.
var ErrAlreadyRecording = errors.New("session: recording already in progress")

// ClientFactory produces the recognition client for one recording.
// Resolving the credential happens here, so a missing key fails Start
// before the microphone is touched.
type ClientFactory func(ctx context.Context) (stt.Client, error)

// ChunkSink receives each aggregated transcript chunk. Sinks must not
// block; slow consumers should buffer internally.
type ChunkSink func(transcript.Chunk)

// capturer is the part of an audio session the recorder drives.
type capturer interface {
	Stop()
}

// acquireAudio opens the microphone; replaced in tests.
var acquireAudio = func(cfg audio.Config, onBuffer func([]float32), onError func(error)) (capturer, error) {
	return audio.Acquire(cfg, onBuffer, onError)
}

// Config sets the capture and aggregation parameters for a recording.
type Config struct {
	SampleRate      int
	FramesPerBuffer int
	// FlushInterval is how often accumulated speech is cut into a chunk.
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.FlushInterval == 0 {
		c.FlushInterval = 5 * time.Second
	}
	return c
}

// Recorder owns the capture pipeline for at most one live recording at a
// time. Start and Stop may be called repeatedly; each Start builds a fresh
// recognition client and capture session, and Stop tears both down in a
// fixed order so that no audio is sent into a dead connection and no
// recognized speech is lost unflushed.
type Recorder struct {
	log   *slog.Logger
	sinks []ChunkSink

	mu        sync.Mutex
	cfg       Config
	factory   ClientFactory
	running   bool
	startedAt time.Time
	client    stt.Client
	capture   capturer
	agg       *transcript.Aggregator
	cancel    context.CancelFunc
	wg        *sync.WaitGroup

	// onStreamError is invoked when the recognition stream or the
	// microphone fails mid-recording. The pipeline does not reconnect;
	// the operator restarts the recording.
	onStreamError func(error)
}

func NewRecorder(log *slog.Logger, cfg Config, factory ClientFactory, sinks ...ChunkSink) *Recorder {
	return &Recorder{
		log:     log,
		cfg:     cfg.withDefaults(),
		factory: factory,
		sinks:   sinks,
	}
}

// OnStreamError registers a callback for mid-recording stream failures.
// Must be set before Start.
func (r *Recorder) OnStreamError(fn func(error)) {
	r.onStreamError = fn
}

// Reconfigure swaps the capture parameters and recognizer factory used by
// the next Start. A live recording keeps the settings it started with.
func (r *Recorder) Reconfigure(cfg Config, factory ClientFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg.withDefaults()
	r.factory = factory
}

// Recording reports whether a capture is live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// StartedAt returns the start time of the current recording, or the zero
// time when idle.
func (r *Recorder) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return time.Time{}
	}
	return r.startedAt
}

// Start brings up the full pipeline: recognition client first, then the
// microphone, then the aggregation loops. Any failure unwinds the parts
// already started and leaves the recorder idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRecording
	}

	client, err := r.factory(ctx)
	if err != nil {
		return fmt.Errorf("session: create recognizer: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return fmt.Errorf("session: connect recognizer: %w", err)
	}

	startedAt := time.Now()
	agg := transcript.NewAggregator(startedAt, r.fanout)

	capture, err := acquireAudio(
		audio.Config{SampleRate: r.cfg.SampleRate, FramesPerBuffer: r.cfg.FramesPerBuffer},
		func(samples []float32) { client.Send(pcm.Encode(samples)) },
		func(err error) {
			// A dead microphone ends the recording the same way a dead
			// recognition stream does.
			r.log.Error("microphone capture failed", "error", err)
			if r.onStreamError != nil {
				r.onStreamError(err)
			}
		},
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("session: acquire microphone: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(runCtx, r.cfg.FlushInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range client.Results() {
			if !res.IsFinal {
				continue
			}
			agg.Add(res.Text)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		// The error channel is not closed on teardown, so exit on the run
		// context as well.
		for {
			select {
			case <-runCtx.Done():
				return
			case err, ok := <-client.Errors():
				if !ok {
					return
				}
				r.log.Error("recognition stream failed", "error", err)
				if r.onStreamError != nil {
					// The callback may call Stop, which waits on this
					// goroutine; run it detached.
					go r.onStreamError(err)
				}
			}
		}
	}()

	r.running = true
	r.startedAt = startedAt
	r.client = client
	r.capture = capture
	r.agg = agg
	r.cancel = cancel
	r.wg = wg
	r.log.Info("recording started", "started_at", startedAt.Format(time.RFC3339))
	return nil
}

// Stop tears the pipeline down. The order matters: the periodic flush is
// cancelled first, then the recognition connection closes so the service
// finalizes in-flight audio, then the microphone stops, then the drain
// goroutines are waited out, and last the aggregator flushes whatever
// speech arrived during shutdown. Safe to call when idle or repeatedly.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	client, capture, agg := r.client, r.capture, r.agg
	cancel, wg := r.cancel, r.wg
	r.running = false
	r.client = nil
	r.capture = nil
	r.agg = nil
	r.cancel = nil
	r.wg = nil
	r.mu.Unlock()

	cancel()
	client.Close()
	capture.Stop()
	wg.Wait()
	agg.Flush()
	r.log.Info("recording stopped")
}

// InjectMarker records a non-speech annotation in the transcript at the
// current elapsed time. No-op when idle.
func (r *Recorder) InjectMarker(text string) {
	r.mu.Lock()
	agg := r.agg
	r.mu.Unlock()
	if agg != nil {
		agg.InjectMarker(text)
	}
}

func (r *Recorder) fanout(c transcript.Chunk) {
	for _, sink := range r.sinks {
		sink(c)
	}
}

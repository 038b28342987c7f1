package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pmflab/interviewd/internal/api"
	"github.com/pmflab/interviewd/internal/config"
	"github.com/pmflab/interviewd/internal/poll"
	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/session"
	"github.com/pmflab/interviewd/internal/store"
	"github.com/pmflab/interviewd/internal/stt"
	"github.com/pmflab/interviewd/internal/transcript"
	"github.com/pmflab/interviewd/internal/web"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  interviewd run [config]     Start the interview capture daemon")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cfgPath := "config.yaml"
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		if err := run(cfgPath); err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

// app ties the recorder to the backend and local persistence; it is the
// control surface the web panel drives.
type app struct {
	cfg       *config.Config
	backend   *api.Client
	db        *store.Store
	recorder  *session.Recorder
	sessionID string

	mu sync.Mutex

	// csv has its own lock: logChunk runs on the aggregator's delivery
	// path while StartRecording and StopRecording hold mu.
	csvMu sync.Mutex
	csv   *transcript.Logger
}

func (a *app) StartRecording(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	csv, err := transcript.NewLogger(a.cfg.Transcript.LogDir, a.sessionID)
	if err != nil {
		return fmt.Errorf("open transcript log: %w", err)
	}
	if err := a.recorder.Start(ctx); err != nil {
		csv.Close()
		return err
	}
	a.csvMu.Lock()
	a.csv = csv
	a.csvMu.Unlock()

	if err := a.db.OpenSession(a.sessionID, time.Now()); err != nil {
		slog.Error("persist session start failed", "err", err)
	}
	if err := a.backend.StartLive(ctx, a.sessionID); err != nil {
		// The backend will still pick the session up on the next poll.
		slog.Error("notify backend of start failed", "err", err)
	}
	return nil
}

func (a *app) StopRecording(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.recorder.Recording() {
		return nil
	}
	a.recorder.Stop()
	a.csvMu.Lock()
	if a.csv != nil {
		a.csv.Close()
		a.csv = nil
	}
	a.csvMu.Unlock()
	if err := a.db.CloseSession(a.sessionID, time.Now()); err != nil {
		slog.Error("persist session end failed", "err", err)
	}
	if err := a.backend.StopLive(ctx, a.sessionID); err != nil {
		slog.Error("notify backend of stop failed", "err", err)
	}
	return nil
}

func (a *app) setConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

func (a *app) Recording() bool      { return a.recorder.Recording() }
func (a *app) StartedAt() time.Time { return a.recorder.StartedAt() }

func (a *app) logChunk(c transcript.Chunk) {
	a.csvMu.Lock()
	csv := a.csv
	a.csvMu.Unlock()
	if csv != nil {
		csv.Write(c)
	}
	if err := a.db.AppendChunk(a.sessionID, c); err != nil {
		slog.Error("persist chunk failed", "err", err)
	}
}

func run(cfgPath string) error {
	hc, err := config.NewHotConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := hc.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	backend := api.NewClient(cfg.Backend.BaseURL)

	remote, err := backend.GetOrCreateSession(ctx)
	if err != nil {
		return fmt.Errorf("reach backend: %w", err)
	}
	sessionID := remote.SessionID
	slog.Info("session ready", "session_id", sessionID, "seed_questions", len(remote.Questions))

	db, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	a := &app{
		cfg:       cfg,
		backend:   backend,
		db:        db,
		sessionID: sessionID,
	}

	var orchOpts []question.Option
	if cfg.Questions.AutoAdvance {
		orchOpts = append(orchOpts, question.WithAutoAdvance(cfg.Questions.AdvanceDebounce.Std()))
	}
	var recorder *session.Recorder
	orchOpts = append(orchOpts, question.WithActivateHook(func(q question.Question) {
		recorder.InjectMarker(fmt.Sprintf("question %d asked: %s", q.Order+1, q.Text))
	}))
	orch := question.New(orchOpts...)

	poller := poll.New(backend, orch, sessionID, cfg.Backend.PollInterval.Std())

	webServer, err := web.NewServer(a, orch, db, sessionID, cfg.Web.Listen, cfg.Transcript.LogDir, cfg.Web.AdminPassword)
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}

	factory, err := recognitionFactory(cfg, backend)
	if err != nil {
		return err
	}
	recorder = session.NewRecorder(
		slog.Default(),
		session.Config{
			SampleRate:      cfg.Audio.SampleRate,
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
			FlushInterval:   cfg.Transcript.FlushInterval.Std(),
		},
		factory,
		poller.Submit,
		webServer.ObserveChunk,
		a.logChunk,
	)
	recorder.OnStreamError(func(err error) {
		slog.Error("recognition stream lost, stopping recording", "err", err)
		a.StopRecording(context.Background())
	})
	a.recorder = recorder

	// Reloaded capture and recognizer settings take effect on the next
	// recording; the backend, store and web server keep their startup
	// configuration until restart.
	hc.OnReload(func(next *config.Config) {
		nextFactory, err := recognitionFactory(next, backend)
		if err != nil {
			slog.Error("reloaded config rejected", "err", err)
			return
		}
		recorder.Reconfigure(session.Config{
			SampleRate:      next.Audio.SampleRate,
			FramesPerBuffer: next.Audio.FramesPerBuffer,
			FlushInterval:   next.Transcript.FlushInterval.Std(),
		}, nextFactory)
		a.setConfig(next)
		slog.Info("capture settings will apply to the next recording")
	})
	hc.Watch()

	// Persist the question rundown so it survives restarts.
	go func() {
		ticker := time.NewTicker(cfg.Backend.PollInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.SaveQuestions(sessionID, orch.Snapshot()); err != nil {
					slog.Error("persist questions failed", "err", err)
				}
			}
		}
	}()

	webServer.Start()

	// The poller runs for the lifetime of the daemon; recording start and
	// stop only gate the audio pipeline.
	poller.Run(ctx)

	slog.Info("poller stopped, finishing up")
	a.StopRecording(context.Background())
	if err := db.SaveQuestions(sessionID, orch.Snapshot()); err != nil {
		slog.Error("persist questions failed", "err", err)
	}
	return nil
}

func recognitionFactory(cfg *config.Config, backend *api.Client) (session.ClientFactory, error) {
	switch cfg.Recognition.Backend {
	case "deepgram":
		return session.DeepgramFactory(stt.DeepgramConfig{
			APIKey:     cfg.Recognition.Deepgram.APIKey,
			BaseURL:    cfg.Recognition.Deepgram.BaseURL,
			Model:      cfg.Recognition.Deepgram.Model,
			Language:   cfg.Recognition.Deepgram.Language,
			SampleRate: cfg.Audio.SampleRate,
		}, backend.FetchRecognitionKey), nil
	case "google":
		return session.GoogleFactory(cfg.Recognition.Google.Language, cfg.Audio.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown recognition backend %q", cfg.Recognition.Backend)
	}
}

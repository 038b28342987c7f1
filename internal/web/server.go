// Package web serves the interviewer's control panel: recording control,
// the question rundown, and the live transcript feed.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/store"
	"github.com/pmflab/interviewd/internal/transcript"
)

// Controller is the recording surface the panel drives.
type Controller interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Recording() bool
	StartedAt() time.Time
}

// maxFeedChunks bounds the in-memory transcript feed; older chunks are
// still in the store and the CSV log.
const maxFeedChunks = 200

type chunkView struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

// Server serves the control panel with optional authentication.
type Server struct {
	ctrl      Controller
	orch      *question.Orchestrator
	db        *store.Store
	sessionID string
	addr      string
	logDir    string

	passwordHash []byte // nil disables login
	sessions     sync.Map // token → expiry time

	mu   sync.Mutex
	feed []chunkView
}

func NewServer(ctrl Controller, orch *question.Orchestrator, db *store.Store, sessionID, addr, logDir, adminPassword string) (*Server, error) {
	s := &Server{
		ctrl:      ctrl,
		orch:      orch,
		db:        db,
		sessionID: sessionID,
		addr:      addr,
		logDir:    logDir,
	}
	if adminPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		s.passwordHash = hash
	}
	return s, nil
}

// ObserveChunk is a transcript sink feeding the live view.
func (s *Server) ObserveChunk(c transcript.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = append(s.feed, chunkView{
		Timestamp: c.Timestamp(),
		Kind:      string(c.Kind),
		Text:      c.Text,
	})
	if len(s.feed) > maxFeedChunks {
		s.feed = s.feed[len(s.feed)-maxFeedChunks:]
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.passwordHash != nil {
		mux.HandleFunc("/login", s.handleLoginPage)
		mux.HandleFunc("/api/login", s.handleLogin)
		mux.HandleFunc("/api/logout", s.handleLogout)
		mux.HandleFunc("/", s.requireAuth(s.handleIndex))
		mux.HandleFunc("/api/state", s.requireAuth(s.handleState))
		mux.HandleFunc("/api/recording/start", s.requireAuth(s.handleStart))
		mux.HandleFunc("/api/recording/stop", s.requireAuth(s.handleStop))
		mux.HandleFunc("/api/question/status", s.requireAuth(s.handleQuestionStatus))
		mux.HandleFunc("/api/sessions", s.requireAuth(s.handleSessions))
		mux.HandleFunc("/api/sessions/transcript", s.requireAuth(s.handleSessionTranscript))
		mux.HandleFunc("/api/transcripts", s.requireAuth(s.handleTranscriptFiles))
		slog.Info("web auth enabled")
	} else {
		mux.HandleFunc("/", s.handleIndex)
		mux.HandleFunc("/api/state", s.handleState)
		mux.HandleFunc("/api/recording/start", s.handleStart)
		mux.HandleFunc("/api/recording/stop", s.handleStop)
		mux.HandleFunc("/api/question/status", s.handleQuestionStatus)
		mux.HandleFunc("/api/sessions", s.handleSessions)
		mux.HandleFunc("/api/sessions/transcript", s.handleSessionTranscript)
		mux.HandleFunc("/api/transcripts", s.handleTranscriptFiles)
		slog.Info("web auth disabled (no admin password configured)")
	}
	return mux
}

func (s *Server) Start() {
	slog.Info("web control panel started", "addr", s.addr)
	go func() {
		if err := http.ListenAndServe(s.addr, s.Handler()); err != nil {
			slog.Error("web server error", "err", err)
		}
	}()
}

func (s *Server) generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Server) isValidSession(r *http.Request) bool {
	cookie, err := r.Cookie("interviewd_token")
	if err != nil {
		return false
	}
	expiry, ok := s.sessions.Load(cookie.Value)
	if !ok {
		return false
	}
	if time.Now().After(expiry.(time.Time)) {
		s.sessions.Delete(cookie.Value)
		return false
	}
	return true
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.isValidSession(r) {
			next(w, r)
			return
		}
		// API calls get 401, page requests redirect to login
		if len(r.URL.Path) > 4 && r.URL.Path[:4] == "/api" {
			http.Error(w, `{"error":"unauthorized"}`, 401)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "method not allowed", 405)
		return
	}
	r.ParseForm()
	pass := r.FormValue("password")

	if bcrypt.CompareHashAndPassword(s.passwordHash, []byte(pass)) != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(401)
		json.NewEncoder(w).Encode(map[string]string{"error": "wrong password"})
		return
	}

	token := s.generateToken()
	s.sessions.Store(token, time.Now().Add(24*time.Hour))

	http.SetCookie(w, &http.Cookie{
		Name:     "interviewd_token",
		Value:    token,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	slog.Info("operator logged in", "ip", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("interviewd_token")
	if err == nil {
		s.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   "interviewd_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	feed := make([]chunkView, len(s.feed))
	copy(feed, s.feed)
	s.mu.Unlock()

	resp := map[string]any{
		"session_id": s.sessionID,
		"recording":  s.ctrl.Recording(),
		"questions":  s.orch.Snapshot(),
		"transcript": feed,
	}
	if started := s.ctrl.StartedAt(); !started.IsZero() {
		resp["started_at"] = started.Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "method not allowed", 405)
		return
	}
	if err := s.ctrl.StartRecording(r.Context()); err != nil {
		slog.Error("start recording failed", "err", err)
		writeError(w, 500, err)
		return
	}
	s.mu.Lock()
	s.feed = nil
	s.mu.Unlock()
	slog.Info("recording started via web")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"recording": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "method not allowed", 405)
		return
	}
	if err := s.ctrl.StopRecording(r.Context()); err != nil {
		slog.Error("stop recording failed", "err", err)
		writeError(w, 500, err)
		return
	}
	slog.Info("recording stopped via web")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"recording": false})
}

func (s *Server) handleQuestionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "method not allowed", 405)
		return
	}
	id := r.URL.Query().Get("id")
	status := r.URL.Query().Get("status")
	if id == "" {
		http.Error(w, "missing id", 400)
		return
	}

	var err error
	switch question.Status(status) {
	case question.StatusActive:
		err = s.orch.SetActive(id)
	case question.StatusDone:
		err = s.orch.MarkDone(id)
	case question.StatusSkipped:
		err = s.orch.MarkSkipped(id)
	default:
		http.Error(w, "invalid status", 400)
		return
	}
	if err != nil {
		code := 409
		if errors.Is(err, question.ErrNotFound) {
			code = 404
		}
		writeError(w, code, err)
		return
	}
	slog.Info("question status changed via web", "id", id, "status", status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.orch.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.db.Sessions()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) handleSessionTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", 400)
		return
	}
	chunks, err := s.db.Chunks(id)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	views := make([]chunkView, 0, len(chunks))
	for _, c := range chunks {
		views = append(views, chunkView{Timestamp: c.Timestamp(), Kind: string(c.Kind), Text: c.Text})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// handleTranscriptFiles lists the CSV transcript logs on disk.
func (s *Server) handleTranscriptFiles(w http.ResponseWriter, r *http.Request) {
	files, err := transcript.ListFiles(s.logDir)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if files == nil {
		files = []transcript.FileInfo{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.isValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, loginHTML)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

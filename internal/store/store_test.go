package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/transcript"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "interviewd.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if err := s.OpenSession("sess-1", started); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	sessions, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].EndedAt != nil {
		t.Error("open session already has an end time")
	}
	if !sessions[0].StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", sessions[0].StartedAt, started)
	}

	ended := started.Add(45 * time.Minute)
	if err := s.CloseSession("sess-1", ended); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	sessions, _ = s.Sessions()
	if sessions[0].EndedAt == nil || !sessions[0].EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", sessions[0].EndedAt, ended)
	}

	// Resuming clears the end marker without duplicating the row.
	if err := s.OpenSession("sess-1", started); err != nil {
		t.Fatalf("re-open: %v", err)
	}
	sessions, _ = s.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions after re-open, want 1", len(sessions))
	}
	if sessions[0].EndedAt != nil {
		t.Error("re-opened session kept its end time")
	}
}

func TestChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.OpenSession("sess-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	chunks := []transcript.Chunk{
		{ID: uuid.NewString(), Kind: transcript.KindMarker, Elapsed: 2 * time.Second, Text: "question 1 asked"},
		{ID: uuid.NewString(), Kind: transcript.KindSpeech, Elapsed: 17 * time.Second, Text: "we usually hack something together"},
	}
	// Insert out of order; reads must come back sorted by elapsed time.
	for i := len(chunks) - 1; i >= 0; i-- {
		if err := s.AppendChunk("sess-1", chunks[i]); err != nil {
			t.Fatalf("AppendChunk: %v", err)
		}
	}

	got, err := s.Chunks("sess-1")
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	for i := range chunks {
		if got[i].ID != chunks[i].ID || got[i].Text != chunks[i].Text ||
			got[i].Kind != chunks[i].Kind || got[i].Elapsed != chunks[i].Elapsed {
			t.Errorf("chunk %d = %+v, want %+v", i, got[i], chunks[i])
		}
	}

	if other, _ := s.Chunks("sess-2"); len(other) != 0 {
		t.Errorf("unrelated session returned %d chunks", len(other))
	}
}

func TestQuestionSnapshotReplaced(t *testing.T) {
	s := newTestStore(t)
	if err := s.OpenSession("sess-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	created := time.Date(2026, 3, 14, 9, 58, 0, 0, time.UTC)
	first := []question.Question{
		{ID: "q1", Text: "What problem were you trying to solve?", Order: 0, Status: question.StatusActive, CreatedAt: created},
		{ID: "q2", Text: "What did you try first?", Order: 1, Status: question.StatusPending},
	}
	if err := s.SaveQuestions("sess-1", first); err != nil {
		t.Fatalf("SaveQuestions: %v", err)
	}

	second := []question.Question{
		{ID: "q1", Text: "What problem were you trying to solve?", Order: 0, Status: question.StatusDone, CreatedAt: created},
		{ID: "q3", Text: "How often does this come up?", Order: 2, Status: question.StatusActive},
	}
	if err := s.SaveQuestions("sess-1", second); err != nil {
		t.Fatalf("SaveQuestions replace: %v", err)
	}

	got, err := s.Questions("sess-1")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2 (snapshot replaced, not appended)", len(got))
	}
	if got[0].ID != "q1" || got[0].Status != question.StatusDone {
		t.Errorf("q1 = %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Errorf("q1 created_at = %v, want %v", got[0].CreatedAt, created)
	}
	if got[1].ID != "q3" || !got[1].CreatedAt.IsZero() {
		t.Errorf("q3 = %+v", got[1])
	}
}

func TestSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.OpenSession("old", base)
	s.OpenSession("new", base.Add(time.Hour))
	s.AppendChunk("new", transcript.Chunk{ID: uuid.NewString(), Kind: transcript.KindSpeech, Text: "hi"})

	sessions, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "new" || sessions[1].ID != "old" {
		t.Fatalf("order = %v", sessions)
	}
	if sessions[0].Chunks != 1 || sessions[1].Chunks != 0 {
		t.Errorf("chunk counts = %d, %d", sessions[0].Chunks, sessions[1].Chunks)
	}
}

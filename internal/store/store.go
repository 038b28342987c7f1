// Package store persists interview sessions, transcript chunks, and
// question snapshots in a local SQLite database so past interviews
// survive restarts and can be reviewed from the control panel.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/transcript"
)

// SessionInfo is one recorded interview as listed for review.
type SessionInfo struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Chunks    int        `json:"chunks"`
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time; limit pool to 1 connection
	// to avoid SQLITE_BUSY when the poller and web handlers write together.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, elapsed_ms);
		CREATE TABLE IF NOT EXISTS questions (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			text TEXT NOT NULL,
			ord INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME,
			PRIMARY KEY (session_id, id),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// OpenSession records the start of an interview. Re-opening an existing
// session clears its end marker so a resumed interview keeps one row.
func (s *Store) OpenSession(id string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at, ended_at) VALUES (?, ?, NULL)
		 ON CONFLICT(id) DO UPDATE SET ended_at = NULL`,
		id, startedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// CloseSession marks the interview as finished.
func (s *Store) CloseSession(id string, endedAt time.Time) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET ended_at = ? WHERE id = ?",
		endedAt.UTC().Format(time.RFC3339), id,
	)
	return err
}

// AppendChunk persists one transcript chunk.
func (s *Store) AppendChunk(sessionID string, c transcript.Chunk) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO chunks (id, session_id, kind, elapsed_ms, text) VALUES (?, ?, ?, ?, ?)",
		c.ID, sessionID, string(c.Kind), c.Elapsed.Milliseconds(), c.Text,
	)
	return err
}

// Chunks returns the transcript of a session in elapsed order.
func (s *Store) Chunks(sessionID string) ([]transcript.Chunk, error) {
	rows, err := s.db.Query(
		"SELECT id, kind, elapsed_ms, text FROM chunks WHERE session_id = ? ORDER BY elapsed_ms",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []transcript.Chunk
	for rows.Next() {
		var c transcript.Chunk
		var kind string
		var elapsedMS int64
		if err := rows.Scan(&c.ID, &kind, &elapsedMS, &c.Text); err != nil {
			return nil, err
		}
		c.Kind = transcript.Kind(kind)
		c.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveQuestions replaces the stored question snapshot for a session. The
// local view already merges remote state, so the latest snapshot is the
// only one worth keeping.
func (s *Store) SaveQuestions(sessionID string, qs []question.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM questions WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	for _, q := range qs {
		var created any
		if !q.CreatedAt.IsZero() {
			created = q.CreatedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.Exec(
			"INSERT INTO questions (id, session_id, text, ord, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			q.ID, sessionID, q.Text, q.Order, string(q.Status), created,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Questions returns the stored snapshot in interview order.
func (s *Store) Questions(sessionID string) ([]question.Question, error) {
	rows, err := s.db.Query(
		"SELECT id, text, ord, status, created_at FROM questions WHERE session_id = ? ORDER BY ord",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []question.Question
	for rows.Next() {
		var q question.Question
		var status string
		var created sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &q.Order, &status, &created); err != nil {
			return nil, err
		}
		q.Status = question.Status(status)
		if created.Valid {
			q.CreatedAt, _ = time.Parse(time.RFC3339, created.String)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Sessions lists recorded interviews, newest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.started_at, s.ended_at, COUNT(c.id)
		FROM sessions s LEFT JOIN chunks c ON c.session_id = s.id
		GROUP BY s.id ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var started string
		var ended sql.NullString
		if err := rows.Scan(&info.ID, &started, &ended, &info.Chunks); err != nil {
			return nil, err
		}
		info.StartedAt, _ = time.Parse(time.RFC3339, started)
		if ended.Valid {
			t, err := time.Parse(time.RFC3339, ended.String)
			if err == nil {
				info.EndedAt = &t
			}
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

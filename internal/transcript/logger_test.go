package transcript

import (
	"encoding/csv"
	"os"
	"testing"
	"time"
)

func TestLoggerWritesRows(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir, "sess-1")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	l.Write(Chunk{Text: "hello there", Elapsed: 5 * time.Second, Kind: KindSpeech})
	l.Write(Chunk{Text: "question 1 asked", Elapsed: 7 * time.Second, Kind: KindMarker})

	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + 2)", len(rows))
	}
	if rows[1][0] != "00:05" || rows[1][1] != "speech" || rows[1][2] != "hello there" {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][1] != "marker" {
		t.Errorf("row 2 kind = %q, want marker", rows[2][1])
	}
}

func TestLoggerCloseTwice(t *testing.T) {
	l, err := NewLogger(t.TempDir(), "sess-2")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Late writes after close are dropped, not a crash.
	l.Write(Chunk{Text: "late", Kind: KindSpeech})
}

func TestSanitizeSessionID(t *testing.T) {
	l, err := NewLogger(t.TempDir(), `a/b:c?`)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()
	if p := l.Path(); p == "" {
		t.Fatal("empty path")
	}
}

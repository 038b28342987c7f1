package transcript

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes emitted chunks to a CSV file, one file per interview
// session (recording start → recording stop).
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewLogger creates a transcript log for a session.
// Files are saved as: <dir>/<session_id>_<date>_<time>.csv
func NewLogger(dir, sessionID string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", sanitize(sessionID), stamp))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript file: %w", err)
	}

	w := csv.NewWriter(f)
	w.Write([]string{"time", "kind", "text"})
	w.Flush()

	return &Logger{file: f, writer: w}, nil
}

// Write appends one chunk row.
func (l *Logger) Write(c Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}
	l.writer.Write([]string{c.Timestamp(), string(c.Kind), c.Text})
	l.writer.Flush()
}

// Close flushes and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.writer = nil
		return err
	}
	return nil
}

// Path returns the file path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// sanitize makes a filename-safe string.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			out = append(out, '_')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

// ListFiles returns all transcript CSV files in dir, newest first.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	return files, nil
}

// FileInfo describes a transcript file.
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}

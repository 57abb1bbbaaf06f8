package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// logSink is the optional per-message performance log, one line per dispatched
// message, named the way the original server named its log files.
type logSink struct {
	mu    sync.Mutex
	file  *os.File
	runID uuid.UUID
}

// newLogSink creates <root>/logs/server-log-DDMMYY_HHMMSS.txt and returns a
// sink writing to it. Each sink is stamped with a fresh run id so records
// from two server runs sharing a log directory are never ambiguous.
func newLogSink(root string) (*logSink, error) {
	dir := filepath.Join(root, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: %w", err)
	}
	name := time.Now().Local().Format("server-log-020106_150405.txt")
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("logsink: %w", err)
	}
	runID := uuid.New()
	fmt.Fprintf(f, "# run %s started %s\n", runID, time.Now().Format(time.RFC3339))
	return &logSink{file: f, runID: runID}, nil
}

// RunID identifies this server run across its log file and any correlated
// external monitoring.
func (s *logSink) RunID() uuid.UUID { return s.runID }

// WriteLine appends one record followed by a newline.
func (s *logSink) WriteLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.file, line)
}

// Close closes the underlying file.
func (s *logSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Audit log files under the configured log dir. Lines are
// "TIMESTAMP field | field | field" and double as durable state: the pending
// processor bootstraps sidecars from errors.log and success.log.
const (
	LogErrors  = "errors.log"
	LogSkipped = "skipped.log"
	LogSuccess = "success.log"
	LogRetries = "retries.log"
)

// AuditLog appends run records to per-kind log files. Safe for concurrent
// use by scheduler workers.
type AuditLog struct {
	Dir string

	mu  sync.Mutex
	now func() time.Time
}

func NewAuditLog(dir string) *AuditLog {
	return &AuditLog{Dir: dir, now: time.Now}
}

// Append writes one line to the named log file. Fields are joined with
// " | " after the timestamp. Failures are returned but callers generally
// treat audit logging as best-effort.
func (a *AuditLog) Append(filename string, fields ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(a.Dir, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	timestamp := a.now().Format("2006-01-02T15:04:05")
	line := timestamp + " " + strings.Join(fields, " | ") + "\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append to %s: %w", filename, err)
	}
	return nil
}

// ParseLine splits an audit log line back into its fields, dropping the
// leading timestamp. Used by the historic-log bootstrap.
func ParseLine(line string) []string {
	_, rest, found := strings.Cut(line, " ")
	if !found {
		rest = line
	}
	parts := strings.Split(rest, " | ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

package tools

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const (
	EnvLogToolErrors = "LOG_TOOL_ERRORS"

	// DefaultLogRetentionDays is the number of days tool error entries are kept
	DefaultLogRetentionDays = 60

	errorLogName = "tool-errors.log"
)

// ToolErrorLogEntry is one JSON line of the tool error log.
type ToolErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Function  string         `json:"function,omitempty"`
	Workbook  string         `json:"workbook,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to a JSON lines file. Writers in
// different server processes are serialised through a lock file next to the
// log.
type ToolErrorLogger struct {
	enabled  bool
	filePath string
	lock     *flock.Flock
	logger   *logrus.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewToolErrorLogger creates a logger writing to dir/tool-errors.log. When
// enabled is false every method is a no-op.
func NewToolErrorLogger(dir string, enabled bool, logger *logrus.Logger) (*ToolErrorLogger, error) {
	l := &ToolErrorLogger{enabled: enabled, logger: logger, now: time.Now}
	if !enabled {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	l.filePath = filepath.Join(dir, errorLogName)
	l.lock = flock.New(l.filePath + ".lock")
	return l, nil
}

// ToolErrorLoggerFromEnv enables the logger when LOG_TOOL_ERRORS=true.
func ToolErrorLoggerFromEnv(dir string, logger *logrus.Logger) (*ToolErrorLogger, error) {
	return NewToolErrorLogger(dir, os.Getenv(EnvLogToolErrors) == "true", logger)
}

func (l *ToolErrorLogger) IsEnabled() bool { return l.enabled }

func (l *ToolErrorLogger) FilePath() string { return l.filePath }

// LogToolError appends one entry. Failures to write are logged, never
// returned, so they cannot mask the tool error itself.
func (l *ToolErrorLogger) LogToolError(entry ToolErrorLogEntry, err error) {
	if !l.enabled || err == nil {
		return
	}
	entry.Timestamp = l.now().Format(time.RFC3339)
	entry.Error = err.Error()

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.WithError(marshalErr).Error("Failed to marshal tool error log entry")
		return
	}

	if writeErr := l.withLock(func() error { return appendLine(l.filePath, data) }); writeErr != nil {
		l.logger.WithError(writeErr).Error("Failed to write tool error log entry")
	}
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (l *ToolErrorLogger) withLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock tool error log: %w", err)
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			l.logger.WithError(err).Warn("Failed to unlock tool error log")
		}
	}()
	return fn()
}

// RotateOldLogs drops entries older than the retention period. Malformed
// lines and lines without a parseable timestamp are kept.
func (l *ToolErrorLogger) RotateOldLogs() error {
	if !l.enabled {
		return nil
	}
	return l.withLock(l.rotateLocked)
}

func (l *ToolErrorLogger) rotateLocked() error {
	file, err := os.Open(l.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log file for rotation: %w", err)
	}

	var kept []string
	removed := 0
	cutoff := l.now().AddDate(0, 0, -DefaultLogRetentionDays)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry ToolErrorLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			kept = append(kept, line)
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || ts.After(cutoff) {
			kept = append(kept, line)
			continue
		}
		removed++
	}
	scanErr := scanner.Err()
	_ = file.Close()
	if scanErr != nil {
		return fmt.Errorf("error reading log file during rotation: %w", scanErr)
	}
	if removed == 0 {
		return nil
	}

	content := ""
	if len(kept) > 0 {
		content = strings.Join(kept, "\n") + "\n"
	}
	tmpPath := l.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write temporary rotated log file: %w", err)
	}
	if err := os.Rename(tmpPath, l.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary log file during rotation: %w", err)
	}

	l.logger.WithField("removed", removed).Debug("Rotated tool error log")
	return nil
}

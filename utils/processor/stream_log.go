package processor

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// StreamLogger writes run progress to a file as it happens, for `tail -f`
// on long runs. The zero value is a disabled logger.
type StreamLogger struct {
	file    *os.File
	mu      sync.Mutex
	enabled bool
}

// NewStreamLogger creates a new stream logger that writes to the specified file
func NewStreamLogger(path string) (*StreamLogger, error) {
	if path == "" {
		return &StreamLogger{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream log file: %w", err)
	}

	return &StreamLogger{
		file:    file,
		enabled: true,
	}, nil
}

// Close closes the stream log file
func (s *StreamLogger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		s.enabled = false
		return err
	}
	return nil
}

// IsEnabled returns whether stream logging is enabled
func (s *StreamLogger) IsEnabled() bool {
	return s.enabled
}

// Log writes a message to the stream log with timestamp
func (s *StreamLogger) Log(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.file == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(s.file, "[%s] %s\n", timestamp, message)
	s.file.Sync() // flush for tail -f
}

// LogSection writes a section header to the stream log
func (s *StreamLogger) LogSection(title string) {
	if !s.enabled {
		return
	}
	s.Log("═══════════════════════════════════════════════════════════════")
	s.Log("  %s", title)
	s.Log("═══════════════════════════════════════════════════════════════")
}

// LogRunStart writes the run header.
func (s *StreamLogger) LogRunStart(runID string, nodes, units int) {
	if !s.enabled {
		return
	}
	s.LogSection(fmt.Sprintf("RUN %s: %d nodes over %d units", runID, nodes, units))
}

// LogUnitStart marks the start of a unit.
func (s *StreamLogger) LogUnitStart(current, total int) {
	if !s.enabled {
		return
	}
	s.Log("")
	s.Log("───────────────────────────────────────────────────────────────")
	s.Log("  UNIT %d/%d", current, total)
	s.Log("───────────────────────────────────────────────────────────────")
}

// LogEntry mirrors one run log entry.
func (s *StreamLogger) LogEntry(e LogEntry) {
	if !s.enabled {
		return
	}
	s.Log("%s", e.String())
}

// LogUnitResult writes a unit's status and response.
func (s *StreamLogger) LogUnitResult(ur UnitResult) {
	if !s.enabled {
		return
	}
	s.Log("STATUS: %s", ur.Status)
	if ur.Error != "" {
		s.Log("✖ ERROR: %s", ur.Error)
	}
	if ur.Response != "" {
		s.LogOutput(ur.Response, 20)
	}
}

// LogOutput writes text, truncated to maxLines.
func (s *StreamLogger) LogOutput(output string, maxLines int) {
	if !s.enabled {
		return
	}

	lines := splitLines(output)
	if len(lines) > maxLines {
		s.Log("OUTPUT (%d lines, showing first %d):", len(lines), maxLines)
		for i := 0; i < maxLines; i++ {
			s.Log("  %s", lines[i])
		}
		s.Log("  ... (%d more lines)", len(lines)-maxLines)
	} else {
		s.Log("OUTPUT:")
		for _, line := range lines {
			s.Log("  %s", line)
		}
	}
}

// LogRunEnd writes the run summary.
func (s *StreamLogger) LogRunEnd(res *RunResult) {
	if !s.enabled {
		return
	}
	counts := res.Counts()
	s.Log("")
	s.Log("★ DONE: %d completed, %d skipped, %d failed, %d cancelled",
		counts[StatusCompleted], counts[StatusSkipped], counts[StatusFailed], counts[StatusCancelled])
}

// splitLines splits a string into lines
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/kris-hansen/workbench/utils/models"
)

// ErrRunActive is returned when Run is called while another run on the same
// Processor is still in progress.
var ErrRunActive = errors.New("a run is already active on this processor")

// Vars is the per-unit execution context. Node outputs accumulate here.
type Vars = map[string]interface{}

// UnitStatus is the final state of one process unit.
type UnitStatus string

const (
	StatusCompleted UnitStatus = "completed"
	StatusSkipped   UnitStatus = "skipped"
	StatusFailed    UnitStatus = "failed"
	StatusCancelled UnitStatus = "cancelled"
)

// LogLevel grades a log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// RunLevel is the Unit value of log entries that belong to the run rather
// than to a single unit.
const RunLevel = -1

// LogEntry is one line of the run's log trail.
type LogEntry struct {
	Unit    int       `json:"unit"`
	Level   LogLevel  `json:"level"`
	NodeID  string    `json:"node_id,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// String renders the entry with a 1-based unit tag.
func (e LogEntry) String() string {
	prefix := "[run]"
	if e.Unit != RunLevel {
		prefix = fmt.Sprintf("[unit %d]", e.Unit+1)
	}
	if e.Level != LevelInfo {
		prefix += " " + string(e.Level)
	}
	if e.NodeID != "" {
		prefix += " " + e.NodeID + ":"
	}
	return prefix + " " + e.Message
}

// Snapshot is the context of a completed unit.
type Snapshot struct {
	Index   int  `json:"index"`
	Context Vars `json:"context"`
}

// UnitResult records what happened to one input unit.
type UnitResult struct {
	Index    int        `json:"index"`
	Input    string     `json:"input"`
	Status   UnitStatus `json:"status"`
	Response string     `json:"response,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// RunResult is the outcome of a run. Partial results are kept after
// cancellation or per-unit failures.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Logs      []LogEntry    `json:"logs"`
	PerUnit   []Snapshot    `json:"per_unit"`
	Units     []UnitResult  `json:"units"`
	Usage     models.Usage  `json:"usage"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
	// Error is set only when the workflow script had no node list.
	Error error `json:"-"`
}

// Counts tallies unit statuses.
func (r *RunResult) Counts() map[UnitStatus]int {
	counts := make(map[UnitStatus]int, 4)
	for _, u := range r.Units {
		counts[u.Status]++
	}
	return counts
}

// Messages returns the log messages of one unit in order.
func (r *RunResult) Messages(unit int) []string {
	var out []string
	for _, e := range r.Logs {
		if e.Unit == unit {
			out = append(out, e.Message)
		}
	}
	return out
}

package processor

// ProgressType identifies a progress update.
type ProgressType string

const (
	ProgressRunStart  ProgressType = "run_start"
	ProgressUnitStart ProgressType = "unit_start"
	ProgressStep      ProgressType = "step"
	ProgressDelta     ProgressType = "delta"
	ProgressLog       ProgressType = "log"
	ProgressUnitDone  ProgressType = "unit_done"
	ProgressRunDone   ProgressType = "run_done"
)

// ProgressUpdate is one event emitted while a run advances.
type ProgressUpdate struct {
	Type    ProgressType `json:"type"`
	RunID   string       `json:"run_id,omitempty"`
	Unit    int          `json:"unit"`
	Total   int          `json:"total,omitempty"`
	NodeID  string       `json:"node_id,omitempty"`
	Message string       `json:"message,omitempty"`
	Delta   string       `json:"delta,omitempty"`
	Log     *LogEntry    `json:"log,omitempty"`
	Result  *UnitResult  `json:"result,omitempty"`
}

// ProgressWriter receives progress updates. Updates arrive from the run's
// goroutine in order.
type ProgressWriter interface {
	WriteProgress(update ProgressUpdate) error
}

// ProgressFunc adapts a function to ProgressWriter.
type ProgressFunc func(update ProgressUpdate) error

func (f ProgressFunc) WriteProgress(update ProgressUpdate) error {
	return f(update)
}

// MultiProgress fans updates out to several writers. The first error is
// returned after every writer has been called.
type MultiProgress []ProgressWriter

func (m MultiProgress) WriteProgress(update ProgressUpdate) error {
	var first error
	for _, w := range m {
		if w == nil {
			continue
		}
		if err := w.WriteProgress(update); err != nil && first == nil {
			first = err
		}
	}
	return first
}

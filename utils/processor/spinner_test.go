package processor

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestSpinnerFollowsProgress(t *testing.T) {
	var buf bytes.Buffer
	s := &Spinner{out: &buf, chars: []string{"-"}}

	_ = s.WriteProgress(ProgressUpdate{Type: ProgressRunStart, Total: 2})
	_ = s.WriteProgress(ProgressUpdate{Type: ProgressUnitStart, Unit: 1, Total: 2})
	_ = s.WriteProgress(ProgressUpdate{Type: ProgressStep, NodeID: "ask"})
	_ = s.WriteProgress(ProgressUpdate{Type: ProgressStep, NodeID: "show"})
	s.mu.Lock()
	msg := s.message
	s.mu.Unlock()
	if msg != "Unit 2/2 [show]" {
		t.Errorf("message = %q", msg)
	}

	_ = s.WriteProgress(ProgressUpdate{Type: ProgressRunDone, Total: 2})
	if !strings.Contains(buf.String(), "Processed 2 units... Done!") {
		t.Errorf("final line missing, got %q", buf.String())
	}

	// stopping twice is harmless
	s.Stop()
}

func TestSpinnerSilentWithoutTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := NewSpinner(f)
	s.Start("working")
	s.Stop()

	info, _ := f.Stat()
	if info.Size() != 0 {
		t.Errorf("spinner wrote %d bytes to a non-terminal", info.Size())
	}
}

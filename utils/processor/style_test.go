package processor

import (
	"strings"
	"testing"
	"time"
)

func TestStyler(t *testing.T) {
	styler := NewStyler(&StyleConfig{UseColors: true, UseUnicode: true})

	t.Run("text is preserved", func(t *testing.T) {
		for _, got := range []string{styler.Success("test"), styler.Error("test"), styler.Warning("test"), styler.Bold("test")} {
			if !strings.Contains(got, "test") {
				t.Errorf("styled text lost its content: %q", got)
			}
		}
	})

	t.Run("status icons", func(t *testing.T) {
		if got := styler.Status(StatusCompleted); !strings.Contains(got, "✓") || !strings.Contains(got, "completed") {
			t.Errorf("Status(completed) = %q", got)
		}
		if got := styler.Status(StatusFailed); !strings.Contains(got, "✗") {
			t.Errorf("Status(failed) = %q", got)
		}
	})

	t.Run("box", func(t *testing.T) {
		if got := styler.Box("Title"); !strings.Contains(got, "Title") || !strings.Contains(got, "╭") {
			t.Errorf("Box = %q", got)
		}
	})
}

func TestStylerASCII(t *testing.T) {
	styler := NewStyler(&StyleConfig{UseColors: false, UseUnicode: false})
	if got := styler.Status(StatusCancelled); got != "[STOP] cancelled" {
		t.Errorf("Status(cancelled) = %q", got)
	}
	if got := styler.Success("plain"); got != "plain" {
		t.Errorf("Success without colors = %q", got)
	}
}

func TestSummary(t *testing.T) {
	styler := NewStyler(&StyleConfig{UseColors: false, UseUnicode: false})
	res := &RunResult{
		RunID: "abc",
		Units: []UnitResult{
			{Index: 0, Status: StatusCompleted},
			{Index: 1, Status: StatusFailed, Error: "func f failed: boom"},
			{Index: 2, Status: StatusCancelled},
		},
		Duration: 1500 * time.Millisecond,
	}
	res.Usage.TotalTokens = 42

	out := styler.Summary(res)
	for _, want := range []string{"Run abc", "Unit 2", "func f failed: boom", "1 completed, 0 skipped, 1 failed, 1 cancelled", "42 tokens", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestLogLine(t *testing.T) {
	styler := NewStyler(&StyleConfig{})
	e := LogEntry{Unit: 2, Level: LevelWarn, NodeID: "n", Message: "careful"}
	if got := styler.LogLine(e); got != "[unit 3] warn n: careful" {
		t.Errorf("LogLine = %q", got)
	}
	if got := (LogEntry{Unit: RunLevel, Level: LevelInfo, Message: "hi"}).String(); got != "[run] hi" {
		t.Errorf("run-level String = %q", got)
	}
}

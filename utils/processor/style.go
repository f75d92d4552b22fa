package processor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StyleConfig controls terminal styling.
type StyleConfig struct {
	UseColors  bool
	UseUnicode bool
}

// DefaultStyleConfig returns the default configuration.
func DefaultStyleConfig() *StyleConfig {
	return &StyleConfig{UseColors: true, UseUnicode: true}
}

// Styler renders run output for the terminal. lipgloss drops colors on its
// own when the output is not a terminal.
type Styler struct {
	config  *StyleConfig
	bold    lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	errorS  lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	box     lipgloss.Style
}

// NewStyler creates a styler.
func NewStyler(config *StyleConfig) *Styler {
	if config == nil {
		config = DefaultStyleConfig()
	}
	plain := lipgloss.NewStyle()
	s := &Styler{
		config:  config,
		bold:    plain.Bold(true),
		dim:     plain,
		success: plain,
		errorS:  plain,
		warning: plain,
		info:    plain,
		box:     plain.Border(lipgloss.NormalBorder()).Padding(0, 1),
	}
	if config.UseUnicode {
		s.box = plain.Border(lipgloss.RoundedBorder()).Padding(0, 1)
	}
	if config.UseColors {
		s.dim = plain.Faint(true)
		s.success = plain.Foreground(lipgloss.Color("2"))
		s.errorS = plain.Foreground(lipgloss.Color("1")).Bold(true)
		s.warning = plain.Foreground(lipgloss.Color("3"))
		s.info = plain.Foreground(lipgloss.Color("6"))
		s.box = s.box.BorderForeground(lipgloss.Color("6"))
	}
	return s
}

func (s *Styler) Bold(text string) string    { return s.bold.Render(text) }
func (s *Styler) Dim(text string) string     { return s.dim.Render(text) }
func (s *Styler) Success(text string) string { return s.success.Render(text) }
func (s *Styler) Error(text string) string   { return s.errorS.Render(text) }
func (s *Styler) Warning(text string) string { return s.warning.Render(text) }
func (s *Styler) Info(text string) string    { return s.info.Render(text) }

// Box draws a bordered title.
func (s *Styler) Box(title string) string {
	return s.box.Render(title)
}

func (s *Styler) icon(unicode, ascii string) string {
	if s.config.UseUnicode {
		return unicode
	}
	return ascii
}

// Status renders a unit status with an icon.
func (s *Styler) Status(status UnitStatus) string {
	switch status {
	case StatusCompleted:
		return s.Success(s.icon("✓", "[OK]") + " " + string(status))
	case StatusSkipped:
		return s.Dim(s.icon("↷", "[--]") + " " + string(status))
	case StatusFailed:
		return s.Error(s.icon("✗", "[FAIL]") + " " + string(status))
	case StatusCancelled:
		return s.Warning(s.icon("⊘", "[STOP]") + " " + string(status))
	}
	return string(status)
}

// LogLine renders a log entry with its level color.
func (s *Styler) LogLine(e LogEntry) string {
	switch e.Level {
	case LevelError:
		return s.Error(e.String())
	case LevelWarn:
		return s.Warning(e.String())
	}
	return e.String()
}

// Summary renders the per-unit table and totals of a run.
func (s *Styler) Summary(res *RunResult) string {
	var b strings.Builder
	b.WriteString(s.Box("Run " + res.RunID))
	b.WriteString("\n")
	for _, u := range res.Units {
		line := fmt.Sprintf("  Unit %-4d %s", u.Index+1, s.Status(u.Status))
		if u.Error != "" {
			line += "  " + s.Dim(u.Error)
		}
		b.WriteString(line + "\n")
	}
	counts := res.Counts()
	b.WriteString(fmt.Sprintf("\n%s completed, %s skipped, %s failed, %s cancelled",
		s.Bold(fmt.Sprint(counts[StatusCompleted])),
		s.Bold(fmt.Sprint(counts[StatusSkipped])),
		s.Bold(fmt.Sprint(counts[StatusFailed])),
		s.Bold(fmt.Sprint(counts[StatusCancelled]))))
	if res.Usage.TotalTokens > 0 {
		b.WriteString(s.Dim(fmt.Sprintf(" | %d tokens", res.Usage.TotalTokens)))
	}
	if res.Duration > 0 {
		b.WriteString(s.Dim(fmt.Sprintf(" | %s", res.Duration.Round(1e6))))
	}
	b.WriteString("\n")
	return b.String()
}

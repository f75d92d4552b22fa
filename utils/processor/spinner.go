package processor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Spinner animates a status line while a run is in progress. It doubles as a
// ProgressWriter so the line follows the current unit.
type Spinner struct {
	out      io.Writer
	isTTY    bool
	chars    []string
	index    int
	message  string
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	disabled bool
}

// NewSpinner creates a spinner writing to f. It stays silent unless f is a
// terminal.
func NewSpinner(f *os.File) *Spinner {
	return &Spinner{
		out:      f,
		isTTY:    term.IsTerminal(int(f.Fd())),
		chars:    []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		disabled: !term.IsTerminal(int(f.Fd())),
	}
}

// Disable prevents the spinner from showing any output
func (s *Spinner) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = true
}

// SetMessage changes the text next to the animation.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Start begins the animation.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	if s.disabled || s.running {
		s.message = message
		s.mu.Unlock()
		return
	}
	s.message = message
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.isTTY {
			fmt.Fprint(s.out, "\033[?25l")
		}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				s.mu.Lock()
				fmt.Fprintf(s.out, "\r\033[K%s... Done!\n", s.message)
				s.mu.Unlock()
				if s.isTTY {
					fmt.Fprint(s.out, "\033[?25h")
				}
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.out, "\r\033[K%s... %s", s.message, s.chars[s.index])
				s.index = (s.index + 1) % len(s.chars)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and waits for the final line to be written.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stop)
		s.running = false
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// WriteProgress updates the status line from run progress.
func (s *Spinner) WriteProgress(u ProgressUpdate) error {
	switch u.Type {
	case ProgressRunStart:
		s.Start(fmt.Sprintf("Processing %d units", u.Total))
	case ProgressUnitStart:
		s.SetMessage(fmt.Sprintf("Unit %d/%d", u.Unit+1, u.Total))
	case ProgressStep:
		s.mu.Lock()
		if s.message != "" {
			if i := strings.Index(s.message, " ["); i >= 0 {
				s.message = s.message[:i]
			}
			s.message += " [" + u.NodeID + "]"
		}
		s.mu.Unlock()
	case ProgressRunDone:
		s.SetMessage(fmt.Sprintf("Processed %d units", u.Total))
		s.Stop()
	}
	return nil
}

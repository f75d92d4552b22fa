package models

import (
	"context"
	"fmt"
	"strings"
)

// CompletionRequest is one call to a language model.
type CompletionRequest struct {
	Prompt       string
	ChunkText    string
	IncludeChunk bool
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// UserMessage returns the prompt with the chunk appended when requested.
func (r CompletionRequest) UserMessage() string {
	if !r.IncludeChunk || r.ChunkText == "" {
		return r.Prompt
	}
	if r.Prompt == "" {
		return r.ChunkText
	}
	return r.Prompt + "\n\n" + r.ChunkText
}

// Usage holds token counts reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	if o.TotalTokens == 0 {
		o.TotalTokens = o.PromptTokens + o.CompletionTokens
	}
	u.TotalTokens += o.TotalTokens
}

// EventType identifies a streamed completion event.
type EventType string

const (
	EventDelta EventType = "delta"
	EventUsage EventType = "usage"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one item of a completion stream. Deltas arrive in order and
// concatenate to the full response. A stream ends with done or error.
type Event struct {
	Type  EventType
	Delta string
	Usage *Usage
	Err   error
}

// Completer streams completions. Cancelling ctx aborts the call and closes
// the channel.
type Completer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error)
}

// Provider represents a model provider (e.g., Anthropic, OpenAI)
type Provider interface {
	Completer
	Name() string
	SupportsModel(modelName string) bool
	Configure(apiKey string) error
	SetVerbose(verbose bool)
}

// EndpointSetter is implemented by providers whose base URL can be overridden.
type EndpointSetter interface {
	SetEndpoint(endpoint string)
}

// Collect drains events into the full response text. onDelta, when non-nil,
// sees every delta as it arrives. A stream closed without a done event is
// treated as complete unless ctx has ended.
func Collect(ctx context.Context, events <-chan Event, onDelta func(string)) (string, Usage, error) {
	var (
		text  strings.Builder
		usage Usage
	)
	for {
		select {
		case <-ctx.Done():
			return text.String(), usage, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return text.String(), usage, ctx.Err()
			}
			switch ev.Type {
			case EventDelta:
				text.WriteString(ev.Delta)
				if onDelta != nil && ev.Delta != "" {
					onDelta(ev.Delta)
				}
			case EventUsage:
				if ev.Usage != nil {
					usage.Add(*ev.Usage)
				}
			case EventDone:
				if ev.Usage != nil {
					usage.Add(*ev.Usage)
				}
				return text.String(), usage, nil
			case EventError:
				err := ev.Err
				if err == nil {
					err = fmt.Errorf("provider reported an error")
				}
				return text.String(), usage, err
			}
		}
	}
}

// stream is the producer side of a completion channel.
type stream struct {
	ctx context.Context
	ch  chan Event
}

func newStream(ctx context.Context) *stream {
	return &stream{ctx: ctx, ch: make(chan Event, 16)}
}

// send delivers ev unless ctx is cancelled first.
func (s *stream) send(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *stream) delta(text string) bool {
	if text == "" {
		return true
	}
	return s.send(Event{Type: EventDelta, Delta: text})
}

func (s *stream) fail(err error) {
	if s.ctx.Err() != nil {
		err = s.ctx.Err()
	}
	s.send(Event{Type: EventError, Err: err})
}

func (s *stream) done(u *Usage) {
	s.send(Event{Type: EventDone, Usage: u})
}

func (s *stream) close() {
	close(s.ch)
}

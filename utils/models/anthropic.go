package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/kris-hansen/workbench/utils/retry"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	// the messages API requires max_tokens
	anthropicDefaultMaxTokens = 2000
)

// errStreamDone stops the SSE reader after message_stop.
var errStreamDone = errors.New("stream done")

// AnthropicProvider handles Anthropic family of models
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.RetryConfig
	verbose    bool
	mu         sync.Mutex
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{
		baseURL:    anthropicBaseURL,
		httpClient: http.DefaultClient,
		retryCfg:   retry.DefaultRetryConfig,
	}
}

// debugf prints debug information if verbose mode is enabled (thread-safe)
func (a *AnthropicProvider) debugf(format string, args ...interface{}) {
	if a.verbose {
		a.mu.Lock()
		defer a.mu.Unlock()
		log.Printf("[DEBUG][Anthropic] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// SupportsModel checks if the given model name is supported by Anthropic
func (a *AnthropicProvider) SupportsModel(modelName string) bool {
	ok := GetRegistry().ValidateModel("anthropic", modelName)
	a.debugf("Model %s support result: %v", modelName, ok)
	return ok
}

// Configure sets up the provider with necessary credentials
func (a *AnthropicProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for Anthropic provider")
	}
	a.apiKey = apiKey
	a.debugf("API key configured successfully")
	return nil
}

// SetEndpoint overrides the API base URL.
func (a *AnthropicProvider) SetEndpoint(endpoint string) {
	if endpoint != "" {
		a.baseURL = strings.TrimRight(endpoint, "/")
	}
}

// SetVerbose enables or disables verbose mode
func (a *AnthropicProvider) SetVerbose(verbose bool) {
	a.verbose = verbose
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicStreamEvent covers the fields used across the stream event types.
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamCompletion sends a streaming messages request and translates the
// server-sent events into completion events.
func (a *AnthropicProvider) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("Anthropic provider not configured: missing API key")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserMessage()}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}
	a.debugf("Streaming from model %s (request %d bytes)", req.Model, len(body))

	resp, err := retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		return a.post(ctx, body)
	}, retry.Is429Error, a.retryCfg)
	if err != nil {
		return nil, err
	}

	out := newStream(ctx)
	go func() {
		defer out.close()
		defer resp.Body.Close()

		usage := &Usage{}
		err := readSSE(resp.Body, func(ev sseEvent) error {
			var data anthropicStreamEvent
			if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
				return fmt.Errorf("malformed %s event: %w", ev.Event, err)
			}
			switch data.Type {
			case "message_start":
				if data.Message != nil {
					usage.PromptTokens = data.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if data.Delta != nil && data.Delta.Type == "text_delta" {
					if !out.delta(data.Delta.Text) {
						return ctx.Err()
					}
				}
			case "message_delta":
				if data.Usage != nil {
					usage.CompletionTokens = data.Usage.OutputTokens
				}
			case "message_stop":
				return errStreamDone
			case "error":
				msg := "unknown error"
				if data.Error != nil {
					msg = data.Error.Type + ": " + data.Error.Message
				}
				return fmt.Errorf("Anthropic stream error: %s", msg)
			}
			return nil
		})
		switch {
		case errors.Is(err, errStreamDone), err == nil:
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			out.done(usage)
		default:
			out.fail(err)
		}
	}()
	return out.ch, nil
}

func (a *AnthropicProvider) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Anthropic API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

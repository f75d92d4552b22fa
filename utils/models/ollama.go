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
)

const ollamaBaseURL = "http://localhost:11434"

// OllamaProvider handles locally served Ollama models.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	verbose    bool
	mu         sync.Mutex
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

// ollamaChatChunk is one line of the NDJSON response.
type ollamaChatChunk struct {
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	Error           string            `json:"error"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

// NewOllamaProvider creates a new Ollama provider instance
func NewOllamaProvider() *OllamaProvider {
	return &OllamaProvider{baseURL: ollamaBaseURL, httpClient: http.DefaultClient}
}

// Name returns the provider name
func (o *OllamaProvider) Name() string {
	return "ollama"
}

func (o *OllamaProvider) debugf(format string, args ...interface{}) {
	if o.verbose {
		o.mu.Lock()
		defer o.mu.Unlock()
		log.Printf("[DEBUG][Ollama] "+format+"\n", args...)
	}
}

// SupportsModel accepts any name; Ollama is the catch-all for local models.
func (o *OllamaProvider) SupportsModel(modelName string) bool {
	return strings.TrimSpace(modelName) != ""
}

// Configure is a no-op; Ollama needs no credentials.
func (o *OllamaProvider) Configure(apiKey string) error {
	o.debugf("Configuring Ollama provider (no API key needed)")
	return nil
}

// SetEndpoint overrides the server address.
func (o *OllamaProvider) SetEndpoint(endpoint string) {
	if endpoint != "" {
		o.baseURL = strings.TrimRight(endpoint, "/")
	}
}

// SetVerbose enables or disables verbose mode
func (o *OllamaProvider) SetVerbose(verbose bool) {
	o.verbose = verbose
}

// IsLocal reports that Ollama runs without credentials.
func (o *OllamaProvider) IsLocal() bool {
	return true
}

// StreamCompletion calls /api/chat and decodes its newline-delimited JSON.
func (o *OllamaProvider) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	var messages []ollamaChatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.UserMessage()})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	body, err := json.Marshal(ollamaChatRequest{Model: req.Model, Messages: messages, Stream: true, Options: options})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	o.debugf("Streaming from model %s at %s", req.Model, o.baseURL)
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error calling Ollama API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := newStream(ctx)
	go func() {
		defer out.close()
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatChunk
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					out.done(nil)
					return
				}
				out.fail(fmt.Errorf("error decoding Ollama response: %w", err))
				return
			}
			if chunk.Error != "" {
				out.fail(fmt.Errorf("Ollama error: %s", chunk.Error))
				return
			}
			if !out.delta(chunk.Message.Content) {
				return
			}
			if chunk.Done {
				out.done(&Usage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				})
				return
			}
		}
	}()
	return out.ch, nil
}

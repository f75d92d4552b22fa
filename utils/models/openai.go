package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/kris-hansen/workbench/utils/retry"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to OpenAI and to the services that speak the same
// chat completions protocol (Deepseek, X.AI, Moonshot, vLLM).
type OpenAIProvider struct {
	name     string
	label    string
	baseURL  string
	apiKey   string
	local    bool
	retryCfg retry.RetryConfig
	verbose  bool
	mu       sync.Mutex
}

func newOpenAICompatible(name, label, baseURL string) *OpenAIProvider {
	return &OpenAIProvider{
		name:     name,
		label:    label,
		baseURL:  baseURL,
		retryCfg: retry.DefaultRetryConfig,
	}
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider() *OpenAIProvider {
	return newOpenAICompatible("openai", "OpenAI", "https://api.openai.com/v1")
}

// NewDeepseekProvider creates a new Deepseek provider instance
func NewDeepseekProvider() *OpenAIProvider {
	return newOpenAICompatible("deepseek", "Deepseek", "https://api.deepseek.com/v1")
}

// NewXAIProvider creates a new X.AI provider instance
func NewXAIProvider() *OpenAIProvider {
	return newOpenAICompatible("xai", "XAI", "https://api.x.ai/v1")
}

// NewMoonshotProvider creates a new Moonshot provider instance
func NewMoonshotProvider() *OpenAIProvider {
	return newOpenAICompatible("moonshot", "Moonshot", "https://api.moonshot.cn/v1")
}

// NewVLLMProvider creates a provider for a local vLLM server. It does not
// need an API key.
func NewVLLMProvider() *OpenAIProvider {
	p := newOpenAICompatible("vllm", "vLLM", "http://localhost:8000/v1")
	p.local = true
	return p
}

func (o *OpenAIProvider) debugf(format string, args ...interface{}) {
	if o.verbose {
		o.mu.Lock()
		defer o.mu.Unlock()
		log.Printf("[DEBUG]["+o.label+"] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (o *OpenAIProvider) Name() string {
	return o.name
}

// SupportsModel checks the model against the registry entries for this provider.
func (o *OpenAIProvider) SupportsModel(modelName string) bool {
	ok := GetRegistry().ValidateModel(o.name, modelName)
	o.debugf("Model %s support result: %v", modelName, ok)
	return ok
}

// Configure sets up the provider with necessary credentials
func (o *OpenAIProvider) Configure(apiKey string) error {
	if apiKey == "" && !o.local {
		return fmt.Errorf("API key is required for %s provider", o.label)
	}
	o.apiKey = apiKey
	o.debugf("API key configured successfully")
	return nil
}

// SetEndpoint overrides the base URL, e.g. for a proxy or self-hosted server.
func (o *OpenAIProvider) SetEndpoint(endpoint string) {
	if endpoint != "" {
		o.baseURL = strings.TrimRight(endpoint, "/")
	}
}

// SetVerbose enables or disables verbose mode
func (o *OpenAIProvider) SetVerbose(verbose bool) {
	o.verbose = verbose
}

// IsLocal reports whether the provider runs without credentials.
func (o *OpenAIProvider) IsLocal() bool {
	return o.local
}

func (o *OpenAIProvider) client() *openai.Client {
	cfg := openai.DefaultConfig(o.apiKey)
	cfg.BaseURL = o.baseURL
	return openai.NewClientWithConfig(cfg)
}

// isReasoningModel reports o-series models, which take max_completion_tokens
// and reject a custom temperature.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}

func (o *OpenAIProvider) chatRequest(req CompletionRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserMessage()})

	chat := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if o.name == "openai" {
		chat.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if isReasoningModel(req.Model) {
		chat.MaxCompletionTokens = req.MaxTokens
	} else {
		chat.MaxTokens = req.MaxTokens
		chat.Temperature = float32(req.Temperature)
	}
	return chat
}

// StreamCompletion opens a chat completion stream. Rate-limited requests are
// retried before the stream starts.
func (o *OpenAIProvider) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	if o.apiKey == "" && !o.local {
		return nil, fmt.Errorf("%s provider not configured: missing API key", o.label)
	}
	o.debugf("Streaming from model %s (prompt %d chars)", req.Model, len(req.UserMessage()))

	client := o.client()
	chat := o.chatRequest(req)
	cs, err := retry.Do(ctx, func(ctx context.Context) (*openai.ChatCompletionStream, error) {
		return client.CreateChatCompletionStream(ctx, chat)
	}, retry.Is429Error, o.retryCfg)
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", o.label, err)
	}

	out := newStream(ctx)
	go func() {
		defer out.close()
		defer cs.Close()

		var usage *Usage
		for {
			resp, err := cs.Recv()
			if errors.Is(err, io.EOF) {
				out.done(usage)
				return
			}
			if err != nil {
				out.fail(fmt.Errorf("%s stream error: %w", o.label, err))
				return
			}
			if resp.Usage != nil {
				usage = &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			for _, choice := range resp.Choices {
				if !out.delta(choice.Delta.Content) {
					return
				}
			}
		}
	}()
	return out.ch, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleProvider handles Gemini models.
type GoogleProvider struct {
	apiKey   string
	endpoint string
	verbose  bool
	mu       sync.Mutex
}

// NewGoogleProvider creates a new Google provider instance
func NewGoogleProvider() *GoogleProvider {
	return &GoogleProvider{}
}

func (g *GoogleProvider) debugf(format string, args ...interface{}) {
	if g.verbose {
		g.mu.Lock()
		defer g.mu.Unlock()
		log.Printf("[DEBUG][Google] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (g *GoogleProvider) Name() string {
	return "google"
}

// SupportsModel checks if the given model name is a Gemini model
func (g *GoogleProvider) SupportsModel(modelName string) bool {
	ok := GetRegistry().ValidateModel("google", modelName)
	g.debugf("Model %s support result: %v", modelName, ok)
	return ok
}

// Configure sets up the provider with necessary credentials
func (g *GoogleProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for Google provider")
	}
	g.apiKey = apiKey
	return nil
}

// SetEndpoint overrides the API endpoint.
func (g *GoogleProvider) SetEndpoint(endpoint string) {
	g.endpoint = endpoint
}

// SetVerbose enables or disables verbose mode
func (g *GoogleProvider) SetVerbose(verbose bool) {
	g.verbose = verbose
}

// StreamCompletion streams a Gemini response through GenerateContentStream.
func (g *GoogleProvider) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("Google provider not configured: missing API key")
	}

	opts := []option.ClientOption{option.WithAPIKey(g.apiKey)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating Google client: %w", err)
	}

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	g.debugf("Streaming from model %s", req.Model)
	iter := model.GenerateContentStream(ctx, genai.Text(req.UserMessage()))

	out := newStream(ctx)
	go func() {
		defer out.close()
		defer client.Close()

		var usage *Usage
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				out.done(usage)
				return
			}
			if err != nil {
				out.fail(fmt.Errorf("Google stream error: %w", err))
				return
			}
			if resp.UsageMetadata != nil {
				usage = &Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok {
						if !out.delta(string(text)) {
							return
						}
					}
				}
			}
		}
	}()
	return out.ch, nil
}

package models

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kris-hansen/workbench/utils/config"
)

// DetectProviderFunc is the type for the provider detection function
type DetectProviderFunc func(modelName string) Provider

// DetectProvider determines the appropriate provider based on the model name.
// Tests replace it to inject fakes.
var DetectProvider DetectProviderFunc = defaultDetectProvider

// defaultDetectProvider checks providers from most specific to most general
// and falls back to Ollama for anything unrecognised.
func defaultDetectProvider(modelName string) Provider {
	config.DebugLog("[Provider] Attempting to detect provider for model: %s", modelName)

	providers := []Provider{
		NewGoogleProvider(),
		NewAnthropicProvider(),
		NewXAIProvider(),
		NewDeepseekProvider(),
		NewMoonshotProvider(),
		NewBedrockProvider(),
		NewOpenAIProvider(),
	}
	for _, provider := range providers {
		if provider.SupportsModel(modelName) {
			config.DebugLog("[Provider] Found provider %s for model %s", provider.Name(), modelName)
			return provider
		}
	}

	config.DebugLog("[Provider] No hosted provider found, using Ollama as fallback for model %s", modelName)
	return NewOllamaProvider()
}

// newProviderByName builds a provider for an explicitly configured name.
func newProviderByName(name string) Provider {
	switch name {
	case "openai":
		return NewOpenAIProvider()
	case "anthropic":
		return NewAnthropicProvider()
	case "google":
		return NewGoogleProvider()
	case "xai":
		return NewXAIProvider()
	case "deepseek":
		return NewDeepseekProvider()
	case "moonshot":
		return NewMoonshotProvider()
	case "vllm":
		return NewVLLMProvider()
	case "ollama":
		return NewOllamaProvider()
	case "bedrock":
		return NewBedrockProvider()
	}
	return nil
}

type localProvider interface {
	IsLocal() bool
}

// Router is a Completer that picks and configures a provider per model.
// Models listed under a provider in the configuration are routed there
// first; everything else goes through DetectProvider.
type Router struct {
	env     *config.EnvConfig
	verbose bool

	mu        sync.Mutex
	providers map[string]Provider
}

// NewRouter creates a router backed by env. A nil env behaves as empty.
func NewRouter(env *config.EnvConfig) *Router {
	if env == nil {
		env = &config.EnvConfig{}
	}
	return &Router{env: env, providers: map[string]Provider{}}
}

// SetVerbose enables debug output on every provider the router creates.
func (r *Router) SetVerbose(verbose bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = verbose
	for _, p := range r.providers {
		p.SetVerbose(verbose)
	}
}

// StreamCompletion routes req to the provider serving req.Model.
func (r *Router) StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Event, error) {
	p, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	return p.StreamCompletion(ctx, req)
}

// ProviderFor returns a configured provider for modelName. Providers are
// created once and reused.
func (r *Router) ProviderFor(modelName string) (Provider, error) {
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("no model specified")
	}

	var p Provider
	if name := r.configuredFor(modelName); name != "" {
		p = newProviderByName(name)
	}
	if p == nil {
		p = DetectProvider(modelName)
	}
	if p == nil {
		return nil, fmt.Errorf("no provider found for model %s", modelName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.providers[p.Name()]; ok {
		return cached, nil
	}
	if err := r.configure(p); err != nil {
		return nil, err
	}
	p.SetVerbose(r.verbose)
	r.providers[p.Name()] = p
	return p, nil
}

// configuredFor returns the provider whose configured model list contains
// modelName.
func (r *Router) configuredFor(modelName string) string {
	want := strings.ToLower(modelName)
	for _, name := range r.env.ConfiguredProviders() {
		pc := r.env.Providers[name]
		if pc == nil {
			continue
		}
		for _, m := range pc.Models {
			if strings.ToLower(m) == want {
				return name
			}
		}
	}
	return ""
}

func (r *Router) configure(p Provider) error {
	pc, err := r.env.GetProviderConfig(p.Name())
	if err != nil {
		if lp, ok := p.(localProvider); ok && lp.IsLocal() {
			return p.Configure("")
		}
		return fmt.Errorf("provider %s is not configured; set %s_API_KEY or add it to %s: %w",
			p.Name(), strings.ToUpper(p.Name()), config.GetEnvPath(), err)
	}
	if err := p.Configure(pc.APIKey); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", p.Name(), err)
	}
	if es, ok := p.(EndpointSetter); ok && pc.Endpoint != "" {
		es.SetEndpoint(pc.Endpoint)
	}
	if b, ok := p.(*BedrockProvider); ok {
		b.SetRegion(pc.Region)
	}
	return nil
}

package models

import (
	"sort"
	"strings"
	"sync"
)

// ModelRegistry is a centralized registry for all supported models across providers
type ModelRegistry struct {
	// provider name to known model names
	models map[string][]string
	// provider name to model name prefixes
	families map[string][]string
	mu       sync.RWMutex
}

var globalRegistry = NewModelRegistry()

// NewModelRegistry creates a registry seeded with the default models.
func NewModelRegistry() *ModelRegistry {
	registry := &ModelRegistry{
		models:   make(map[string][]string),
		families: make(map[string][]string),
	}
	registry.initializeDefaultModels()
	return registry
}

func (r *ModelRegistry) initializeDefaultModels() {
	r.RegisterModels("anthropic", []string{
		"claude-sonnet-4-5",
		"claude-haiku-4-5",
		"claude-opus-4-5",
		"claude-opus-4-1",
		"claude-sonnet-4-20250514",
		"claude-3-7-sonnet-latest",
		"claude-3-5-haiku-latest",
	})
	r.RegisterFamilies("anthropic", []string{"claude-"})

	r.RegisterModels("openai", []string{
		"gpt-5",
		"gpt-5-mini",
		"gpt-5-nano",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4o",
		"gpt-4o-mini",
		"chatgpt-4o-latest",
		"o3",
		"o3-mini",
		"o4-mini",
	})
	r.RegisterFamilies("openai", []string{"gpt-", "chatgpt-", "o1", "o3", "o4"})

	r.RegisterModels("xai", []string{"grok-4", "grok-3", "grok-3-mini"})
	r.RegisterFamilies("xai", []string{"grok-"})

	r.RegisterModels("deepseek", []string{"deepseek-chat", "deepseek-reasoner"})
	r.RegisterFamilies("deepseek", []string{"deepseek-"})

	r.RegisterModels("google", []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.5-flash-lite",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	})
	r.RegisterFamilies("google", []string{"gemini-"})

	r.RegisterModels("moonshot", []string{"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k", "kimi-k2-0711-preview"})
	r.RegisterFamilies("moonshot", []string{"moonshot-", "kimi-"})

	// Bedrock model IDs are vendor-qualified.
	r.RegisterModels("bedrock", []string{
		"anthropic.claude-3-5-haiku-20241022-v1:0",
		"amazon.nova-lite-v1:0",
		"meta.llama3-1-70b-instruct-v1:0",
	})
	r.RegisterFamilies("bedrock", []string{"anthropic.", "amazon.", "meta.", "mistral.", "cohere.", "us.", "eu."})
}

// RegisterModels adds models to the registry for a specific provider
func (r *ModelRegistry) RegisterModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[provider] = append(r.models[provider], models...)
}

// RegisterFamilies adds model families (prefixes) to the registry for a specific provider
func (r *ModelRegistry) RegisterFamilies(provider string, families []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[provider] = append(r.families[provider], families...)
}

// GetModels returns the list of models for a specific provider
func (r *ModelRegistry) GetModels(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.models[provider]...)
}

// GetFamilies returns the list of model families for a specific provider
func (r *ModelRegistry) GetFamilies(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.families[provider]...)
}

// ValidateModel checks if a model is valid for a specific provider
func (r *ModelRegistry) ValidateModel(provider string, modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelName = strings.TrimSpace(strings.ToLower(modelName))
	for _, valid := range r.models[provider] {
		if modelName == valid {
			return true
		}
	}
	for _, family := range r.families[provider] {
		if strings.HasPrefix(modelName, family) {
			return true
		}
	}
	return false
}

// GetAllModels returns a copy of every provider's model list.
func (r *ModelRegistry) GetAllModels() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]string, len(r.models))
	for provider, models := range r.models {
		result[provider] = append([]string{}, models...)
	}
	return result
}

// Providers returns the registered provider names, sorted.
func (r *ModelRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetRegistry returns the global model registry instance
func GetRegistry() *ModelRegistry {
	return globalRegistry
}

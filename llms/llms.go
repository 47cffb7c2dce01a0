// Package llms provides completion providers used by the supervisor to
// pick a target agent. The selection policy only depends on the narrow
// Completer contract, so any provider (or a test double) can serve it.
package llms

import (
	"context"
	"errors"
	"fmt"

	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/registry"
)

// Provider is a language model completion provider.
type Provider interface {
	// Complete generates a completion for a pre-built prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Model returns the configured model name.
	Model() string

	// Close releases provider resources.
	Close() error
}

// Registry manages named provider instances.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// CreateFromConfig builds a provider from configuration and registers it
// under the given name.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMProviderConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("LLM name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("LLM config cannot be nil")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLM config: %w", err)
	}

	var provider Provider
	var err error

	switch cfg.Type {
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	case "ollama":
		provider, err = NewOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register LLM: %w", err)
	}
	return provider, nil
}

// GetProvider retrieves a provider by name.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("LLM provider '%s' not found", name)
	}
	return provider, nil
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	var errs []error
	for _, provider := range r.List() {
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.Clear()
	return errors.Join(errs...)
}

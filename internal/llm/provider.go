// Package llm wraps the chat models used to summarize a product's reviews.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDisabled is returned by the provider configured as "none".
var ErrDisabled = errors.New("llm provider disabled")

// Completion is one model reply.
type Completion struct {
	Text  string
	Model string
}

// Provider sends a system and a user prompt to a chat model.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (*Completion, error)
	Name() string
}

// Config selects and configures a Provider.
type Config struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	MaxTokens       int
	Timeout         time.Duration

	// BaseURL overrides the vendor endpoint.
	BaseURL string
}

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

// New returns the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(cfg), nil
	case ProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Disabled is the provider used when no model is configured.
type Disabled struct{}

func (Disabled) Complete(context.Context, string, string) (*Completion, error) {
	return nil, ErrDisabled
}

func (Disabled) Name() string { return ProviderNone }

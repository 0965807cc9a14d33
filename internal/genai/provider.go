package genai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

var ErrMissingAPIKey = errors.New("llm api key required")

// ProviderConfig selects and configures the hosted model.
type ProviderConfig struct {
	Provider   string
	APIKey     string `json:"-"` // never serialize API keys
	Model      string
	BaseURL    string       // openai only
	HTTPClient *http.Client // openai only
}

// NewModel builds a langchaingo model for the configured provider.
func NewModel(cfg ProviderConfig) (llms.Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	switch cfg.Provider {
	case "", ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(orDefault(cfg.Model, defaultOpenAIModel))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
		}
		return openai.New(opts...)
	case ProviderAnthropic:
		// the anthropic client only takes a token and a model; BaseURL and
		// HTTPClient apply to openai-compatible endpoints
		return anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(orDefault(cfg.Model, defaultAnthropicModel)))
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Factory builds services for the platform key and for caller-supplied
// keys (BYOK). Both paths share every setting except the credential.
type Factory struct {
	provider ProviderConfig
	opts     Options
	newModel func(ProviderConfig) (llms.Model, error)
}

func NewFactory(provider ProviderConfig, opts Options) *Factory {
	return &Factory{provider: provider, opts: opts, newModel: NewModel}
}

// Default returns a service using the platform credential.
func (f *Factory) Default() (*Service, error) {
	return f.ForKey(f.provider.APIKey)
}

// ForKey returns a service that authenticates with key.
func (f *Factory) ForKey(key string) (*Service, error) {
	cfg := f.provider
	cfg.APIKey = key
	m, err := f.newModel(cfg)
	if err != nil {
		return nil, err
	}
	return New(m, f.opts), nil
}

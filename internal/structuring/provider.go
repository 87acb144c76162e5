// Package structuring turns raw OCR text into a structured recipe by way of
// an AI text provider.
package structuring

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Provider identifies an AI text provider. The string values are the ids
// stored in settings files.
type Provider string

const (
	GoogleAI  Provider = "google"
	OpenAI    Provider = "openai"
	Anthropic Provider = "claude"
	XAI       Provider = "grok"
)

var (
	ErrUnknownProvider = errors.New("unknown AI provider")
	ErrMissingAPIKey   = errors.New("AI provider API key is required")
)

// Providers lists every supported provider.
var Providers = []Provider{GoogleAI, OpenAI, Anthropic, XAI}

var defaultModels = map[Provider]string{
	GoogleAI:  "gemini-1.5-pro",
	OpenAI:    "gpt-4o",
	Anthropic: "claude-3-5-sonnet-20241022",
	XAI:       "grok-beta",
}

// ParseProvider maps a provider id to a Provider.
func ParseProvider(id string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(id)))
	if _, ok := defaultModels[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// DefaultModel returns the model used when none is configured.
func (p Provider) DefaultModel() string {
	return defaultModels[p]
}

// Config selects the provider, credentials and model for a structuring call.
type Config struct {
	Provider  Provider
	APIKey    string
	ModelName string
}

// Validate checks that the provider is known and an API key is present.
func (c Config) Validate() error {
	known := make([]any, len(Providers))
	for i, p := range Providers {
		known[i] = p
	}
	if err := validation.Validate(c.Provider, validation.Required, validation.In(known...)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnknownProvider, c.Provider, err)
	}
	if err := validation.Validate(strings.TrimSpace(c.APIKey), validation.Required); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingAPIKey, err)
	}
	return nil
}

// Model returns the configured model name or the provider default.
func (c Config) Model() string {
	if m := strings.TrimSpace(c.ModelName); m != "" {
		return m
	}
	return c.Provider.DefaultModel()
}

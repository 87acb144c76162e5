// Package settings persists the AI provider selection between runs.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zombor/recipescan/internal/structuring"
)

// DefaultProvider is used when a settings file names no provider.
const DefaultProvider = structuring.GoogleAI

// document is the on-disk layout. The gemini* keys were written by older
// versions that only supported Google and are still read.
type document struct {
	AIProvider string `yaml:"aiProvider,omitempty"`
	APIKey     string `yaml:"apiKey,omitempty"`
	ModelName  string `yaml:"modelName,omitempty"`

	GeminiAPIKey    string `yaml:"geminiApiKey,omitempty"`
	GeminiModelName string `yaml:"geminiModelName,omitempty"`
}

// Load reads provider settings from path. A missing file yields the
// default provider with no key. Environment variables in the file are
// expanded.
func Load(path string) (structuring.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return structuring.Config{Provider: DefaultProvider}, nil
	}
	if err != nil {
		return structuring.Config{}, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return structuring.Config{}, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	return doc.config()
}

func (d document) config() (structuring.Config, error) {
	cfg := structuring.Config{
		Provider:  DefaultProvider,
		APIKey:    d.APIKey,
		ModelName: d.ModelName,
	}

	if d.AIProvider != "" {
		p, err := structuring.ParseProvider(d.AIProvider)
		if err != nil {
			return structuring.Config{}, err
		}
		cfg.Provider = p
	}

	// legacy keys only ever described a Google configuration
	if cfg.Provider == structuring.GoogleAI {
		if cfg.APIKey == "" {
			cfg.APIKey = d.GeminiAPIKey
		}
		if cfg.ModelName == "" {
			cfg.ModelName = d.GeminiModelName
		}
	}
	return cfg, nil
}

// Save writes cfg to path under the current key names, creating the
// directory if needed. The file holds an API key so it is private.
func Save(path string, cfg structuring.Config) error {
	data, err := yaml.Marshal(document{
		AIProvider: string(cfg.Provider),
		APIKey:     cfg.APIKey,
		ModelName:  cfg.ModelName,
	})
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing settings file %s: %w", path, err)
	}
	return nil
}

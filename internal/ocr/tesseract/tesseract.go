// Package tesseract recognizes recipe card text with a local Tesseract
// installation through gosseract.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/ocr"
)

// Capability creates gosseract-backed engines.
type Capability struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New creates a Tesseract capability. With no languages Tesseract uses
// its default (English).
func New(languages ...string) *Capability {
	return &Capability{languages: languages, clientFactory: gosseract.NewClient}
}

// Initialize creates one gosseract client that is reused for every image
// of the scan.
func (c *Capability) Initialize(ctx context.Context) (ocr.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := c.clientFactory()
	if len(c.languages) > 0 {
		if err := client.SetLanguage(c.languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting tesseract languages: %w", err)
		}
	}
	return &engine{client: client}, nil
}

type engine struct {
	client *gosseract.Client
}

func (e *engine) Recognize(ctx context.Context, img capture.PendingImage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(img.Data); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return strings.TrimRight(text, "\n"), nil
}

func (e *engine) Release() error {
	return e.client.Close()
}

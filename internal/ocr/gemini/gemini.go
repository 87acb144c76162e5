// Package gemini transcribes recipe cards with a Gemini vision model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/ocr"
)

const (
	DefaultModel = "gemini-1.5-pro"

	transcribePrompt = `Transcribe all of the text on this recipe card exactly as written.
Preserve line breaks. Output only the transcribed text with no commentary.`
)

var ErrMissingAPIKey = errors.New("gemini api key is required")

// Capability creates Gemini clients for a single scan.
type Capability struct {
	apiKey    string
	modelName string
	timeout   time.Duration
}

// New creates a Gemini OCR capability. An empty model name uses DefaultModel.
func New(apiKey, modelName string) (*Capability, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Capability{apiKey: apiKey, modelName: modelName, timeout: 30 * time.Second}, nil
}

func (c *Capability) Initialize(ctx context.Context) (ocr.Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &engine{
		client:  client,
		model:   client.GenerativeModel(c.modelName),
		timeout: c.timeout,
	}, nil
}

type engine struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

func (e *engine) Recognize(ctx context.Context, img capture.PendingImage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// genai.ImageData expects the format suffix ("png"), not the full MIME type
	resp, err := e.model.GenerateContent(ctx,
		genai.ImageData(imageFormat(img.ContentType), img.Data),
		genai.Text(transcribePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return strings.TrimSpace(text.String()), nil
}

func (e *engine) Release() error {
	return e.client.Close()
}

func imageFormat(contentType string) string {
	format, ok := strings.CutPrefix(contentType, "image/")
	if !ok || format == "" {
		return "png"
	}
	return format
}

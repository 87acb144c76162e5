package structuring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrEmptyResponse is returned when a provider answers successfully but the
// payload holds no generated text.
var ErrEmptyResponse = errors.New("AI provider returned no content")

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
}

// Endpoints holds the base URL of every provider API.
type Endpoints struct {
	GoogleAI  string
	OpenAI    string
	Anthropic string
	XAI       string
}

var DefaultEndpoints = Endpoints{
	GoogleAI:  "https://generativelanguage.googleapis.com",
	OpenAI:    "https://api.openai.com",
	Anthropic: "https://api.anthropic.com",
	XAI:       "https://api.x.ai",
}

// sender performs one provider call and returns the generated text.
type sender interface {
	send(ctx context.Context, prompt, apiKey, model string) (string, error)
}

// Gateway sends recipe text to the configured AI provider.
type Gateway struct {
	client    *http.Client
	endpoints Endpoints
	log       *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithEndpoints(e Endpoints) Option {
	return func(g *Gateway) { g.endpoints = e }
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// NewGateway creates a Gateway talking to the public provider APIs.
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{
		client:    &http.Client{Timeout: 120 * time.Second},
		endpoints: DefaultEndpoints,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Structure asks the configured provider to turn raw OCR text into the
// recipe JSON described by the prompt template and returns the provider's
// raw answer. The call is made once with no retry.
func (g *Gateway) Structure(ctx context.Context, text string, cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	s, err := g.sender(cfg.Provider)
	if err != nil {
		return "", err
	}

	model := cfg.Model()
	start := time.Now()
	out, err := s.send(ctx, BuildPrompt(text), cfg.APIKey, model)
	if err != nil {
		g.log.Error("AI structuring failed",
			"provider", cfg.Provider,
			"model", model,
			"error", err,
		)
		return "", err
	}

	g.log.Info("AI structuring complete",
		"provider", cfg.Provider,
		"model", model,
		"duration", time.Since(start),
		"response_length", len(out),
	)
	return out, nil
}

func (g *Gateway) sender(p Provider) (sender, error) {
	switch p {
	case GoogleAI:
		return &googleSender{gw: g, baseURL: g.endpoints.GoogleAI}, nil
	case OpenAI:
		return &chatSender{gw: g, provider: OpenAI, baseURL: g.endpoints.OpenAI}, nil
	case XAI:
		return &chatSender{gw: g, provider: XAI, baseURL: g.endpoints.XAI}, nil
	case Anthropic:
		return &anthropicSender{gw: g, baseURL: g.endpoints.Anthropic}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// postJSON sends body as JSON and decodes a 2xx answer into out.
func (g *Gateway) postJSON(ctx context.Context, provider Provider, endpoint string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// the google key travels in the query string
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL)
		}
		return fmt.Errorf("calling %s API: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Provider: provider, StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return nil
}

// redactURL drops the query and any user info from raw.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

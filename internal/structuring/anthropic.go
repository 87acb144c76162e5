package structuring

import (
	"context"
)

const anthropicVersion = "2023-06-01"

type anthropicSender struct {
	gw      *Gateway
	baseURL string
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
}

func (s *anthropicSender) send(ctx context.Context, prompt, apiKey, model string) (string, error) {
	body := anthropicRequest{
		Model:       model,
		MaxTokens:   2000,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
	}
	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := s.gw.postJSON(ctx, Anthropic, s.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return "", ErrEmptyResponse
	}
	return *resp.Content[0].Text, nil
}

package structuring

import (
	"context"
)

// chatSender speaks the OpenAI chat completions protocol, which xAI also
// implements.
type chatSender struct {
	gw       *Gateway
	provider Provider
	baseURL  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *chatSender) send(ctx context.Context, prompt, apiKey, model string) (string, error) {
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
	}
	headers := map[string]string{"Authorization": "Bearer " + apiKey}

	var resp chatResponse
	if err := s.gw.postJSON(ctx, s.provider, s.baseURL+"/v1/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", ErrEmptyResponse
	}
	return *resp.Choices[0].Message.Content, nil
}

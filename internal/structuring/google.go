package structuring

import (
	"context"
	"fmt"
	"net/url"
)

type googleSender struct {
	gw      *Gateway
	baseURL string
}

type googlePart struct {
	Text *string `json:"text,omitempty"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents []googleContent `json:"contents"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (s *googleSender) send(ctx context.Context, prompt, apiKey, model string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		s.baseURL, url.PathEscape(model), url.QueryEscape(apiKey))

	body := googleRequest{
		Contents: []googleContent{{Parts: []googlePart{{Text: &prompt}}}},
	}

	var resp googleResponse
	if err := s.gw.postJSON(ctx, GoogleAI, endpoint, nil, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0].Text == nil {
		return "", ErrEmptyResponse
	}
	return *resp.Candidates[0].Content.Parts[0].Text, nil
}

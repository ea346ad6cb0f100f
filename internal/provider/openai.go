package provider

import (
	"context"
	"encoding/json"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	*transport
	endpoint string
	model    string
	headers  map[string]string
}

var _ Client = (*OpenAIClient)(nil)

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func newOpenAI(cfg Config) (*OpenAIClient, error) {
	if err := validate(cfg, true); err != nil {
		return nil, err
	}
	return &OpenAIClient{
		transport: newTransport(cfg),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		headers:   map[string]string{"Authorization": "Bearer " + cfg.APIKey.Value()},
	}, nil
}

func (c *OpenAIClient) Kind() Kind { return KindOpenAI }

func (c *OpenAIClient) Send(ctx context.Context, p Prompt, opts Options) (*Reply, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.post(ctx, c.endpoint, chatRequest(c.model, p, opts), c.headers, opts)
}

func (c *OpenAIClient) Parse(reply *Reply, _ Options) (string, error) {
	return parseChoices(reply)
}

func (c *OpenAIClient) TestConnection(ctx context.Context) error {
	return probe(ctx, c)
}

func chatRequest(model string, p Prompt, opts Options) openAIRequest {
	req := openAIRequest{
		Model:       model,
		Messages:    messages(p),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if !opts.ExpectRawText {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

func parseChoices(reply *Reply) (string, error) {
	if err := checkStatus(reply); err != nil {
		return "", err
	}
	var resp openAIResponse
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return "", malformed(reply, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

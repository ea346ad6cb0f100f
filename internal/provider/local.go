package provider

import (
	"context"
	"encoding/json"
)

// LocalClient talks to a local model server over the Ollama chat API.
type LocalClient struct {
	*transport
	endpoint string
	model    string
}

var _ Client = (*LocalClient)(nil)

type localRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  localOptions  `json:"options"`
}

type localOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type localResponse struct {
	Message *chatMessage `json:"message"`
	// Response is set by the /api/generate flavour.
	Response string `json:"response"`
}

func newLocal(cfg Config) (*LocalClient, error) {
	if err := validate(cfg, false); err != nil {
		return nil, err
	}
	return &LocalClient{
		transport: newTransport(cfg),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
	}, nil
}

func (c *LocalClient) Kind() Kind { return KindLocal }

func (c *LocalClient) Send(ctx context.Context, p Prompt, opts Options) (*Reply, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body := localRequest{
		Model:    c.model,
		Messages: messages(p),
		Options: localOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}
	if !opts.ExpectRawText {
		body.Format = "json"
	}
	return c.post(ctx, c.endpoint, body, nil, opts)
}

func (c *LocalClient) Parse(reply *Reply, _ Options) (string, error) {
	if err := checkStatus(reply); err != nil {
		return "", err
	}
	var resp localResponse
	if err := json.Unmarshal(reply.Body, &resp); err != nil {
		return "", malformed(reply, err)
	}
	if resp.Message != nil && resp.Message.Content != "" {
		return resp.Message.Content, nil
	}
	return resp.Response, nil
}

func (c *LocalClient) TestConnection(ctx context.Context) error {
	return probe(ctx, c)
}

package provider

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// GatewayClient talks to a unified model gateway. It speaks the OpenAI
// wire format and, when configured, retries once against a fallback
// endpoint within the same attempt.
type GatewayClient struct {
	*transport
	endpoint string
	fallback string
	model    string
	headers  map[string]string
}

var _ Client = (*GatewayClient)(nil)

func newGateway(cfg Config) (*GatewayClient, error) {
	if err := validate(cfg, true); err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey.Value()}
	if cfg.AppTitle != "" {
		headers["X-Title"] = cfg.AppTitle
	}
	return &GatewayClient{
		transport: newTransport(cfg),
		endpoint:  cfg.Endpoint,
		fallback:  cfg.FallbackEndpoint,
		model:     cfg.Model,
		headers:   headers,
	}, nil
}

func (c *GatewayClient) Kind() Kind { return KindGateway }

func (c *GatewayClient) Send(ctx context.Context, p Prompt, opts Options) (*Reply, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body := chatRequest(c.model, p, opts)
	reply, err := c.post(ctx, c.endpoint, body, c.headers, opts)
	if !c.shouldFallback(ctx, reply, err) {
		return reply, err
	}

	c.logger.Warn(ctx, "primary gateway endpoint failed, using fallback",
		zap.String("fallback", c.fallback),
		zap.Error(primaryFailure(reply, err)))

	fb, fbErr := c.post(ctx, c.fallback, body, c.headers, opts)
	if fbErr != nil {
		return nil, fbErr
	}
	fb.Degraded = true
	return fb, nil
}

func (c *GatewayClient) shouldFallback(ctx context.Context, reply *Reply, err error) bool {
	if c.fallback == "" || ctx.Err() != nil {
		return false
	}
	if err != nil {
		var te *TimeoutError
		var tr *TransportError
		return errors.As(err, &te) || errors.As(err, &tr)
	}
	return reply.StatusCode >= 500
}

func primaryFailure(reply *Reply, err error) error {
	if err != nil {
		return err
	}
	return checkStatus(reply)
}

func (c *GatewayClient) Parse(reply *Reply, _ Options) (string, error) {
	return parseChoices(reply)
}

func (c *GatewayClient) TestConnection(ctx context.Context) error {
	return probe(ctx, c)
}

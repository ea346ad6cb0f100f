package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxReplyBytes   = 4 << 20
	probeText       = "Reply with a greeting: say hello."
	probeMaxTokens  = 32
	maxErrorMessage = 300
)

// chatMessage is shared by every wire format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(p Prompt) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: p.User})
}

// transport holds what every client needs to perform one POST.
type transport struct {
	kind       Kind
	httpClient *http.Client
	limiter    *rate.Limiter
	ceiling    time.Duration
	logger     *logging.Logger
	tracer     trace.Tracer
}

func newTransport(cfg Config) *transport {
	ceiling := cfg.Timeout
	if ceiling <= 0 {
		ceiling = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: ceiling}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &transport{
		kind:       cfg.Kind,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		ceiling:    ceiling,
		logger:     logger.Named("provider"),
		tracer:     tracerFor(cfg),
	}
}

// wait blocks on the rate limiter. Cancellation of ctx is returned as is
// so callers can tell it apart from provider failures.
func (t *transport) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (t *transport) timeout(opts Options) time.Duration {
	if opts.Timeout > 0 && opts.Timeout < t.ceiling {
		return opts.Timeout
	}
	return t.ceiling
}

// post sends body to endpoint within a per-call deadline.
func (t *transport) post(ctx context.Context, endpoint string, body any, headers map[string]string, opts Options) (*Reply, error) {
	ctx, span := t.tracer.Start(ctx, "provider.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.kind", t.kind.String()),
			attribute.String("provider.endpoint", endpoint),
		))
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		span.SetStatus(codes.Error, "marshal")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	limit := t.timeout(opts)
	callCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		span.SetStatus(codes.Error, "request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	t.logger.Trace(ctx, "sending provider request",
		zap.String("endpoint", endpoint),
		zap.Int("payload_bytes", len(payload)))

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		err = t.classify(ctx, callCtx, endpoint, limit, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		err = t.classify(ctx, callCtx, endpoint, limit, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "read")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	t.logger.Debug(ctx, "provider replied",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Reply{StatusCode: resp.StatusCode, Body: data, Endpoint: endpoint}, nil
}

// classify maps an http.Client failure onto the error taxonomy. If the
// parent context is done its error is returned unchanged.
func (t *transport) classify(parent, call context.Context, endpoint string, limit time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return &TimeoutError{Endpoint: endpoint, Timeout: limit, Err: err}
	}
	return &TransportError{Endpoint: endpoint, Err: err}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// checkStatus converts a non-2xx reply into *ResponseError.
func checkStatus(reply *Reply) error {
	if reply == nil {
		return &ResponseError{Message: "no reply"}
	}
	if reply.StatusCode >= 200 && reply.StatusCode < 300 {
		return nil
	}
	return &ResponseError{StatusCode: reply.StatusCode, Message: errorMessage(reply.Body)}
}

// errorMessage pulls a human readable message out of an error body. Both
// {"error":{"message":...}} and {"error":"..."} are understood.
func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return msg
}

func malformed(reply *Reply, err error) error {
	return &ResponseError{StatusCode: reply.StatusCode, Message: fmt.Sprintf("malformed reply: %v", err)}
}

// probe runs the connection test against any client.
func probe(ctx context.Context, c Client) error {
	opts := Options{MaxTokens: probeMaxTokens, ExpectRawText: true}
	reply, err := c.Send(ctx, Prompt{User: probeText}, opts)
	if err != nil {
		return err
	}
	text, err := c.Parse(reply, opts)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(text), "hello") {
		return &ResponseError{
			StatusCode: reply.StatusCode,
			Message:    fmt.Sprintf("unexpected connection test reply: %q", truncate(text, 80)),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

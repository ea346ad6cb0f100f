// Package provider implements the AI backend clients used for task
// extraction.
//
// Each Client is a pure protocol adapter: Send performs exactly one HTTP
// round trip (two for a gateway falling back to its alternate endpoint) and
// never retries. Retry policy belongs to the caller. Parse turns a Reply
// into the model's text, failing with *ResponseError on non-2xx statuses.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRateLimit = 50.0 / 60.0 // ~0.83 requests per second
	defaultBurst     = 5

	tracerName = "github.com/fyrsmithlabs/taskd/internal/provider"
)

// Kind identifies a backend family.
type Kind int

const (
	// KindLocal is a local model server speaking the Ollama chat API.
	KindLocal Kind = iota + 1
	// KindOpenAI is an OpenAI-compatible chat completions API.
	KindOpenAI
	// KindGateway is a unified gateway (OpenRouter style) with an optional
	// fallback endpoint.
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindOpenAI:
		return "openai"
	case KindGateway:
		return "gateway"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configured provider name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama":
		return KindLocal, nil
	case "openai":
		return KindOpenAI, nil
	case "gateway", "openrouter":
		return KindGateway, nil
	default:
		return 0, fmt.Errorf("unknown provider kind %q", s)
	}
}

// Config configures a Client. It is immutable once the client is built;
// reconfiguration builds a new client.
type Config struct {
	Kind             Kind
	Endpoint         string
	FallbackEndpoint string // gateway only
	APIKey           config.Secret
	Model            string
	NameVariants     []string
	Timeout          time.Duration // ceiling for any single HTTP call
	RateLimit        float64       // requests per second
	Burst            int
	AppTitle         string // gateway X-Title header

	HTTPClient *http.Client
	Logger     *logging.Logger
	Tracer     trace.Tracer
}

// FromAppConfig converts the file/env provider section into a Config.
func FromAppConfig(c config.ProviderConfig) (Config, error) {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Kind:             kind,
		Endpoint:         c.Endpoint,
		FallbackEndpoint: c.FallbackEndpoint,
		APIKey:           c.APIKey,
		Model:            c.Model,
		NameVariants:     append([]string(nil), c.NameVariants...),
		Timeout:          c.Timeout.Duration(),
		RateLimit:        c.RateLimit,
		Burst:            c.Burst,
		AppTitle:         c.AppTitle,
	}, nil
}

// Prompt is a backend-agnostic chat prompt.
type Prompt struct {
	System string
	User   string
}

// Options are per-request settings.
type Options struct {
	MaxTokens   int
	Temperature float64
	// Timeout bounds one HTTP call. Zero uses the client's ceiling.
	Timeout time.Duration
	// MaxRetries is total attempts for callers that loop; Send ignores it.
	MaxRetries int
	// ExpectRawText suppresses the structured-output hint.
	ExpectRawText bool
}

// Reply is an unparsed HTTP response from a provider.
type Reply struct {
	StatusCode int
	Body       []byte
	Endpoint   string
	// Degraded is set when a gateway answered from its fallback endpoint.
	Degraded bool
}

// Client sends prompts to one AI backend.
type Client interface {
	Kind() Kind
	// Send performs one round trip. Transport failures return
	// *TimeoutError or *TransportError; HTTP error statuses are returned in
	// the Reply for Parse to classify.
	Send(ctx context.Context, p Prompt, opts Options) (*Reply, error)
	// Parse extracts the model text from reply.
	Parse(reply *Reply, opts Options) (string, error)
	// TestConnection sends a trivial prompt and checks the greeting.
	TestConnection(ctx context.Context) error
}

// New builds the Client for cfg.Kind.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case KindLocal:
		return newLocal(cfg)
	case KindOpenAI:
		return newOpenAI(cfg)
	case KindGateway:
		return newGateway(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider kind %v", cfg.Kind)
	}
}

func validate(cfg Config, needKey bool) error {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if cfg.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if needKey && !cfg.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("%s provider requires an API key", cfg.Kind))
	}
	return errors.Join(errs...)
}

func tracerFor(cfg Config) trace.Tracer {
	if cfg.Tracer != nil {
		return cfg.Tracer
	}
	return otel.Tracer(tracerName)
}

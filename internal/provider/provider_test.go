package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(kind Kind, endpoint string) Config {
	return Config{
		Kind:      kind,
		Endpoint:  endpoint,
		APIKey:    config.Secret("sk-test"),
		Model:     "test-model",
		RateLimit: 1000,
		Burst:     100,
		AppTitle:  "taskd-test",
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"local", KindLocal, false},
		{"Ollama", KindLocal, false},
		{"openai", KindOpenAI, false},
		{"gateway", KindGateway, false},
		{" openrouter ", KindGateway, false},
		{"anthropic", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"local without key is fine", Config{Kind: KindLocal, Endpoint: "http://x", Model: "m"}, ""},
		{"missing endpoint", Config{Kind: KindLocal, Model: "m"}, "endpoint is required"},
		{"missing model", Config{Kind: KindLocal, Endpoint: "http://x"}, "model is required"},
		{"openai needs key", Config{Kind: KindOpenAI, Endpoint: "http://x", Model: "m"}, "requires an API key"},
		{"gateway needs key", Config{Kind: KindGateway, Endpoint: "http://x", Model: "m"}, "requires an API key"},
		{"unknown kind", Config{Kind: Kind(42), Endpoint: "http://x", Model: "m"}, "unsupported provider kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.cfg.Kind, c.Kind())
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	app := config.Default().Provider
	app.Kind = "openrouter"
	app.APIKey = config.Secret("sk-or-abc")
	app.NameVariants = []string{"Alex", "AJ"}

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, KindGateway, cfg.Kind)
	assert.Equal(t, "sk-or-abc", cfg.APIKey.Value())
	assert.Equal(t, []string{"Alex", "AJ"}, cfg.NameVariants)
	assert.Equal(t, 60*time.Second, cfg.Timeout)

	app.Kind = "nope"
	_, err = FromAppConfig(app)
	assert.Error(t, err)
}

func TestLocalClient_WireShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		got = decodeBody(t, r)
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"tasks\":[]}"}}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(KindLocal, srv.URL))
	require.NoError(t, err)

	opts := Options{MaxTokens: 256, Temperature: 0.3}
	reply, err := c.Send(context.Background(), Prompt{System: "sys", User: "hello"}, opts)
	require.NoError(t, err)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
	options := got["options"].(map[string]any)
	assert.Equal(t, 0.3, options["temperature"])
	assert.Equal(t, float64(256), options["num_predict"])

	text, err := c.Parse(reply, opts)
	require.NoError(t, err)
	assert.Equal(t, `{"tasks":[]}`, text)
}

func TestLocalClient_RawTextOmitsFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Write([]byte(`{"response":"Hello there"}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(KindLocal, srv.URL))
	require.NoError(t, err)

	opts := Options{ExpectRawText: true}
	reply, err := c.Send(context.Background(), Prompt{User: "hi"}, opts)
	require.NoError(t, err)
	_, hasFormat := got["format"]
	assert.False(t, hasFormat)

	text, err := c.Parse(reply, opts)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text, "falls back to the response field")
}

func TestOpenAIClient_WireShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Title"))
		got = decodeBody(t, r)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(KindOpenAI, srv.URL))
	require.NoError(t, err)

	opts := Options{MaxTokens: 512, Temperature: 0.2}
	reply, err := c.Send(context.Background(), Prompt{System: "s", User: "u"}, opts)
	require.NoError(t, err)

	assert.Equal(t, float64(512), got["max_tokens"])
	assert.Equal(t, 0.2, got["temperature"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])

	text, err := c.Parse(reply, opts)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, text)
}

func TestOpenAIClient_RawTextOmitsResponseFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(KindOpenAI, srv.URL))
	require.NoError(t, err)

	opts := Options{ExpectRawText: true}
	reply, err := c.Send(context.Background(), Prompt{User: "u"}, opts)
	require.NoError(t, err)
	_, has := got["response_format"]
	assert.False(t, has)

	text, err := c.Parse(reply, opts)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestParse_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantAuth bool
		retry    bool
	}{
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, "invalid credentials", true, false},
		{"forbidden", 403, `{}`, "insufficient permission", true, false},
		{"server error nested", 500, `{"error":{"message":"overloaded"}}`, "provider error (500): overloaded", false, true},
		{"not found flat", 404, `{"error":"model 'x' not found"}`, "provider error (404): model 'x' not found", false, true},
		{"rate limited plain", 429, `slow down`, "provider error (429): slow down", false, true},
	}
	c, err := New(testConfig(KindOpenAI, "http://unused"))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Parse(&Reply{StatusCode: tt.status, Body: []byte(tt.body)}, Options{})
			var re *ResponseError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.wantAuth, re.IsAuth())
			assert.Equal(t, tt.retry, Retryable(err))
		})
	}
}

func TestParse_MalformedEnvelope(t *testing.T) {
	c, err := New(testConfig(KindLocal, "http://unused"))
	require.NoError(t, err)

	_, err = c.Parse(&Reply{StatusCode: 200, Body: []byte("<html>")}, Options{})
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 200, re.StatusCode)
	assert.True(t, Retryable(err))
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(testConfig(KindLocal, srv.URL))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), Prompt{User: "x"}, Options{Timeout: 50 * time.Millisecond})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 50*time.Millisecond, te.Timeout)
	assert.True(t, Retryable(err))
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(testConfig(KindOpenAI, url))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), Prompt{User: "x"}, Options{Timeout: time.Second})
	var tr *TransportError
	require.ErrorAs(t, err, &tr)
	assert.True(t, Retryable(err))
}

func TestSend_ParentCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := New(testConfig(KindLocal, srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = c.Send(ctx, Prompt{User: "x"}, Options{Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, Retryable(err))
}

func TestGatewayClient_HeadersAndFallback(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryCalls.Add(1)
		assert.Equal(t, "taskd-test", r.Header.Get("X-Title"))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer fallback.Close()

	cfg := testConfig(KindGateway, primary.URL)
	cfg.FallbackEndpoint = fallback.URL
	c, err := New(cfg)
	require.NoError(t, err)

	reply, err := c.Send(context.Background(), Prompt{User: "x"}, Options{})
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, fallback.URL, reply.Endpoint)
	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Equal(t, int32(1), fallbackCalls.Load())

	text, err := c.Parse(reply, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGatewayClient_NoFallbackOnClientError(t *testing.T) {
	var fallbackCalls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls.Add(1)
	}))
	defer fallback.Close()

	cfg := testConfig(KindGateway, primary.URL)
	cfg.FallbackEndpoint = fallback.URL
	c, err := New(cfg)
	require.NoError(t, err)

	reply, err := c.Send(context.Background(), Prompt{User: "x"}, Options{})
	require.NoError(t, err)
	assert.False(t, reply.Degraded)
	assert.Zero(t, fallbackCalls.Load())

	_, err = c.Parse(reply, Options{})
	assert.EqualError(t, err, "invalid credentials")
}

func TestGatewayClient_FallbackOnTransportError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer fallback.Close()

	cfg := testConfig(KindGateway, deadURL)
	cfg.FallbackEndpoint = fallback.URL
	c, err := New(cfg)
	require.NoError(t, err)

	reply, err := c.Send(context.Background(), Prompt{User: "x"}, Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
}

func TestTestConnection(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		status  int
		wantErr bool
	}{
		{"greeting", `{"choices":[{"message":{"content":"HELLO! How can I help?"}}]}`, 200, false},
		{"no greeting", `{"choices":[{"message":{"content":"Greetings."}}]}`, 200, true},
		{"auth failure", `{}`, 401, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = decodeBody(t, r)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			c, err := New(testConfig(KindOpenAI, srv.URL))
			require.NoError(t, err)

			err = c.TestConnection(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			_, has := got["response_format"]
			assert.False(t, has, "probe expects raw text")
			msgs := got["messages"].([]any)
			assert.Equal(t, probeText, msgs[len(msgs)-1].(map[string]any)["content"])
		})
	}
}

func TestSend_RecordsSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"{}"}}`))
	}))
	defer srv.Close()

	tel := telemetry.NewTestTelemetry()
	cfg := testConfig(KindLocal, srv.URL)
	cfg.Tracer = tel.Tracer(tracerName)
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), Prompt{User: "x"}, Options{})
	require.NoError(t, err)

	tel.AssertSpanExists(t, "provider.Send")
	tel.AssertSpanAttribute(t, "provider.Send", "provider.kind", "local")
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("other")))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(&TimeoutError{}))
	assert.True(t, Retryable(&TransportError{Err: errors.New("refused")}))
}

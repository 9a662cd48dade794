// Package client talks to the practice_query endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/atomicdeploy/pql-testkit/pkg/pql"
)

const (
	// DefaultEndpoint is the public practice_query URL.
	DefaultEndpoint = "https://api.sikkasoft.com/v4/practice_query"
	DefaultTimeout  = 30 * time.Second

	// HeaderRequestKey carries the API credential.
	HeaderRequestKey = "Request-Key"
)

// Config configures a Client.
type Config struct {
	Endpoint   string
	RequestKey string
	Timeout    time.Duration
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client posts PQL requests.
type Client struct {
	endpoint   string
	requestKey string
	http       *http.Client
	log        zerolog.Logger
}

// New creates a client. Empty fields take the defaults.
func New(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		requestKey: cfg.RequestKey,
		http:       hc,
		log:        cfg.Logger,
	}
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// DefaultHeaders returns the headers Execute sends.
func (c *Client) DefaultHeaders() map[string]string {
	return map[string]string{
		HeaderRequestKey: c.requestKey,
		"Content-Type":   "application/json",
	}
}

// Result is the outcome of one request that reached the server.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Headers    http.Header
	Body       []byte
	// Response is nil when the body is not a JSON object.
	Response *Response
	// Err records why Response could not be decoded.
	Err error
}

// OK reports whether the server answered 200 with a JSON body.
func (r *Result) OK() bool {
	return r.StatusCode == http.StatusOK && r.Response != nil
}

// Execute posts a PQL request with the configured credentials.
func (c *Client) Execute(ctx context.Context, req pql.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return c.Send(ctx, c.DefaultHeaders(), req)
}

// Send posts body as JSON with the given headers. A body that is already
// encoded ([]byte or json.RawMessage) is sent unchanged. Errors are returned
// only when no response was received.
func (c *Client) Send(ctx context.Context, headers map[string]string, body any) (*Result, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		observe(0, latency)
		c.log.Debug().Err(err).Str("endpoint", c.endpoint).Msg("practice query failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observe(resp.StatusCode, latency)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	observe(resp.StatusCode, latency)

	result := &Result{
		StatusCode: resp.StatusCode,
		Latency:    latency,
		Headers:    resp.Header,
		Body:       raw,
	}
	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		result.Err = fmt.Errorf("invalid JSON response: %w", err)
	} else {
		result.Response = &decoded
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Int("bytes", len(raw)).
		Msg("practice query")

	return result, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

// Package blaze is a thin REST client for the Blaze FHIR store. All requests
// go through one shared HTTP client whose retry policy (bounded attempts,
// exponential backoff, server-error statuses only) is configured once at
// startup and applies uniformly.
package blaze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/samply/golang-fhir-models/fhir-models/fhir"
)

const fhirJSON = "application/fhir+json"

// Options configures the shared client.
type Options struct {
	BaseURL  string
	Username string
	Password string
	Token    string

	// RetryMax bounds transport-level retry attempts per request.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger zerolog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid store base URL %q: %w", opts.BaseURL, err)
	}

	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 100 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.CheckRetry = retryServerErrors
	rc.Logger = leveledLogger{opts.Logger}
	rc.HTTPClient.Transport = &authTransport{
		base:     http.DefaultTransport,
		username: opts.Username,
		password: opts.Password,
		token:    opts.Token,
	}

	return &Client{
		baseURL: base,
		http:    rc.StandardClient(),
		log:     opts.Logger,
	}, nil
}

// BaseURL returns the configured store base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// retryServerErrors retries connection failures and the server-error statuses
// 500, 502, 503 and 504. Client errors surface immediately.
func retryServerErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Ping checks the store root. Any transport error or non-success status means
// the store is not available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("store returned status %d", resp.StatusCode)
	}
	return nil
}

// WaitUntilAvailable polls the store root, sleeping wait between attempts,
// until the store answers or maxAttempts are exhausted.
func (c *Client) WaitUntilAvailable(ctx context.Context, maxAttempts int, wait time.Duration) bool {
	c.log.Info().Str("endpoint", c.baseURL).Msg("attempting to reach store")
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.Ping(ctx); err == nil {
			c.log.Info().Str("endpoint", c.baseURL).Msg("store is available")
			return true
		}
		c.log.Info().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("wait", wait).
			Msg("store not available yet, retrying")
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
	c.log.Info().
		Str("endpoint", c.baseURL).
		Int("attempts", maxAttempts).
		Msg("store was not available")
	return false
}

// ResourceCount returns the store's total for resources of the given type
// carrying the given business identifier, using a _summary=count search.
// A bundle without a total counts as zero.
func (c *Client) ResourceCount(ctx context.Context, resourceType, identifier string) (int, error) {
	path := fmt.Sprintf("/%s?identifier=%s&_summary=count", resourceType, url.QueryEscape(identifier))
	bundle, err := c.SearchPage(ctx, path)
	if err != nil {
		return 0, err
	}
	if bundle.Total == nil {
		return 0, nil
	}
	return *bundle.Total, nil
}

// SearchPage GETs one page of a search. The path must start with "/" and is
// appended to the base URL; pagination continuation paths from
// pagination.NextPath are passed here unchanged.
func (c *Client) SearchPage(ctx context.Context, path string) (*fhir.Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", fhirJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", path, err)
	}
	bundle, err := fhir.UnmarshalBundle(body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: unmarshal bundle: %w", path, err)
	}
	return &bundle, nil
}

// CreateResource POSTs a new resource to the type endpoint.
func (c *Client) CreateResource(ctx context.Context, resourceType string, resource any) error {
	body, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", resourceType, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+resourceType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", fhirJSON)
	req.Header.Set("Accept", fhirJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST /%s: %w", resourceType, err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("POST /%s: status %d", resourceType, resp.StatusCode)
	}
	return nil
}

// UpdateResource PUTs a full resource back to its resource-specific URL and
// returns the response status. A non-empty version is sent as a weak ETag in
// If-Match so concurrent external writes surface as 409/412 instead of being
// silently overwritten; the caller decides how to treat those statuses.
func (c *Client) UpdateResource(ctx context.Context, resourceType, id string, resource any, version string) (int, error) {
	body, err := json.Marshal(resource)
	if err != nil {
		return 0, fmt.Errorf("marshal %s/%s: %w", resourceType, id, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/%s/%s", c.baseURL, resourceType, id), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", fhirJSON)
	req.Header.Set("Accept", fhirJSON)
	if version != "" {
		req.Header.Set("If-Match", fmt.Sprintf("W/%q", version))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("PUT /%s/%s: %w", resourceType, id, err)
	}
	defer drain(resp)
	return resp.StatusCode, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// authTransport injects store credentials into every outgoing request.
type authTransport struct {
	base     http.RoundTripper
	username string
	password string
	token    string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	switch {
	case t.token != "":
		req.Header.Set("Authorization", "Bearer "+t.token)
	case t.username != "":
		req.SetBasicAuth(t.username, t.password)
	}
	return t.base.RoundTrip(req)
}

// leveledLogger adapts zerolog to the retry client's logging interface.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

// Package gateway is the only place that performs backend HTTP calls.
// It attaches the stored bearer token, resolves the base URL, and turns a
// 401 into a global sign-out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// ErrUnauthorized is returned after a 401 has been handled globally.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx, non-401 backend response.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Options configures a Gateway.
type Options struct {
	// BaseURL is the backend root, e.g. from ResolveBaseURL.
	BaseURL string

	// Tokens supplies the bearer token. May be nil for anonymous use.
	Tokens *TokenStore

	// Source, when set, is asked for the bearer token instead of Tokens.
	// It must read through Tokens and may refresh an expired token there.
	Source oauth2.TokenSource

	// HTTPClient is the underlying client. Defaults to http.DefaultClient's
	// transport with no timeout.
	HTTPClient *http.Client

	// OnUnauthorized runs after a 401 evicted the token.
	OnUnauthorized func()

	Logger *slog.Logger
}

// Gateway performs JSON requests against the backend.
type Gateway struct {
	base     *url.URL
	client   *http.Client
	tokens   *TokenStore
	redirect func()
	log      *slog.Logger
}

// New creates a Gateway.
func New(opts Options) (*Gateway, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	client := *hc
	var source oauth2.TokenSource
	switch {
	case opts.Source != nil:
		source = opts.Source
	case opts.Tokens != nil:
		source = opts.Tokens
	}
	client.Transport = &bearerTransport{source: source, base: hc.Transport}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	redirect := opts.OnUnauthorized
	if redirect == nil {
		redirect = func() {}
	}

	return &Gateway{
		base:     base,
		client:   &client,
		tokens:   opts.Tokens,
		redirect: redirect,
		log:      log,
	}, nil
}

// BaseURL returns the resolved backend root.
func (g *Gateway) BaseURL() string { return g.base.String() }

// Do sends method path with an optional JSON body and query params, and
// decodes a JSON response into out when out is non-nil.
func (g *Gateway) Do(ctx context.Context, method, path string, body any, params url.Values, out any) error {
	u := *g.base
	u.Path = strings.TrimRight(g.base.Path, "/") + path
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	g.log.Debug("backend request", "method", method, "path", path)
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		g.log.Debug("backend rejected session", "path", path)
		if g.tokens != nil {
			if err := g.tokens.Evict(); err != nil {
				g.log.Warn("failed to evict token", "error", err)
			}
		}
		g.redirect()
		return ErrUnauthorized
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Detail: detail(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// detail extracts the error message from a FastAPI-style error body.
func detail(data []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(data))
}

// ResolveBaseURL returns override when set, otherwise origin with its port
// replaced by port.
func ResolveBaseURL(override, origin string, port int) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimRight(strings.TrimSpace(override), "/"), nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("invalid origin %q", origin)
	}
	return u.Scheme + "://" + net.JoinHostPort(u.Hostname(), strconv.Itoa(port)), nil
}

// bearerTransport asks for the token immediately before each send.
type bearerTransport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.source == nil {
		return base.RoundTrip(req)
	}
	tok, err := t.source.Token()
	if errors.Is(err, ErrNoToken) {
		return base.RoundTrip(req)
	}
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	r := req.Clone(req.Context())
	tok.SetAuthHeader(r)
	return base.RoundTrip(r)
}

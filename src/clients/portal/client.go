package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	csrfHeader     = "X-CSRF-Token"
	csrfTokenPath  = "/csrf-token"
	defaultTimeout = 10 * time.Second
	tokenFlightKey = "csrf-token"
)

type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Jar, if nil, is set to the
// client's own cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds a single token fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client talks to the service on behalf of one browser-like user. All
// requests and the push connection share one cookie jar, so they carry the
// same session credential.
type Client struct {
	base    *url.URL
	http    *http.Client
	jar     http.CookieJar
	timeout time.Duration

	flight singleflight.Group
	mu     sync.Mutex
	token  string
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("portal: invalid base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:    base,
		jar:     jar,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.http.Jar == nil {
		c.http.Jar = jar
	}
	c.jar = c.http.Jar

	return c, nil
}

// Token returns the cached CSRF token or joins the single fetch in flight.
// Concurrent callers share one request; each waits no longer than its own ctx.
func (c *Client) Token(ctx context.Context) (string, error) {
	if token := c.cached(); token != "" {
		return token, nil
	}

	ch := c.flight.DoChan(tokenFlightKey, func() (interface{}, error) {
		if token := c.cached(); token != "" {
			return token, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		token, err := c.fetchToken(fetchCtx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) cached() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// invalidate drops the cached token only if it is still stale, so a token
// fetched by a concurrent caller survives.
func (c *Client) invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
	}
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.send(ctx, http.MethodGet, csrfTokenPath, nil, &out, ""); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", fmt.Errorf("portal: empty csrf token")
	}
	return out.CSRFToken, nil
}

// Do sends a JSON request and decodes a JSON response into out (when not
// nil). Mutating requests carry the CSRF token; a CSRF rejection triggers
// exactly one token refresh and one retry.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	if !mutating(method) {
		return c.send(ctx, method, path, body, out, "")
	}

	token, err := c.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Sent without a token; the server decides.
		logrus.WithError(err).WithField("path", path).Warn("CSRF token unavailable")
	}

	err = c.send(ctx, method, path, body, out, token)
	if !isCSRFRejected(err) {
		return err
	}

	c.invalidate(token)
	token, tokenErr := c.Token(ctx)
	if tokenErr != nil {
		return fmt.Errorf("%w: token refresh failed: %w", ErrCSRFRetryExhausted, tokenErr)
	}

	err = c.send(ctx, method, path, body, out, token)
	if isCSRFRejected(err) {
		return fmt.Errorf("%w: %w", ErrCSRFRetryExhausted, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}, token string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("portal: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("portal: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(csrfHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("portal: decode response: %w", err)
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.base.String() + path
}

// wsURL maps the base URL onto the websocket scheme.
func (c *Client) wsURL(path string) string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String() + path
}

func (c *Client) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		Jar:              c.jar,
		HandshakeTimeout: c.timeout,
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func isCSRFRejected(err error) bool {
	return err != nil && errors.Is(err, ErrCSRFRejected)
}

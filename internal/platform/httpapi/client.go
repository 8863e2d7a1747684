// Package httpapi is the request/response primitive shared by the REST
// clients: GET a call under a base URL and return the body of a 200 reply.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// StatusError is returned when the server answers with anything but 200.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status code %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Unwrap maps 404 to domain.ErrNotFound so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client issues GET requests against a base URL. Each call is addressed as
// base + call + "/".
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// New creates a client. A zero timeout selects 30s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		userAgent:  "coinwatch",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// URL builds the address of call with params.
func (c *Client) URL(call string, params url.Values) string {
	u := c.baseURL + strings.Trim(call, "/") + "/"
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get fetches call and returns the raw body.
func (c *Client) Get(ctx context.Context, call string, params url.Values) ([]byte, error) {
	target := c.URL(call, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

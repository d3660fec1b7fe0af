// Package mercury talks to the remote-ops Mercury API that reports SCP status.
package mercury

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the production Mercury endpoint.
	DefaultBaseURL = "https://remote-ops-mercury-api.sequr.io"
	// DefaultTimeout bounds one status request.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 4 << 10
)

// HTTPConfig configures the Mercury client.
type HTTPConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
	Logger     *logrus.Entry
}

// HTTPClient fetches SCP status documents.
type HTTPClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *logrus.Entry
}

var _ tracker.StatusFetcher = (*HTTPClient)(nil)

// NewHTTPClient builds a client. Empty fields take the production defaults.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("mercury: invalid base url %q: %w", cfg.BaseURL, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &HTTPClient{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		client:    httpClient,
		logger:    logger,
	}, nil
}

// NormalizeToken turns a pasted token into the Authorization header value.
func NormalizeToken(token string) string {
	return tracker.AuthorizationHeader(token)
}

// StatusURL returns the status endpoint of id.
func (c *HTTPClient) StatusURL(id tracker.WidgetID) string {
	return c.baseURL + "/v1/" + url.PathEscape(id.String()) + "/status/id"
}

// FetchStatus issues one authenticated GET and normalises the response.
func (c *HTTPClient) FetchStatus(ctx context.Context, id tracker.WidgetID, token string) (tracker.StatusSnapshot, error) {
	header := NormalizeToken(token)
	if header == "" {
		return tracker.StatusSnapshot{}, tracker.ErrMissingToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatusURL(id), nil)
	if err != nil {
		return tracker.StatusSnapshot{}, &tracker.TransportError{Err: fmt.Errorf("mercury: build request: %w", err)}
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return tracker.StatusSnapshot{}, &tracker.TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"scp":      id.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(started).String(),
	}).Debug("mercury status request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return tracker.StatusSnapshot{}, &tracker.TransportError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Body:       string(body),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tracker.StatusSnapshot{}, &tracker.TransportError{Status: resp.StatusCode, Err: err}
	}
	return ParseStatus(body, id)
}

// statusText mirrors the reason phrase a browser would expose.
func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}

package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNoData is returned when an API answered but had nothing for the token.
var ErrNoData = errors.New("no data")

// HTTPError is a non-200 answer from a market API.
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP error %d: %s", e.Service, e.StatusCode, e.Body)
}

// ClientConfig configures one market API client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// apiClient is the shared JSON-over-HTTP plumbing for the market APIs. Every
// request waits on a token bucket so a burst of new pools cannot exhaust a
// free-tier quota.
type apiClient struct {
	service    string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

func newAPIClient(service string, cfg ClientConfig, headers map[string]string, logger logrus.FieldLogger) *apiClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}

	return &apiClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.WithField("service", service),
	}
}

// doJSON sends a request and decodes a 200 response into out.
func (c *apiClient) doJSON(ctx context.Context, method, path string, query url.Values, body io.Reader, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", c.service, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	}).Debug("Making API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to make request: %w", c.service, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", c.service, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(responseBody)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return &HTTPError{Service: c.service, StatusCode: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", c.service, err)
	}
	return nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

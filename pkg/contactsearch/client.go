// Package contactsearch provides a client for the contact search API used
// to discover candidate contacts matching persona criteria.
package contactsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the contact search operations.
type Client interface {
	// SearchPage runs the given serialized query against one page of search
	// results and returns the candidate contact IDs on that page.
	SearchPage(ctx context.Context, query string, page int) (*Page, error)
}

// Page is one page of search results.
type Page struct {
	CandidateIDs []string `json:"ids"`
	Page         int      `json:"page"`
	TotalPages   int      `json:"total_pages"`
}

// Option configures the contact search client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (2 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new contact search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.contactsearch.io",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		retryReq := req.Clone(ctx)
		if payload != nil {
			retryReq.Body = io.NopCloser(bytes.NewReader(payload))
		}

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "contactsearch: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("contactsearch: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

type searchRequest struct {
	Query   json.RawMessage `json:"query"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

func (c *httpClient) SearchPage(ctx context.Context, query string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	payload, err := json.Marshal(searchRequest{
		Query:   json.RawMessage(query),
		Page:    page,
		PerPage: 25,
	})
	if err != nil {
		return nil, eris.Wrap(err, "contactsearch: marshal search request")
	}

	reqURL := fmt.Sprintf("%s/v1/contacts/search", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "contactsearch: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req, payload)
	if err != nil {
		return nil, eris.Wrap(err, "contactsearch: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("contactsearch: unexpected status %d: %s", statusCode, string(body))
	}

	var result Page
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "contactsearch: unmarshal response")
	}
	if result.Page == 0 {
		result.Page = page
	}
	return &result, nil
}

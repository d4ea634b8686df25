// Package enrich provides a client for the contact enrichment API, which
// resolves candidate contact IDs into full contact records.
package enrich

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

// MaxBatchSize is the upstream API's hard cap on contacts per enrichment call.
const MaxBatchSize = 10

// Client defines the enrichment operations.
type Client interface {
	// EnrichBatch resolves up to MaxBatchSize candidate IDs into full
	// contact records. Passing more IDs is an error, not a silent split.
	EnrichBatch(ctx context.Context, candidateIDs []string) ([]Contact, error)
}

// Contact is a fully enriched contact record.
type Contact struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

// Option configures the enrichment client.
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

// WithRateLimit overrides the default request rate (1 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRevealPhones asks the API to include direct phone numbers, which
// bills extra credits per contact.
func WithRevealPhones(reveal bool) Option {
	return func(c *httpClient) {
		c.revealPhones = reveal
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	http         *http.Client
	limiter      *rate.Limiter
	revealPhones bool
}

// NewClient creates a new enrichment client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.enrichhub.io",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503).
func (c *httpClient) retryDo(ctx context.Context, req *http.Request, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}

		retryReq := req.Clone(ctx)
		retryReq.Body = io.NopCloser(bytes.NewReader(payload))

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
			return nil, resp.StatusCode, eris.Wrap(readErr, "enrich: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("enrich: status %d: %s", resp.StatusCode, string(body))
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

type enrichRequest struct {
	IDs          []string `json:"ids"`
	RevealPhones bool     `json:"reveal_phones,omitempty"`
}

type enrichResponse struct {
	Contacts []Contact `json:"contacts"`
}

func (c *httpClient) EnrichBatch(ctx context.Context, candidateIDs []string) ([]Contact, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	if len(candidateIDs) > MaxBatchSize {
		return nil, eris.Errorf("enrich: batch of %d exceeds limit of %d", len(candidateIDs), MaxBatchSize)
	}

	payload, err := json.Marshal(enrichRequest{
		IDs:          candidateIDs,
		RevealPhones: c.revealPhones,
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: marshal request")
	}

	reqURL := fmt.Sprintf("%s/v1/contacts/enrich", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req, payload)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("enrich: unexpected status %d: %s", statusCode, string(body))
	}

	var result enrichResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "enrich: unmarshal response")
	}
	return result.Contacts, nil
}

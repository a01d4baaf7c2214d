package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient handles HTTP requests with retry logic.
type HTTPClient struct {
	client     *http.Client
	retryDelay []time.Duration
}

// NewHTTPClient creates a client. retryDelay holds the wait before each
// attempt; its length is the number of attempts.
func NewHTTPClient(timeout time.Duration, retryDelay ...time.Duration) *HTTPClient {
	if len(retryDelay) == 0 {
		retryDelay = []time.Duration{0}
	}
	return &HTTPClient{
		client:     &http.Client{Timeout: timeout},
		retryDelay: retryDelay,
	}
}

// DefaultHTTPClient retries twice, after 1s and 5s.
func DefaultHTTPClient() *HTTPClient {
	return NewHTTPClient(10*time.Second, 0, time.Second, 5*time.Second)
}

// SendResult contains the result of a send operation.
type SendResult struct {
	StatusCode int
	Duration   time.Duration
	Attempts   int
	Error      error
}

// Send POSTs body to url, retrying on transport errors, 429 and 5xx.
func (c *HTTPClient) Send(ctx context.Context, url, contentType string, body []byte) *SendResult {
	result := &SendResult{}
	start := time.Now()

	for attempt, delay := range c.retryDelay {
		result.Attempts = attempt + 1

		if delay > 0 {
			select {
			case <-ctx.Done():
				result.Error = ctx.Err()
				result.Duration = time.Since(start)
				return result
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			result.Error = fmt.Errorf("failed to create request: %w", err)
			result.Duration = time.Since(start)
			return result
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("User-Agent", "tabula/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			result.Error = fmt.Errorf("request failed: %w", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		result.StatusCode = resp.StatusCode

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			result.Error = nil
			result.Duration = time.Since(start)
			return result
		}

		// Rate limiting and server errors are retried.
		if resp.StatusCode == http.StatusTooManyRequests {
			result.Error = fmt.Errorf("rate limited (HTTP 429)")
			continue
		}
		if resp.StatusCode >= 500 {
			result.Error = fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, string(bodyBytes))
			continue
		}

		result.Error = fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(bodyBytes))
		result.Duration = time.Since(start)
		return result
	}

	result.Duration = time.Since(start)
	if result.Error == nil {
		result.Error = fmt.Errorf("max retries exceeded")
	}
	return result
}

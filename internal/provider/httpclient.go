package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// restClient is the shared HTTP plumbing for platform adapters: JSON
// request/response handling, bearer auth, request logging, and mapping of
// platform status codes onto the uniform error taxonomy.
type restClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	platform   string
}

func newRESTClient(platform, baseURL, token string) *restClient {
	return &restClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  baseURL,
		token:    token,
		platform: platform,
	}
}

// postJSON sends a POST with a JSON body and parses the JSON response.
func (c *restClient) postJSON(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

// getJSON sends a GET and parses the JSON response.
func (c *restClient) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// putJSON sends a PUT with a JSON body and parses the JSON response.
func (c *restClient) putJSON(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, result)
}

// delete sends a DELETE and discards the response body.
func (c *restClient) delete(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, nil)
}

// putBytes uploads raw bytes to an absolute URL (upload targets returned by
// the platform are usually outside the API base URL) and parses an optional
// JSON response.
func (c *restClient) putBytes(ctx context.Context, rawURL string, data []byte, contentType string, headers map[string]string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.doRequest(req, result)
}

// doRequest executes the request, logs the exchange, and maps non-2xx
// responses onto the error taxonomy.
func (c *restClient) doRequest(req *http.Request, result interface{}) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[%s] → %s %s", c.platform, req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[%s] ✗ %s %s — request failed: %v", c.platform, req.Method, req.URL.Path, err)
		return fmt.Errorf("%s request failed: %w", c.platform, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", c.platform, err)
	}

	log.Printf("[%s] ← %d %s %s", c.platform, resp.StatusCode, req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp, respBody)
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", c.platform, err)
	}

	return nil
}

// apiError maps a platform error response onto the taxonomy. 5xx responses
// stay plain errors so the retry policy treats them as transient.
func (c *restClient) apiError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s returned 401: %w", c.platform, ErrAuthExpired)
	case http.StatusForbidden:
		return fmt.Errorf("%s returned 403: %w", c.platform, ErrPermissionDenied)
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitedError{Platform: c.platform, RetryAfter: retryAfter}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ValidationError{Platform: c.platform, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	return fmt.Errorf("%s API error (status %d): %s", c.platform, resp.StatusCode, truncate(body, 200))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Package gateway verifies non-cash payment references against the
// payment provider's status endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Verification is the provider's answer for one payment reference.
type Verification struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount,omitempty"`
}

const StatusSettled = "settled"

// Client wraps the provider endpoint with retrying transport. Transient
// failures are retried by the underlying client; a definitive non-200
// answer is returned as an error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: retryClient.StandardClient(),
	}
}

// VerifyPayment fetches the provider status for the given reference. A nil
// error with Status other than settled means the provider answered but the
// payment has not cleared.
func (c *Client) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("payment reference is required")
	}

	url := fmt.Sprintf("%s/api/payments/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("payment reference %s unknown", reference)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Verification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

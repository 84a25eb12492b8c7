package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

const DefaultSaltServiceURL = "https://salt.api.mystenlabs.com/get_salt"

// SaltClient resolves user salts from a salt service.
type SaltClient struct {
	url        string
	httpClient *http.Client
}

var _ interfaces.SaltProvider = (*SaltClient)(nil)

// NewSaltClient creates a salt service client.
//
// Parameters:
//   - url: The salt endpoint (e.g., DefaultSaltServiceURL)
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewSaltClient(url string, timeout ...time.Duration) *SaltClient {
	return &SaltClient{url: url, httpClient: newHTTPClient(timeout)}
}

// GetSalt posts {"jwt": ...} and returns the salt of the response.
// Transport failures wrap both ErrSaltUnavailable and ErrNetwork.
func (c *SaltClient) GetSalt(ctx context.Context, jwt string) (string, error) {
	var result struct {
		Salt string `json:"salt"`
	}
	if err := postJSON(ctx, c.httpClient, c.url, map[string]string{"jwt": jwt}, &result, interfaces.ErrSaltUnavailable); err != nil {
		return "", err
	}
	if result.Salt == "" {
		return "", fmt.Errorf("%w: response has no salt", interfaces.ErrSaltUnavailable)
	}
	return result.Salt, nil
}

func newHTTPClient(timeout []time.Duration) *http.Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	return &http.Client{Timeout: clientTimeout}
}

// postJSON posts body and decodes a 2xx response into result. Errors wrap step.
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, result interface{}, step error) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request body: %v", step, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("%w: %w: %v", step, interfaces.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w: %v", step, interfaces.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w: status %d: %s", step, interfaces.ErrNetwork, resp.StatusCode, respBody)
		}
		return fmt.Errorf("%w: status %d: %s", step, resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", step, err)
	}
	return nil
}

package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// Faucet requests gas from a network faucet.
type Faucet struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewFaucet returns a faucet client for the network.
func NewFaucet(network Network, log *slog.Logger) (*Faucet, error) {
	return NewFaucetWithURL(network.FaucetURL(), log)
}

// NewFaucetWithURL returns a faucet client for an explicit endpoint.
func NewFaucetWithURL(url string, log *slog.Logger) (*Faucet, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: network has no faucet", interfaces.ErrConfiguration)
	}
	return &Faucet{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}, nil
}

func (f *Faucet) RequestGas(ctx context.Context, recipient interfaces.Address) error {
	body, err := json.Marshal(map[string]interface{}{
		"FixedAmountRequest": map[string]string{"recipient": recipient.String()},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: faucet request failed: %v", interfaces.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: faucet returned status %d: %s", interfaces.ErrNetwork, resp.StatusCode, respBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: faucet returned status %d: %s", interfaces.ErrRejected, resp.StatusCode, respBody)
	}

	var result struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err == nil && result.Error != nil && *result.Error != "" {
		return fmt.Errorf("%w: faucet: %s", interfaces.ErrRejected, *result.Error)
	}

	f.log.Info("Requested gas from faucet", slog.String("recipient", recipient.String()))
	return nil
}

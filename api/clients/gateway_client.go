package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// GatewayError is a non-2xx gateway response. It unwraps to the sentinel the
// gateway classified the failure as, so callers can test it with errors.Is.
type GatewayError struct {
	Status  int
	Code    string
	Message string
	// Digest identifies a transaction the chain sequenced and aborted.
	Digest string
}

func (e *GatewayError) Error() string {
	if e.Digest != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s [digest %s]", e.Status, e.Code, e.Message, e.Digest)
	}
	return fmt.Sprintf("gateway returned %d (%s): %s", e.Status, e.Code, e.Message)
}

var gatewayCodes = map[string]error{
	"rejected":            interfaces.ErrRejected,
	"session_expired":     interfaces.ErrSessionExpired,
	"signing":             interfaces.ErrSigning,
	"no_session":          interfaces.ErrSessionNotFound,
	"invalid_credential":  interfaces.ErrInvalidCredential,
	"invalid_argument":    interfaces.ErrInvalidArgument,
	"invalid_address":     interfaces.ErrInvalidAddress,
	"too_large":           interfaces.ErrContentTooLarge,
	"not_found":           interfaces.ErrObjectNotFound,
	"salt_unavailable":    interfaces.ErrSaltUnavailable,
	"proof_unavailable":   interfaces.ErrProofUnavailable,
	"network":             interfaces.ErrNetwork,
	"backend_unavailable": interfaces.ErrBackendUnavailable,
	"configuration":       interfaces.ErrConfiguration,
}

func (e *GatewayError) Unwrap() error {
	return gatewayCodes[e.Code]
}

// AuthBegin is the redirect a user completes with the provider.
type AuthBegin struct {
	FlowID  string `json:"flow_id"`
	AuthURL string `json:"auth_url"`
	Nonce   string `json:"nonce"`
	State   string `json:"state"`
}

// SessionSummary is the public view of the gateway session.
type SessionSummary struct {
	Address   string              `json:"address"`
	Provider  interfaces.Provider `json:"provider"`
	MaxEpoch  uint64              `json:"maxEpoch"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	Valid     bool                `json:"valid"`
}

// CallResult is the outcome of an escrow call. ObjectID is set for calls
// creating an account, a product or an escrow.
type CallResult struct {
	TransactionID string               `json:"transactionId"`
	Digest        string               `json:"digest"`
	Status        string               `json:"status"`
	GasUsed       uint64               `json:"gasUsed"`
	ObjectID      *interfaces.ObjectID `json:"objectId,omitempty"`
}

// Pin is a pinned content reference.
type Pin struct {
	CID  interfaces.ContentID `json:"cid"`
	URL  string               `json:"url"`
	Size int                  `json:"size"`
}

// GatewayClient talks to a running escrow gateway.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient creates a gateway client.
//
// Parameters:
//   - baseURL: The gateway base URL (e.g., "http://127.0.0.1:8080")
//   - timeout: Request timeout duration (optional, default 3 minutes to cover proof generation)
func NewGatewayClient(baseURL string, timeout ...time.Duration) *GatewayClient {
	if len(timeout) == 0 {
		timeout = []time.Duration{3 * time.Minute}
	}
	return &GatewayClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
	}
}

func (c *GatewayClient) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrConfiguration, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *GatewayClient) send(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", interfaces.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error  string `json:"error"`
			Code   string `json:"code"`
			Digest string `json:"digest"`
		}
		if jerr := json.Unmarshal(data, &e); jerr != nil || e.Code == "" {
			return &GatewayError{Status: resp.StatusCode, Code: "internal", Message: strings.TrimSpace(string(data))}
		}
		return &GatewayError{Status: resp.StatusCode, Code: e.Code, Message: e.Error, Digest: e.Digest}
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// BeginAuth starts a zkLogin flow. A zero maxEpoch lets the gateway pick one.
func (c *GatewayClient) BeginAuth(ctx context.Context, provider interfaces.Provider, maxEpoch uint64) (*AuthBegin, error) {
	path := "/api/auth/" + url.PathEscape(provider.String()) + "/begin"
	if maxEpoch > 0 {
		path += "?max_epoch=" + strconv.FormatUint(maxEpoch, 10)
	}
	var out AuthBegin
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteAuth hands the provider credential to the flow the state belongs to.
func (c *GatewayClient) CompleteAuth(ctx context.Context, idToken, state string) (*SessionSummary, error) {
	var out SessionSummary
	err := c.do(ctx, http.MethodPost, "/api/auth/callback", map[string]string{"id_token": idToken, "state": state}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) AbandonAuth(ctx context.Context, flowID string) error {
	return c.do(ctx, http.MethodDelete, "/api/auth/flows/"+url.PathEscape(flowID), nil, nil)
}

func (c *GatewayClient) Session(ctx context.Context) (*SessionSummary, error) {
	var out SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

func (c *GatewayClient) call(ctx context.Context, path string, body interface{}) (*CallResult, error) {
	var out CallResult
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccount registers the session's account with the email of its credential.
func (c *GatewayClient) CreateAccount(ctx context.Context) (*CallResult, error) {
	return c.call(ctx, "/api/accounts", nil)
}

func (c *GatewayClient) UpgradeSubscription(ctx context.Context, accountID interfaces.ObjectID, tier uint8) (*CallResult, error) {
	return c.call(ctx, "/api/accounts/"+accountID.String()+"/subscription", map[string]uint8{"tier": tier})
}

func (c *GatewayClient) CreateProduct(ctx context.Context, in escrow.ProductInput) (*CallResult, error) {
	return c.call(ctx, "/api/products", in)
}

func (c *GatewayClient) VerifyProduct(ctx context.Context, productID interfaces.ObjectID) (*CallResult, error) {
	return c.call(ctx, "/api/products/"+productID.String()+"/verify", nil)
}

func (c *GatewayClient) CreateEscrow(ctx context.Context, in escrow.EscrowInput) (*CallResult, error) {
	return c.call(ctx, "/api/escrows", in)
}

// EscrowAction runs accept, complete, dispute or cancel on an escrow.
func (c *GatewayClient) EscrowAction(ctx context.Context, escrowID interfaces.ObjectID, action string) (*CallResult, error) {
	switch action {
	case "accept", "complete", "dispute", "cancel":
	default:
		return nil, fmt.Errorf("%w: unknown escrow action %q", interfaces.ErrInvalidArgument, action)
	}
	return c.call(ctx, "/api/escrows/"+escrowID.String()+"/"+action, nil)
}

func (c *GatewayClient) UpdateTracking(ctx context.Context, escrowID interfaces.ObjectID, location, status string) (*CallResult, error) {
	return c.call(ctx, "/api/escrows/"+escrowID.String()+"/tracking", map[string]string{"location": location, "status": status})
}

func (c *GatewayClient) Escrow(ctx context.Context, escrowID interfaces.ObjectID) (*escrow.EscrowContract, error) {
	var out escrow.EscrowContract
	if err := c.do(ctx, http.MethodGet, "/api/escrows/"+escrowID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GatewayClient) Escrows(ctx context.Context, owner interfaces.Address) ([]escrow.EscrowContract, error) {
	var out []escrow.EscrowContract
	if err := c.do(ctx, http.MethodGet, "/api/addresses/"+owner.String()+"/escrows", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GatewayClient) Products(ctx context.Context, owner interfaces.Address) ([]escrow.Product, error) {
	var out []escrow.Product
	if err := c.do(ctx, http.MethodGet, "/api/addresses/"+owner.String()+"/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GatewayClient) Balance(ctx context.Context, owner interfaces.Address) (*interfaces.Balance, error) {
	var out interfaces.Balance
	if err := c.do(ctx, http.MethodGet, "/api/addresses/"+owner.String()+"/balance", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions lists the session's audit records, newest first.
func (c *GatewayClient) Transactions(ctx context.Context, limit int) ([]interfaces.Transaction, error) {
	path := "/api/transactions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []interfaces.Transaction
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestGas funds the session address from the network faucet.
func (c *GatewayClient) RequestGas(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/faucet", nil, nil)
}

// PinFile uploads a file for pinning.
func (c *GatewayClient) PinFile(ctx context.Context, name string, data []byte) (*Pin, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pin/file", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConfiguration, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Pin
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsRejected reports whether err is a call the chain sequenced and aborted,
// returning the transaction digest.
func IsRejected(err error) (string, bool) {
	var gerr *GatewayError
	if errors.As(err, &gerr) && errors.Is(gerr, interfaces.ErrRejected) {
		return gerr.Digest, true
	}
	return "", false
}

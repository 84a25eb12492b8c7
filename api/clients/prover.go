package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

const DefaultProverURL = "https://prover.mystenlabs.com/v1"

// ProverClient requests zero-knowledge proofs from a proving service.
type ProverClient struct {
	url        string
	httpClient *http.Client
}

var _ interfaces.ProofProvider = (*ProverClient)(nil)

// NewProverClient creates a proving service client. Proof generation is slow,
// so the default timeout is two minutes.
func NewProverClient(url string, timeout ...time.Duration) *ProverClient {
	if len(timeout) == 0 {
		timeout = []time.Duration{2 * time.Minute}
	}
	return &ProverClient{url: url, httpClient: newHTTPClient(timeout)}
}

// GetProof returns the proof object unmodified.
func (c *ProverClient) GetProof(ctx context.Context, req interfaces.ProofRequest) (json.RawMessage, error) {
	body := map[string]interface{}{
		"jwt":                        req.JWT,
		"extendedEphemeralPublicKey": req.ExtendedEphemeralPublicKey,
		"maxEpoch":                   fmt.Sprint(req.MaxEpoch),
		"jwtRandomness":              req.JWTRandomness,
		"salt":                       req.Salt,
		"keyClaimName":               req.KeyClaimName,
	}
	var proof json.RawMessage
	if err := postJSON(ctx, c.httpClient, c.url, body, &proof, interfaces.ErrProofUnavailable); err != nil {
		return nil, err
	}
	if len(proof) == 0 || string(proof) == "null" {
		return nil, fmt.Errorf("%w: empty proof", interfaces.ErrProofUnavailable)
	}
	return proof, nil
}

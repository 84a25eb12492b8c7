package zklogin

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// FlowState is the position of a flow in the authentication state machine.
type FlowState uint32

const (
	StateIdle FlowState = iota
	StateKeysGenerated
	StateRedirectIssued
	StateJwtReceived
	StateSaltResolved
	StateProofResolved
	StateSessionActive
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateKeysGenerated:
		return "KeysGenerated"
	case StateRedirectIssued:
		return "RedirectIssued"
	case StateJwtReceived:
		return "JwtReceived"
	case StateSaltResolved:
		return "SaltResolved"
	case StateProofResolved:
		return "ProofResolved"
	case StateSessionActive:
		return "SessionActive"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("FlowState(%d)", uint32(s))
	}
}

// StatePayload is carried through the provider redirect in the state parameter.
type StatePayload struct {
	Provider           interfaces.Provider `json:"provider"`
	Randomness         string              `json:"randomness"`
	MaxEpoch           uint64              `json:"maxEpoch"`
	EphemeralPublicKey string              `json:"ephemeralPublicKey"`
}

// Encode returns the base64url JSON form.
func (p *StatePayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeState reconstructs the callback context from the state parameter.
func DecodeState(state string) (*StatePayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed state: %v", interfaces.ErrInvalidCredential, err)
	}
	var p StatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed state: %v", interfaces.ErrInvalidCredential, err)
	}
	if _, err := interfaces.ParseProvider(string(p.Provider)); err != nil {
		return nil, fmt.Errorf("%w: unknown provider %q in state", interfaces.ErrInvalidCredential, p.Provider)
	}
	if p.Randomness == "" || p.EphemeralPublicKey == "" {
		return nil, fmt.Errorf("%w: incomplete state", interfaces.ErrInvalidCredential)
	}
	return &p, nil
}

package interfaces

import (
	"context"
	"encoding/json"
	"time"
)

// AuthSession is the persisted state of a zkLogin session.
//
// EphemeralKey holds the exported ephemeral private key and shares the storage
// lifetime of the rest of the record. UserAddress is always derived, never taken
// from client input.
type AuthSession struct {
	Provider     Provider        `json:"provider,omitempty"`
	Nonce        string          `json:"nonce,omitempty"`
	Randomness   string          `json:"randomness,omitempty"`
	MaxEpoch     uint64          `json:"maxEpoch,omitempty"`
	JWT          string          `json:"jwt,omitempty"`
	Salt         string          `json:"salt,omitempty"`
	UserAddress  string          `json:"userAddress,omitempty"`
	EphemeralKey string          `json:"ephemeralKey,omitempty"`
	ZkProof      json.RawMessage `json:"zkProof,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
}

// Merge copies every non-zero field of patch into s. A patch carrying a
// different nonce belongs to a new login and replaces s entirely.
func (s *AuthSession) Merge(patch *AuthSession) {
	if patch == nil {
		return
	}
	if patch.Nonce != "" && patch.Nonce != s.Nonce {
		*s = AuthSession{}
	}
	if patch.Provider != "" {
		s.Provider = patch.Provider
	}
	if patch.Nonce != "" {
		s.Nonce = patch.Nonce
	}
	if patch.Randomness != "" {
		s.Randomness = patch.Randomness
	}
	if patch.MaxEpoch != 0 {
		s.MaxEpoch = patch.MaxEpoch
	}
	if patch.JWT != "" {
		s.JWT = patch.JWT
	}
	if patch.Salt != "" {
		s.Salt = patch.Salt
	}
	if patch.UserAddress != "" {
		s.UserAddress = patch.UserAddress
	}
	if patch.EphemeralKey != "" {
		s.EphemeralKey = patch.EphemeralKey
	}
	if len(patch.ZkProof) > 0 {
		s.ZkProof = append(json.RawMessage(nil), patch.ZkProof...)
	}
	if !patch.CreatedAt.IsZero() {
		s.CreatedAt = patch.CreatedAt
	}
}

// Clone returns a deep copy.
func (s *AuthSession) Clone() *AuthSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.ZkProof != nil {
		c.ZkProof = append(json.RawMessage(nil), s.ZkProof...)
	}
	return &c
}

// SessionStore holds the current authentication session.
//
// Save merges the non-zero fields of the patch into the stored session as a single
// atomic write; readers never observe a partially merged record. Load returns
// ErrSessionNotFound when nothing is stored. Clear removes the whole record,
// including key material, and succeeds when nothing is stored.
type SessionStore interface {
	Save(ctx context.Context, patch *AuthSession) error
	Load(ctx context.Context) (*AuthSession, error)
	Clear(ctx context.Context) error
}

// SaltProvider resolves the per-user salt for a JWT.
type SaltProvider interface {
	GetSalt(ctx context.Context, jwt string) (string, error)
}

// ProofRequest carries the inputs of a zero-knowledge proof request.
type ProofRequest struct {
	JWT                        string `json:"jwt"`
	ExtendedEphemeralPublicKey string `json:"extendedEphemeralPublicKey"`
	MaxEpoch                   uint64 `json:"maxEpoch"`
	JWTRandomness              string `json:"jwtRandomness"`
	Salt                       string `json:"salt"`
	KeyClaimName               string `json:"keyClaimName"`
}

// ProofProvider produces the opaque zero-knowledge proof for a session.
type ProofProvider interface {
	GetProof(ctx context.Context, req ProofRequest) (json.RawMessage, error)
}

// TransactionSigner is the signing capability of an active session.
type TransactionSigner interface {
	// Address is the on-chain sender the signatures authorize.
	Address() Address

	// SignTransaction signs BCS transaction bytes and returns the serialized
	// signature. It fails closed with ErrSessionExpired once the session is invalid.
	SignTransaction(txBytes []byte) (string, error)
}

package cryptoutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureScheme is the one-byte flag prefixed to public keys and signatures.
type SignatureScheme byte

const (
	SchemeEd25519   SignatureScheme = 0x00
	SchemeSecp256k1 SignatureScheme = 0x01
	SchemeZkLogin   SignatureScheme = 0x05
)

var ErrUnsupportedScheme = errors.New("unsupported signature scheme")

func (s SignatureScheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeSecp256k1:
		return "secp256k1"
	case SchemeZkLogin:
		return "zklogin"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// ParseSignatureScheme parses a key scheme name accepted for ephemeral keys.
func ParseSignatureScheme(name string) (SignatureScheme, error) {
	switch strings.ToLower(name) {
	case "", "ed25519":
		return SchemeEd25519, nil
	case "secp256k1":
		return SchemeSecp256k1, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedScheme, name)
	}
}

// KeyPair is an ephemeral signing key.
type KeyPair interface {
	Scheme() SignatureScheme
	PublicKey() []byte
	Secret() []byte
	// Sign signs a 32-byte message digest.
	Sign(digest []byte) ([]byte, error)
}

// GenerateKeyPair creates a fresh key pair of the given scheme.
func GenerateKeyPair(scheme SignatureScheme) (KeyPair, error) {
	switch scheme {
	case SchemeEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return &Ed25519KeyPair{priv: priv}, nil
	case SchemeSecp256k1:
		priv, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		return &Secp256k1KeyPair{priv: priv}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// FlaggedPublicKey returns flag || public key.
func FlaggedPublicKey(kp KeyPair) []byte {
	return append([]byte{byte(kp.Scheme())}, kp.PublicKey()...)
}

// ExportKeyPair encodes the secret as base64(flag || secret).
func ExportKeyPair(kp KeyPair) string {
	return base64.StdEncoding.EncodeToString(append([]byte{byte(kp.Scheme())}, kp.Secret()...))
}

// ImportKeyPair decodes a key exported by ExportKeyPair.
func ImportKeyPair(encoded string) (KeyPair, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != 33 {
		return nil, fmt.Errorf("invalid key length %d", len(raw))
	}

	secret := raw[1:]
	switch SignatureScheme(raw[0]) {
	case SchemeEd25519:
		return &Ed25519KeyPair{priv: ed25519.NewKeyFromSeed(secret)}, nil
	case SchemeSecp256k1:
		priv, err := crypto.ToECDSA(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
		}
		return &Secp256k1KeyPair{priv: priv}, nil
	default:
		return nil, fmt.Errorf("%w: flag %d", ErrUnsupportedScheme, raw[0])
	}
}

// VerifySignature checks a signature produced by KeyPair.Sign.
func VerifySignature(scheme SignatureScheme, publicKey, digest, signature []byte) bool {
	switch scheme {
	case SchemeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(publicKey, digest, signature)
	case SchemeSecp256k1:
		if len(signature) != 64 {
			return false
		}
		h := sha256.Sum256(digest)
		return crypto.VerifySignature(publicKey, h[:], signature)
	default:
		return false
	}
}

package cryptoutils

import (
	"encoding/base64"
	"fmt"

	"github.com/ruteri/sui-escrow-gateway/bcs"
	"golang.org/x/crypto/blake2b"
)

// Intent is the three-byte (scope, version, app id) prefix of signed messages.
type Intent [3]byte

var (
	TransactionIntent     = Intent{0, 0, 0}
	PersonalMessageIntent = Intent{3, 0, 0}
)

// IntentDigest hashes intent || message.
func IntentDigest(intent Intent, message []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(intent[:])
	h.Write(message)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TransactionDigest is the signing digest of BCS transaction bytes.
func TransactionDigest(txBytes []byte) [32]byte {
	return IntentDigest(TransactionIntent, txBytes)
}

// PersonalMessageDigest is the signing digest of an arbitrary payload.
func PersonalMessageDigest(message []byte) [32]byte {
	return IntentDigest(PersonalMessageIntent, bcs.EncodeBytes(message))
}

// SerializeSignature returns flag || signature || public key.
func SerializeSignature(kp KeyPair, signature []byte) []byte {
	out := make([]byte, 0, 1+len(signature)+len(kp.PublicKey()))
	out = append(out, byte(kp.Scheme()))
	out = append(out, signature...)
	return append(out, kp.PublicKey()...)
}

// SignDigest signs a digest and returns the serialized signature.
func SignDigest(kp KeyPair, digest [32]byte) ([]byte, error) {
	sig, err := kp.Sign(digest[:])
	if err != nil {
		return nil, err
	}
	return SerializeSignature(kp, sig), nil
}

// ParseSerializedSignature splits flag || signature || public key.
func ParseSerializedSignature(raw []byte) (SignatureScheme, []byte, []byte, error) {
	if len(raw) == 0 {
		return 0, nil, nil, fmt.Errorf("empty signature")
	}
	scheme := SignatureScheme(raw[0])
	var pkLen int
	switch scheme {
	case SchemeEd25519:
		pkLen = 32
	case SchemeSecp256k1:
		pkLen = 33
	default:
		return 0, nil, nil, fmt.Errorf("%w: flag %d", ErrUnsupportedScheme, raw[0])
	}
	if len(raw) != 1+64+pkLen {
		return 0, nil, nil, fmt.Errorf("invalid %s signature length %d", scheme, len(raw))
	}
	return scheme, raw[1:65], raw[65:], nil
}

// EncodeSignature is the base64 form used on the wire.
func EncodeSignature(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

package simulated

import (
	"fmt"

	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// KeySigner signs with a plain key pair. It stands in for parties that do not
// authenticate through zkLogin, such as arbiters in tests and local networks.
type KeySigner struct {
	key     cryptoutils.KeyPair
	address interfaces.Address
}

var _ interfaces.TransactionSigner = (*KeySigner)(nil)

// NewKeySigner generates a fresh key pair of scheme.
func NewKeySigner(scheme cryptoutils.SignatureScheme) (*KeySigner, error) {
	key, err := cryptoutils.GenerateKeyPair(scheme)
	if err != nil {
		return nil, err
	}
	return KeySignerFor(key), nil
}

// KeySignerFor wraps an existing key pair.
func KeySignerFor(key cryptoutils.KeyPair) *KeySigner {
	return &KeySigner{key: key, address: cryptoutils.PublicKeyAddress(key.Scheme(), key.PublicKey())}
}

func (s *KeySigner) Address() interfaces.Address {
	return s.address
}

func (s *KeySigner) SignTransaction(txBytes []byte) (string, error) {
	sig, err := cryptoutils.SignDigest(s.key, cryptoutils.TransactionDigest(txBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSigning, err)
	}
	return cryptoutils.EncodeSignature(sig), nil
}

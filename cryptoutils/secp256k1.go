package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Secp256k1KeyPair signs sha256(digest) and emits 64-byte r || s signatures
// with a compressed public key.
type Secp256k1KeyPair struct {
	priv *ecdsa.PrivateKey
}

func (k *Secp256k1KeyPair) Scheme() SignatureScheme {
	return SchemeSecp256k1
}

func (k *Secp256k1KeyPair) PublicKey() []byte {
	return crypto.CompressPubkey(&k.priv.PublicKey)
}

func (k *Secp256k1KeyPair) Secret() []byte {
	return crypto.FromECDSA(k.priv)
}

func (k *Secp256k1KeyPair) Sign(digest []byte) ([]byte, error) {
	h := sha256.Sum256(digest)
	sig, err := crypto.Sign(h[:], k.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	// drop the recovery id
	return sig[:64], nil
}

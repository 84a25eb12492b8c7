package cryptoutils

import (
	"crypto/ed25519"
)

// Ed25519KeyPair is the default ephemeral key.
type Ed25519KeyPair struct {
	priv ed25519.PrivateKey
}

func (k *Ed25519KeyPair) Scheme() SignatureScheme {
	return SchemeEd25519
}

func (k *Ed25519KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.priv.Public().(ed25519.PublicKey)...)
}

// Secret returns the 32-byte seed.
func (k *Ed25519KeyPair) Secret() []byte {
	return append([]byte(nil), k.priv.Seed()...)
}

func (k *Ed25519KeyPair) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, digest), nil
}

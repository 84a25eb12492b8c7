package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	sealMagic = []byte("ZKS1")

	ErrSealedFormat    = errors.New("invalid sealed data format")
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")
)

const (
	sealSaltSize = 16
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

func deriveSealKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// SealWithPassphrase encrypts plaintext under a passphrase-derived key.
func SealWithPassphrase(passphrase, plaintext []byte) ([]byte, error) {
	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveSealKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealMagic), nil
}

// OpenWithPassphrase decrypts data produced by SealWithPassphrase.
func OpenWithPassphrase(passphrase, sealed []byte) ([]byte, error) {
	header := len(sealMagic) + sealSaltSize + chacha20poly1305.NonceSizeX
	if len(sealed) < header+chacha20poly1305.Overhead || !bytes.HasPrefix(sealed, sealMagic) {
		return nil, ErrSealedFormat
	}

	salt := sealed[len(sealMagic) : len(sealMagic)+sealSaltSize]
	nonce := sealed[len(sealMagic)+sealSaltSize : header]

	aead, err := chacha20poly1305.NewX(deriveSealKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed[header:], sealMagic)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

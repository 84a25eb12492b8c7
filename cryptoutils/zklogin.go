package cryptoutils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"golang.org/x/crypto/blake2b"
)

const (
	// RandomnessBytes is the entropy of the flow randomness.
	RandomnessBytes = 16

	// NonceLength is the length of the base64url nonce.
	NonceLength = 27

	nonceDomain   = "zklogin/nonce/v1"
	addressDomain = "zklogin/address-seed/v1"
)

// GenerateRandomness returns 128 random bits as a decimal integer string.
func GenerateRandomness() (string, error) {
	buf := make([]byte, RandomnessBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read randomness: %w", err)
	}
	return new(big.Int).SetBytes(buf).String(), nil
}

// ComputeNonce derives the OAuth nonce from the flagged ephemeral public key,
// the max epoch and the flow randomness.
func ComputeNonce(flaggedPublicKey []byte, maxEpoch uint64, randomness string) (string, error) {
	if len(flaggedPublicKey) == 0 {
		return "", errors.New("empty ephemeral public key")
	}
	r, ok := new(big.Int).SetString(randomness, 10)
	if !ok || r.Sign() < 0 {
		return "", fmt.Errorf("randomness must be a non-negative decimal integer")
	}

	h, _ := blake2b.New256(nil)
	writeFramed(h, []byte(nonceDomain))
	writeFramed(h, flaggedPublicKey)
	var epoch [8]byte
	binary.LittleEndian.PutUint64(epoch[:], maxEpoch)
	h.Write(epoch[:])
	writeFramed(h, r.Bytes())

	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:20]), nil
}

// AddressSeed commits to (salt, sub, aud). It does not depend on the issuer,
// the provider or the JWT expiry.
func AddressSeed(salt, sub, aud string) ([32]byte, error) {
	if salt == "" || sub == "" || aud == "" {
		return [32]byte{}, errors.New("salt, sub and aud are required")
	}

	h, _ := blake2b.New256(nil)
	writeFramed(h, []byte(addressDomain))
	writeFramed(h, []byte(salt))
	writeFramed(h, []byte(sub))
	writeFramed(h, []byte(aud))

	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed, nil
}

// AddressSeedString renders a seed as a decimal integer string.
func AddressSeedString(seed [32]byte) string {
	return new(big.Int).SetBytes(seed[:]).String()
}

// AddressFromSeed maps an address seed to the account address.
func AddressFromSeed(seed [32]byte) interfaces.Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{byte(SchemeZkLogin)})
	h.Write(seed[:])

	var addr interfaces.Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// AddressFromSeedString parses a decimal seed and maps it to the account address.
func AddressFromSeedString(seed string) (interfaces.Address, error) {
	v, ok := new(big.Int).SetString(seed, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return interfaces.Address{}, fmt.Errorf("invalid address seed %q", seed)
	}
	var raw [32]byte
	v.FillBytes(raw[:])
	return AddressFromSeed(raw), nil
}

// DeriveZkLoginAddress derives the stable account address for (salt, sub, aud).
func DeriveZkLoginAddress(salt, sub, aud string) (interfaces.Address, error) {
	seed, err := AddressSeed(salt, sub, aud)
	if err != nil {
		return interfaces.Address{}, err
	}
	return AddressFromSeed(seed), nil
}

func writeFramed(w io.Writer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	w.Write(l[:])
	w.Write(b)
}

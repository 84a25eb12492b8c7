package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNonce_Deterministic(t *testing.T) {
	kp, err := GenerateKeyPair(SchemeEd25519)
	require.NoError(t, err)
	pk := FlaggedPublicKey(kp)

	randomness, err := GenerateRandomness()
	require.NoError(t, err)

	n1, err := ComputeNonce(pk, 100, randomness)
	require.NoError(t, err)
	n2, err := ComputeNonce(pk, 100, randomness)
	require.NoError(t, err)

	assert.Equal(t, n1, n2)
	assert.Len(t, n1, NonceLength)

	n3, err := ComputeNonce(pk, 101, randomness)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n3)

	n4, err := ComputeNonce(pk, 100, "12345")
	require.NoError(t, err)
	assert.NotEqual(t, n1, n4)

	other, err := GenerateKeyPair(SchemeEd25519)
	require.NoError(t, err)
	n5, err := ComputeNonce(FlaggedPublicKey(other), 100, randomness)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n5)
}

func TestComputeNonce_InvalidInput(t *testing.T) {
	_, err := ComputeNonce(nil, 1, "1")
	assert.Error(t, err)

	_, err = ComputeNonce([]byte{0, 1}, 1, "not-a-number")
	assert.Error(t, err)
}

func TestDeriveZkLoginAddress(t *testing.T) {
	a1, err := DeriveZkLoginAddress("129390038577185583942388216820280642146", "sub-1", "client-a")
	require.NoError(t, err)
	a2, err := DeriveZkLoginAddress("129390038577185583942388216820280642146", "sub-1", "client-a")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.False(t, a1.IsZero())

	variants := [][3]string{
		{"129390038577185583942388216820280642147", "sub-1", "client-a"},
		{"129390038577185583942388216820280642146", "sub-2", "client-a"},
		{"129390038577185583942388216820280642146", "sub-1", "client-b"},
		// framing keeps field boundaries distinct
		{"129390038577185583942388216820280642146", "sub-1c", "lient-a"},
	}
	for _, v := range variants {
		addr, err := DeriveZkLoginAddress(v[0], v[1], v[2])
		require.NoError(t, err)
		assert.NotEqual(t, a1, addr, "inputs %v", v)
	}

	_, err = DeriveZkLoginAddress("", "sub", "aud")
	assert.Error(t, err)
}

func TestAddressSeedString_RoundTrip(t *testing.T) {
	seed, err := AddressSeed("1", "sub", "aud")
	require.NoError(t, err)

	addr, err := AddressFromSeedString(AddressSeedString(seed))
	require.NoError(t, err)
	assert.Equal(t, AddressFromSeed(seed), addr)

	_, err = AddressFromSeedString("-5")
	assert.Error(t, err)
}

func TestGenerateRandomness(t *testing.T) {
	r1, err := GenerateRandomness()
	require.NoError(t, err)
	r2, err := GenerateRandomness()
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)
	assert.Regexp(t, `^[0-9]+$`, r1)
}

func TestHashEmail(t *testing.T) {
	assert.Equal(t, HashEmail("User@Example.com"), HashEmail("user@example.com "))
	assert.Len(t, HashEmail("a@b.c"), 64)
	assert.NotEqual(t, HashEmail("a@b.c"), HashEmail("b@b.c"))
}

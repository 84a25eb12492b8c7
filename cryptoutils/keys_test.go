package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairs_SignVerifyAndExport(t *testing.T) {
	for _, scheme := range []SignatureScheme{SchemeEd25519, SchemeSecp256k1} {
		t.Run(scheme.String(), func(t *testing.T) {
			kp, err := GenerateKeyPair(scheme)
			require.NoError(t, err)
			assert.Equal(t, scheme, kp.Scheme())

			digest := TransactionDigest([]byte("tx bytes"))
			sig, err := kp.Sign(digest[:])
			require.NoError(t, err)
			assert.Len(t, sig, 64)
			assert.True(t, VerifySignature(scheme, kp.PublicKey(), digest[:], sig))

			other := TransactionDigest([]byte("other tx"))
			assert.False(t, VerifySignature(scheme, kp.PublicKey(), other[:], sig))

			imported, err := ImportKeyPair(ExportKeyPair(kp))
			require.NoError(t, err)
			assert.Equal(t, kp.Scheme(), imported.Scheme())
			assert.Equal(t, kp.PublicKey(), imported.PublicKey())
		})
	}
}

func TestGenerateKeyPair_Fresh(t *testing.T) {
	a, err := GenerateKeyPair(SchemeEd25519)
	require.NoError(t, err)
	b, err := GenerateKeyPair(SchemeEd25519)
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestSerializedSignatureRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(SchemeSecp256k1)
	require.NoError(t, err)

	digest := PersonalMessageDigest([]byte("hello"))
	raw, err := SignDigest(kp, digest)
	require.NoError(t, err)
	assert.Len(t, raw, 1+64+33)

	scheme, sig, pk, err := ParseSerializedSignature(raw)
	require.NoError(t, err)
	assert.Equal(t, SchemeSecp256k1, scheme)
	assert.Equal(t, kp.PublicKey(), pk)
	assert.True(t, VerifySignature(scheme, pk, digest[:], sig))

	_, _, _, err = ParseSerializedSignature(raw[:10])
	assert.Error(t, err)
}

func TestImportKeyPair_Invalid(t *testing.T) {
	_, err := ImportKeyPair("not base64!")
	assert.Error(t, err)

	_, err = ImportKeyPair("BQ==")
	assert.Error(t, err)

	_, err = ParseSignatureScheme("rsa")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

// Package cryptoutils provides the key material and hashing primitives of the
// zkLogin flow and of transaction signing.
//
// # Ephemeral Keys
//
// KeyPair abstracts the ephemeral signing key generated for every authentication
// flow. Ed25519 is the default scheme; Secp256k1 is available for environments
// that prefer it. Keys are exported in the keystore form base64(flag || secret)
// so a session record can carry them.
//
// # zkLogin Derivations
//
// ComputeNonce binds (ephemeral public key, max epoch, randomness) into the OAuth
// nonce. DeriveZkLoginAddress maps (salt, sub, aud) to a stable account address.
// Both are deterministic blake2b-256 constructions with explicit length framing
// and stand in for the Poseidon-based derivation of the zkLogin circuit.
//
// # Signatures
//
// Transaction signatures are computed over the blake2b-256 digest of the intent
// prefix followed by the BCS transaction bytes and serialized as
//
//	[flag (1 byte)][signature][public key]
//
// # Sealing
//
// SealWithPassphrase and OpenWithPassphrase encrypt records at rest with an
// argon2id-derived key and XChaCha20-Poly1305:
//
//	[magic (4 bytes)][salt (16 bytes)][nonce (24 bytes)][ciphertext]
package cryptoutils

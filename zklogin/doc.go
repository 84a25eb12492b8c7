// Package zklogin runs the zkLogin authentication flow: ephemeral key and nonce
// generation, the provider redirect, JWT validation, salt and proof retrieval,
// address derivation and the signing capability of the resulting session.
//
// Address and nonce derivation use the hash-based stand-ins of cryptoutils.
// They are stable and deterministic but are not the Poseidon-based derivation
// the chain verifies, so sessions from this package only sign for chains that
// use the same stand-in (the simulated backend).
package zklogin

// Package interfaces defines the core types and collaborator contracts of the
// escrow gateway, separating interface definitions from implementations.
//
// # Chain Types
//
// Address and ObjectID are 32-byte identifiers rendered as 0x-prefixed hex.
// ObjectRef, ObjectData, Coin, Event and TransactionResponse are the normalized
// views of chain state returned by a ChainClient.
//
// # Collaborator Interfaces
//
// ChainClient: read access to balances, objects and events plus submission of
// signed transaction blocks.
//
// SaltProvider and ProofProvider: the salt-issuing and zero-knowledge proof
// services consulted while completing a zkLogin flow.
//
// SessionStore: holds the single current AuthSession with whole-record merges.
//
// TransactionSigner: the signing capability produced by an active session. It is
// the only way to authorize a transaction submission.
//
// TransactionLedger: the client-side audit trail of submitted transactions.
//
// StorageBackend and StorageBackendFactory: content-addressed pinning of product
// metadata and images across IPFS, Pinata, S3 and local files.
//
// # Errors
//
// Failures are classified with the sentinel errors in errors.go and must be
// checked with errors.Is, since collaborators wrap more than one classification
// (a salt request that timed out is both ErrSaltUnavailable and ErrNetwork).
package interfaces

// Package session implements interfaces.SessionStore backends: in-memory, a
// bbolt file with optional passphrase encryption, and a HashiCorp Vault KV v2 path.
//
// Every backend serializes the whole AuthSession as one JSON record and applies
// Save as a single read-merge-write, so readers never observe a partial merge.
package session

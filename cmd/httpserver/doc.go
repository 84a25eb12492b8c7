// Package main (cmd/httpserver) runs the zkLogin escrow gateway.
//
// The gateway signs users in with an OAuth provider through zkLogin, keeps the
// resulting session, and submits escrow module calls signed with it. It also
// serves chain queries, the local transaction ledger and content pinning.
//
// Chain access is selected with --network. The public networks connect to a
// fullnode (--rpc-addr overrides the endpoint) and need --package-id and
// --config-object-id of the published escrow package. The "simulated" network
// runs an in-memory chain executing the escrow module, which is useful for
// local development of clients.
//
// Sessions are stored according to --session-store:
//
//   - memory: lost on exit.
//   - bolt: a bbolt file, encrypted with --session-passphrase when set.
//   - vault: a HashiCorp Vault KV v2 secret.
//
// Every flag can also be set through a ZKESCROW_ prefixed environment variable.
//
// Example usage against testnet:
//
//	zkescrow-gateway --network=testnet \
//	    --package-id=0x5f2c... --config-object-id=0x91ab... \
//	    --google-client-id=1234.apps.googleusercontent.com \
//	    --session-passphrase="$PASSPHRASE" \
//	    --ledger-db=ledger.db \
//	    --pinning-backend=pinata://api.pinata.cloud/
//
// Example usage for local development:
//
//	zkescrow-gateway --network=simulated --session-store=memory --log-debug
package main

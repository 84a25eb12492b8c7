// Package chain talks to a Sui full node.
//
// Client implements interfaces.ChainClient over the node's JSON-RPC API using
// the go-ethereum rpc client as a generic JSON-RPC 2.0 transport. Transport
// failures and timeouts are wrapped with interfaces.ErrNetwork; errors returned
// by the node are wrapped with interfaces.ErrRejected and keep the node's message.
//
// TransactionData models programmable transactions and encodes them with BCS.
// Faucet requests test gas on non-mainnet networks.
package chain

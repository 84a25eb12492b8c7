/*
Package executor turns escrow call descriptors into signed, submitted transactions.

Execute resolves the object inputs of a call against the chain, selects gas coins of
the sender, assembles a programmable transaction (coin splits from the gas coin
followed by the Move call), asks the signer for a signature and submits it.

Every submission leaves an audit record in the ledger: pending before submission,
then confirmed or failed with the chain-reported reason. Failures are classified:

  - interfaces.ErrSigning: no signer, or the signer refused (expired session)
  - interfaces.ErrNetwork: transport failure or timeout talking to the node
  - interfaces.ErrRejected: the node refused the transaction, an input object is
    missing, or execution failed (Move abort, insufficient gas)

The executor does not retry. Callers retrying the same intent can match records by
escrow.Call.Fingerprint.
*/
package executor

/*
Package clients provides HTTP clients for the zkLogin collaborators and for the
escrow gateway itself.

# Collaborator Clients

SaltClient and ProverClient implement interfaces.SaltProvider and
interfaces.ProofProvider against the salt service and the zero-knowledge prover:

	salt := clients.NewSaltClient(clients.DefaultSaltServiceURL)
	prover := clients.NewProverClient(clients.DefaultProverURL, 2*time.Minute)

Transport failures and non-2xx responses are reported as
interfaces.ErrSaltUnavailable or interfaces.ErrProofUnavailable so the auth
orchestrator can keep the pending flow and let the caller retry.

MockSaltProvider and MockProofProvider are testify mocks for both interfaces.

# Gateway Client

GatewayClient talks to the gateway REST API. Error responses are decoded into
*GatewayError, which unwraps to the matching sentinel from the interfaces
package:

	client := clients.NewGatewayClient("http://localhost:8080")
	res, err := client.EscrowAction(ctx, escrowID, "complete")
	if digest, ok := clients.IsRejected(err); ok {
		// the transaction executed on chain and aborted
	}
*/
package clients

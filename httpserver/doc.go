/*
Package httpserver implements the local gateway API of the escrow client.

A browser or CLI authenticates through zkLogin, then submits supply-chain
escrow calls that the gateway signs with the stored session and executes on
chain. Read endpoints expose decoded accounts, products, escrows and events,
and the pinning endpoints store product metadata and images.

# Authentication

	GET    /api/auth/{provider}/begin?max_epoch=N   start a flow, returns the provider URL
	GET    /api/auth/callback                        relay page posting the URL fragment back
	POST   /api/auth/callback                        {id_token, state} completes the flow
	DELETE /api/auth/flows/{flowID}                  abandon a pending flow
	GET    /api/session                              session summary
	DELETE /api/session                              log out

A flow that failed on the salt or proof service is resumed by posting the same
credential again.

# Escrow Calls

	POST /api/accounts                      {email}
	POST /api/accounts/{id}/subscription    {tier, payment}
	POST /api/products                      product fields, optional accountId
	POST /api/products/{id}/verify
	POST /api/escrows                       {seller, arbiter, productId, amount|amountSui, terms}
	POST /api/escrows/{id}/accept|complete|dispute|cancel
	POST /api/escrows/{id}/tracking         {location, status}

Calls on the same escrow are serialized; different escrows proceed concurrently.
Calls aborted by the chain answer 409 with the abort reason and the digest.

# Queries

	GET /api/addresses/{address}/balance|account|products|escrows
	GET /api/products/{id}   GET /api/escrows/{id}   GET /api/objects/{id}
	GET /api/events/{eventType}?limit=N
	GET /api/transactions?sender=0x..&limit=N

# Pinning and Faucet

	POST /api/pin/json   POST /api/pin/product   POST /api/pin/file   GET /api/pin/{cid}
	POST /api/faucet     {address}

# Errors

Errors are JSON objects {"error", "code"}. Invalid input answers 400, missing or
expired sessions 401, unknown objects 404, chain rejections 409, oversized
uploads 413, collaborator failures 502 and configuration errors 500.

# Health

	GET /livez /readyz /drain /undrain

pprof is mounted under /debug when enabled.
*/
package httpserver

// Package escrow builds the on-chain calls of the supply-chain escrow module and
// models its domain entities.
//
// The Builder is pure: each operation validates its typed arguments and returns
// a Call descriptor naming the entry point and its ordered, type-tagged
// arguments. It performs no I/O. Object inputs are resolved and coins are split
// from gas by the executor at submission time.
//
// Escrow lifecycle:
//
//	Pending(0) -> Accepted(1) -> InTransit(2) -> Delivered(3) -> Completed(4)
//
// Disputed(5) is reachable from every non-terminal state and Cancelled(6) from
// Pending and Accepted. The chain enforces every precondition; the client treats
// a rejection as authoritative.
package escrow

// Package ledger implements interfaces.TransactionLedger, the client-side audit
// trail of submitted escrow calls. Records are written as pending before
// submission and moved to confirmed or failed once the outcome is known.
package ledger

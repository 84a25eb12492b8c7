package interfaces

import (
	"context"
	"time"
)

// TransactionStatus tracks an audit record through submission.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionConfirmed TransactionStatus = "confirmed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is the client-side audit record of a submitted call.
type Transaction struct {
	ID          string            `json:"id"`
	Function    string            `json:"function"`
	Fingerprint string            `json:"fingerprint"`
	Sender      Address           `json:"sender"`
	Receiver    *Address          `json:"receiver,omitempty"`
	Amount      uint64            `json:"amount"`
	Currency    string            `json:"currency"`
	ProductID   *ObjectID         `json:"productId,omitempty"`
	EscrowID    *ObjectID         `json:"escrowId,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      TransactionStatus `json:"status"`
	TxHash      string            `json:"txHash,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// TransactionLedger persists audit records.
type TransactionLedger interface {
	Record(ctx context.Context, tx *Transaction) error
	UpdateStatus(ctx context.Context, id string, status TransactionStatus, txHash, errMsg string) error
	Get(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context, sender Address, limit int) ([]Transaction, error)
}

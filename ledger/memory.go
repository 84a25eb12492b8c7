package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// MemoryLedger keeps records in process memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*interfaces.Transaction
}

var _ interfaces.TransactionLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*interfaces.Transaction)}
}

func (l *MemoryLedger) Record(_ context.Context, tx *interfaces.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", interfaces.ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s already recorded", interfaces.ErrInvalidArgument, tx.ID)
	}
	c := *tx
	l.records[tx.ID] = &c
	return nil
}

func (l *MemoryLedger) UpdateStatus(_ context.Context, id string, status interfaces.TransactionStatus, txHash, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[id]
	if !ok {
		return interfaces.ErrTransactionNotFound
	}
	rec.Status = status
	if txHash != "" {
		rec.TxHash = txHash
	}
	rec.Error = errMsg
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*interfaces.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[id]
	if !ok {
		return nil, interfaces.ErrTransactionNotFound
	}
	c := *rec
	return &c, nil
}

// List returns the records of sender, newest first. limit <= 0 returns all of them.
func (l *MemoryLedger) List(_ context.Context, sender interfaces.Address, limit int) ([]interfaces.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]interfaces.Transaction, 0)
	for _, rec := range l.records {
		if rec.Sender == sender {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package ledger

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = interfaces.MustParseAddress("0xa11ce")
	bob   = interfaces.MustParseAddress("0xb0b")
)

func testLedgers(t *testing.T) map[string]interfaces.TransactionLedger {
	sqlite, err := NewSQLiteLedger(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]interfaces.TransactionLedger{
		"memory": NewMemoryLedger(),
		"sqlite": sqlite,
	}
}

func TestLedgerRecordAndUpdate(t *testing.T) {
	ctx := context.Background()
	escrowID := interfaces.MustParseAddress("0xe5c")
	ts := time.Date(2026, 5, 1, 10, 0, 0, 123, time.UTC)

	for name, l := range testLedgers(t) {
		t.Run(name, func(t *testing.T) {
			tx := &interfaces.Transaction{
				ID:          "tx-1",
				Function:    "create_escrow",
				Fingerprint: "fp-1",
				Sender:      alice,
				Receiver:    &bob,
				Amount:      math.MaxUint64,
				Currency:    "SUI",
				EscrowID:    &escrowID,
				Timestamp:   ts,
				Status:      interfaces.TransactionPending,
			}
			require.NoError(t, l.Record(ctx, tx))
			require.ErrorIs(t, l.Record(ctx, &interfaces.Transaction{}), interfaces.ErrInvalidArgument)

			got, err := l.Get(ctx, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, tx, got)

			require.NoError(t, l.UpdateStatus(ctx, "tx-1", interfaces.TransactionConfirmed, "9xQeW", ""))
			got, err = l.Get(ctx, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, interfaces.TransactionConfirmed, got.Status)
			assert.Equal(t, "9xQeW", got.TxHash)
			assert.Nil(t, got.ProductID)

			// An empty hash keeps the known one.
			require.NoError(t, l.UpdateStatus(ctx, "tx-1", interfaces.TransactionFailed, "", "MoveAbort 3"))
			got, err = l.Get(ctx, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, interfaces.TransactionFailed, got.Status)
			assert.Equal(t, "9xQeW", got.TxHash)
			assert.Equal(t, "MoveAbort 3", got.Error)

			_, err = l.Get(ctx, "missing")
			require.ErrorIs(t, err, interfaces.ErrTransactionNotFound)
			require.ErrorIs(t, l.UpdateStatus(ctx, "missing", interfaces.TransactionConfirmed, "", ""), interfaces.ErrTransactionNotFound)
		})
	}
}

func TestLedgerListNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, l := range testLedgers(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, l.Record(ctx, &interfaces.Transaction{
					ID:        id,
					Function:  "accept_escrow",
					Sender:    alice,
					Currency:  "SUI",
					Timestamp: base.Add(time.Duration(i) * time.Minute),
					Status:    interfaces.TransactionPending,
				}))
			}
			require.NoError(t, l.Record(ctx, &interfaces.Transaction{
				ID: "other", Function: "dispute_escrow", Sender: bob, Currency: "SUI", Timestamp: base,
				Status: interfaces.TransactionPending,
			}))

			all, err := l.List(ctx, alice, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

			limited, err := l.List(ctx, alice, 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "c", limited[0].ID)

			none, err := l.List(ctx, interfaces.MustParseAddress("0x1"), 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSQLiteLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := NewSQLiteLedger(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, &interfaces.Transaction{
		ID: "kept", Function: "create_account", Sender: alice, Currency: "SUI",
		Timestamp: time.Now().UTC(), Status: interfaces.TransactionPending,
	}))
	require.NoError(t, l.Close())

	l, err = NewSQLiteLedger(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "create_account", got.Function)
}

package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteLedger stores records in a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

var _ interfaces.TransactionLedger = (*SQLiteLedger)(nil)

// NewSQLiteLedger opens dbPath and applies pending migrations.
// ":memory:" gives a throwaway database.
func NewSQLiteLedger(ctx context.Context, dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	l := &SQLiteLedger{db: db}
	if err := l.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, l.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Record(ctx context.Context, tx *interfaces.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", interfaces.ErrInvalidArgument)
	}

	query := `
		INSERT INTO transactions (
			id, function, fingerprint, sender, receiver, amount, currency,
			product_id, escrow_id, timestamp, status, tx_hash, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		tx.ID,
		tx.Function,
		tx.Fingerprint,
		tx.Sender.String(),
		nullableAddress(tx.Receiver),
		// Text keeps the full u64 range.
		strconv.FormatUint(tx.Amount, 10),
		tx.Currency,
		nullableAddress(tx.ProductID),
		nullableAddress(tx.EscrowID),
		tx.Timestamp.UnixNano(),
		string(tx.Status),
		tx.TxHash,
		tx.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) UpdateStatus(ctx context.Context, id string, status interfaces.TransactionStatus, txHash, errMsg string) error {
	query := `
		UPDATE transactions
		SET status = ?, tx_hash = CASE WHEN ? = '' THEN tx_hash ELSE ? END, error = ?
		WHERE id = ?
	`
	res, err := l.db.ExecContext(ctx, query, string(status), txHash, txHash, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return interfaces.ErrTransactionNotFound
	}
	return nil
}

const selectColumns = `
	SELECT id, function, fingerprint, sender, receiver, amount, currency,
	       product_id, escrow_id, timestamp, status, tx_hash, error
	FROM transactions
`

func (l *SQLiteLedger) Get(ctx context.Context, id string) (*interfaces.Transaction, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// List returns the records of sender, newest first. limit <= 0 returns all of them.
func (l *SQLiteLedger) List(ctx context.Context, sender interfaces.Address, limit int) ([]interfaces.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		selectColumns+` WHERE sender = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sender.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]interfaces.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*interfaces.Transaction, error) {
	var (
		tx                            interfaces.Transaction
		sender, amount, status        string
		receiver, productID, escrowID sql.NullString
		timestamp                     int64
	)
	err := s.Scan(&tx.ID, &tx.Function, &tx.Fingerprint, &sender, &receiver, &amount, &tx.Currency,
		&productID, &escrowID, &timestamp, &status, &tx.TxHash, &tx.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Sender, err = interfaces.ParseAddress(sender); err != nil {
		return nil, fmt.Errorf("invalid stored sender: %w", err)
	}
	if tx.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid stored amount: %w", err)
	}
	if tx.Receiver, err = parseNullableAddress(receiver); err != nil {
		return nil, err
	}
	if tx.ProductID, err = parseNullableAddress(productID); err != nil {
		return nil, err
	}
	if tx.EscrowID, err = parseNullableAddress(escrowID); err != nil {
		return nil, err
	}
	tx.Timestamp = time.Unix(0, timestamp).UTC()
	tx.Status = interfaces.TransactionStatus(status)
	return &tx, nil
}

func nullableAddress(a *interfaces.Address) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func parseNullableAddress(s sql.NullString) (*interfaces.Address, error) {
	if !s.Valid {
		return nil, nil
	}
	a, err := interfaces.ParseAddress(s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored address: %w", err)
	}
	return &a, nil
}

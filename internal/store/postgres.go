package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thales-maciel/rode/internal/domain"
	"github.com/thales-maciel/rode/internal/ledger"
)

// SQLSTATEs treated as transient contention: lock_not_available,
// serialization_failure, deadlock_detected.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PGStore is the durable ledger shared by all replicas. Serialization of
// conflicting writes happens here, at the row level, never in-process.
type PGStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func New(ctx context.Context, connString string, maxConns int32, lockTimeout time.Duration) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PGStore{db: pool, lockTimeout: lockTimeout}, nil
}

func (s *PGStore) Close() {
	s.db.Close()
}

// ApplyTransaction executes the serialized read-validate-write unit for
// one client: an exclusive row lock scopes the balance read, the limit
// check, the transaction append and the balance update, and all of it
// commits or none of it does. The row lock wait is capped by lock_timeout
// so a hot client cannot pin a connection indefinitely.
func (s *PGStore) ApplyTransaction(ctx context.Context, clientID int64, kind domain.TransactionKind, amount int64, description string) (domain.Client, error) {
	var client domain.Client

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return client, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds()))
		if err != nil {
			return client, fmt.Errorf("lock_timeout setup failed: %w", err)
		}
	}

	err = tx.QueryRow(ctx,
		"SELECT limit_amount, balance FROM clients WHERE id = $1 FOR UPDATE",
		clientID,
	).Scan(&client.Limit, &client.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return client, ledger.ErrClientNotFound
		}
		return client, classifyPgErr("lock acquisition failed", err)
	}
	client.ID = clientID

	candidate := client.Balance + amount
	if kind == domain.KindDebit {
		candidate = client.Balance - amount
		if candidate < -client.Limit {
			return client, ledger.ErrLimitExceeded
		}
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO transactions (client_id, kind, amount, description, occurred_at) VALUES ($1, $2, $3, $4, now())",
		clientID, string(kind), amount, description,
	)
	if err != nil {
		return client, classifyPgErr("transaction insert failed", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE clients SET balance = $1 WHERE id = $2",
		candidate, clientID,
	)
	if err != nil {
		return client, classifyPgErr("balance update failed", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return client, classifyPgErr("tx commit failed", err)
	}

	client.Balance = candidate
	return client, nil
}

// GetStatement reads the client row and their most recent transactions
// inside a single repeatable-read transaction, so the returned balance
// and list are one snapshot. No row lock is taken; writers to this or
// any other client are not blocked.
func (s *PGStore) GetStatement(ctx context.Context, clientID int64, recent int) (domain.Statement, error) {
	var stmt domain.Statement

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return stmt, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		"SELECT limit_amount, balance FROM clients WHERE id = $1",
		clientID,
	).Scan(&stmt.Balance.Limit, &stmt.Balance.Total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stmt, ledger.ErrClientNotFound
		}
		return stmt, fmt.Errorf("client lookup failed: %w", err)
	}
	stmt.Balance.Date = time.Now().UTC()

	rows, err := tx.Query(ctx,
		"SELECT amount, kind, description, occurred_at FROM transactions WHERE client_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2",
		clientID, recent,
	)
	if err != nil {
		return stmt, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	stmt.LastTransactions = []domain.StatementEntry{}
	for rows.Next() {
		var entry domain.StatementEntry
		var kind string
		if err := rows.Scan(&entry.Amount, &kind, &entry.Description, &entry.Date); err != nil {
			return stmt, fmt.Errorf("transaction scan failed: %w", err)
		}
		entry.Kind = domain.TransactionKind(kind)
		stmt.LastTransactions = append(stmt.LastTransactions, entry)
	}
	if err := rows.Err(); err != nil {
		return stmt, fmt.Errorf("transaction read failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return stmt, fmt.Errorf("tx commit failed: %w", err)
	}
	return stmt, nil
}

// GetClient retrieves a single client by id.
func (s *PGStore) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	var client domain.Client
	err := s.db.QueryRow(ctx,
		"SELECT id, limit_amount, balance FROM clients WHERE id = $1",
		id,
	).Scan(&client.ID, &client.Limit, &client.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return client, ledger.ErrClientNotFound
		}
		return client, err
	}
	return client, nil
}

// ReconcileBalances returns the ids of clients whose stored balance does
// not equal their seed balance plus the signed sum of their transactions.
// Audit check only, never on the request path.
func (s *PGStore) ReconcileBalances(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id
		FROM clients c
		LEFT JOIN transactions t ON t.client_id = c.id
		GROUP BY c.id, c.balance, c.seed_balance
		HAVING c.seed_balance + COALESCE(SUM(CASE WHEN t.kind = 'c' THEN t.amount ELSE -t.amount END), 0) <> c.balance`)
	if err != nil {
		return nil, fmt.Errorf("reconciliation query failed: %w", err)
	}
	defer rows.Close()

	var mismatched []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		mismatched = append(mismatched, id)
	}
	return mismatched, rows.Err()
}

func classifyPgErr(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s: %v", ledger.ErrContention, msg, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

package domain

import "time"

// TransactionKind is the wire value for the direction of a transaction.
type TransactionKind string

const (
	KindCredit TransactionKind = "c"
	KindDebit  TransactionKind = "d"
)

// Client represents an account holder. Limit is the maximum overdraft
// magnitude; Balance may never drop below -Limit.
type Client struct {
	ID      int64 `json:"id"`
	Limit   int64 `json:"limit"`
	Balance int64 `json:"balance"`
}

// Transaction is the immutable ledger record of a credit or debit.
type Transaction struct {
	ID          int64           `json:"id"`
	ClientID    int64           `json:"client_id"`
	Kind        TransactionKind `json:"kind"`
	Amount      int64           `json:"amount"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// TransactionRequest is the DTO for an incoming transaction, already
// decoded and integer-checked by the gateway.
type TransactionRequest struct {
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
}

// TransactionResponse is the body returned for an accepted transaction.
type TransactionResponse struct {
	Limit   int64 `json:"limit"`
	Balance int64 `json:"balance"`
}

// BalanceSummary is the snapshot header of a statement.
type BalanceSummary struct {
	Total int64     `json:"total"`
	Limit int64     `json:"limit"`
	Date  time.Time `json:"date"`
}

// StatementEntry is one transaction as rendered in a statement.
type StatementEntry struct {
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
}

// Statement is a consistent snapshot of a client's balance plus their
// most recent transactions, newest first.
type Statement struct {
	Balance          BalanceSummary   `json:"balance"`
	LastTransactions []StatementEntry `json:"last_transactions"`
}

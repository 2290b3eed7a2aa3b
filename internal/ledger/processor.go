package ledger

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/thales-maciel/rode/internal/domain"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Processed transactions by kind and outcome",
	}, []string{"kind", "outcome"})

	contentionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_contention_retries_total",
		Help: "Apply attempts retried after transient lock contention",
	})
)

// Store is the durable ledger the processor serializes through. Both
// operations are single atomic units against the shared database.
type Store interface {
	// ApplyTransaction locks the client row, validates the candidate
	// balance against the limit and commits the transaction row together
	// with the balance update. Returns the post-commit client state.
	ApplyTransaction(ctx context.Context, clientID int64, kind domain.TransactionKind, amount int64, description string) (domain.Client, error)

	// GetStatement returns the client's balance and their most recent
	// transactions as one consistent snapshot.
	GetStatement(ctx context.Context, clientID int64, recent int) (domain.Statement, error)
}

// Policy bounds the per-client serialization: how often a contended apply
// is retried and how long the processor backs off between attempts.
type Policy struct {
	MaxAttempts   int
	RetryBackoff  time.Duration
	StatementSize int
}

// DefaultPolicy matches the tuning documented in DESIGN.md.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		RetryBackoff:  5 * time.Millisecond,
		StatementSize: 10,
	}
}

// Processor validates incoming transactions and applies them through the
// store, retrying transient contention within the policy budget.
type Processor struct {
	store    Store
	policy   Policy
	validate *validator.Validate
}

func NewProcessor(store Store, policy Policy) *Processor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.StatementSize < 1 {
		policy.StatementSize = 10
	}
	return &Processor{
		store:    store,
		policy:   policy,
		validate: validator.New(),
	}
}

// transactionInput carries the validation tags for an incoming request.
type transactionInput struct {
	Amount      int64  `validate:"required,gt=0"`
	Kind        string `validate:"required,oneof=c d"`
	Description string `validate:"required,min=1,max=10"`
}

// ProcessTransaction runs the full accept path: validate, then apply
// atomically against the client's balance. Contention is retried with
// jittered backoff; after the attempt budget the request fails with
// ErrContention rather than waiting indefinitely on a hot client.
func (p *Processor) ProcessTransaction(ctx context.Context, clientID int64, req domain.TransactionRequest) (domain.TransactionResponse, error) {
	input := transactionInput{
		Amount:      req.Amount,
		Kind:        string(req.Kind),
		Description: req.Description,
	}
	if err := p.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			transactionsTotal.WithLabelValues(kindLabel(req.Kind), "invalid").Inc()
			return domain.TransactionResponse{}, &ValidationError{Reason: verrs[0].Field() + " failed " + verrs[0].Tag()}
		}
		return domain.TransactionResponse{}, err
	}

	var client domain.Client
	var err error
	for attempt := 1; ; attempt++ {
		client, err = p.store.ApplyTransaction(ctx, clientID, req.Kind, req.Amount, req.Description)
		if !errors.Is(err, ErrContention) || attempt >= p.policy.MaxAttempts {
			break
		}
		contentionRetries.Inc()
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return domain.TransactionResponse{}, ctx.Err()
		}
	}
	if err != nil {
		transactionsTotal.WithLabelValues(string(req.Kind), outcomeLabel(err)).Inc()
		return domain.TransactionResponse{}, err
	}

	transactionsTotal.WithLabelValues(string(req.Kind), "accepted").Inc()
	return domain.TransactionResponse{Limit: client.Limit, Balance: client.Balance}, nil
}

// GetStatement returns the consistent balance/recent-transactions snapshot.
func (p *Processor) GetStatement(ctx context.Context, clientID int64) (domain.Statement, error) {
	return p.store.GetStatement(ctx, clientID, p.policy.StatementSize)
}

// backoff grows linearly with the attempt and adds jitter so replicas
// hammering the same client row fan out instead of retrying in lockstep.
func (p *Processor) backoff(attempt int) time.Duration {
	base := p.policy.RetryBackoff * time.Duration(attempt)
	if base <= 0 {
		base = time.Millisecond
	}
	return base + time.Duration(rand.Int63n(int64(base)))
}

// kindLabel caps metric label cardinality; anything the validator would
// reject is folded into one bucket.
func kindLabel(kind domain.TransactionKind) string {
	if kind == domain.KindCredit || kind == domain.KindDebit {
		return string(kind)
	}
	return "other"
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrClientNotFound):
		return "not_found"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrContention):
		return "contention"
	default:
		return "error"
	}
}

package ledger

import (
	"errors"
	"fmt"
)

// Expected outcomes, mapped directly to client-facing status codes by the
// gateway. Only store failures outside this set are treated as faults.
var (
	ErrClientNotFound = errors.New("client not found")
	ErrLimitExceeded  = errors.New("limit exceeded")
	ErrContention     = errors.New("transaction contention")
)

// ValidationError marks a request the caller got wrong. It is returned
// before any state is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Reason)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package audit

import "context"

type Repository interface {
	// Append an event; events are never updated or deleted.
	Create(ctx context.Context, e *Event) error

	// List events of a loan, oldest first.
	ListByLoanID(ctx context.Context, loanID uint64) ([]Event, error)
}

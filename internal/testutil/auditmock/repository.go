package auditmock

import (
	"context"
	"sync"

	"loan-lifecycle-bridge/internal/domain/audit"
)

// Repo is a function-backed mock that satisfies audit.Repository. With nil
// funcs it records created events in memory.
type Repo struct {
	CreateFn       func(ctx context.Context, e *audit.Event) error
	ListByLoanIDFn func(ctx context.Context, loanID uint64) ([]audit.Event, error)

	mu     sync.Mutex
	Events []audit.Event
}

func (m *Repo) Create(ctx context.Context, e *audit.Event) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *e)
	return nil
}

func (m *Repo) ListByLoanID(ctx context.Context, loanID uint64) ([]audit.Event, error) {
	if m.ListByLoanIDFn != nil {
		return m.ListByLoanIDFn(ctx, loanID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []audit.Event{}
	for _, e := range m.Events {
		if e.LoanID == loanID {
			out = append(out, e)
		}
	}
	return out, nil
}

package loanmock

import (
	"context"

	domain "loan-lifecycle-bridge/internal/domain/loan"

	"github.com/shopspring/decimal"
)

// Backend is a function-backed mock that satisfies domain.Backend.
// Nil mutating funcs succeed with an empty receipt; nil reads return
// domain.ErrNotFound / an empty list.
type Backend struct {
	CreateFn         func(ctx context.Context, t domain.Terms) (domain.Receipt, error)
	FundFn           func(ctx context.Context, loanID uint64, amount decimal.Decimal, lender string) (domain.Receipt, error)
	DisburseFn       func(ctx context.Context, loanID uint64, borrower string) (domain.Receipt, error)
	RepayFn          func(ctx context.Context, loanID uint64, amount decimal.Decimal, borrower string) (domain.Receipt, error)
	GetFn            func(ctx context.Context, loanID uint64) (*domain.Loan, error)
	ListByBorrowerFn func(ctx context.Context, address string) ([]uint64, error)
	ModeName         string
}

func (m *Backend) Create(ctx context.Context, t domain.Terms) (domain.Receipt, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	return domain.Receipt{}, nil
}

func (m *Backend) Fund(ctx context.Context, loanID uint64, amount decimal.Decimal, lender string) (domain.Receipt, error) {
	if m.FundFn != nil {
		return m.FundFn(ctx, loanID, amount, lender)
	}
	return domain.Receipt{LoanID: loanID}, nil
}

func (m *Backend) Disburse(ctx context.Context, loanID uint64, borrower string) (domain.Receipt, error) {
	if m.DisburseFn != nil {
		return m.DisburseFn(ctx, loanID, borrower)
	}
	return domain.Receipt{LoanID: loanID}, nil
}

func (m *Backend) Repay(ctx context.Context, loanID uint64, amount decimal.Decimal, borrower string) (domain.Receipt, error) {
	if m.RepayFn != nil {
		return m.RepayFn(ctx, loanID, amount, borrower)
	}
	return domain.Receipt{LoanID: loanID}, nil
}

func (m *Backend) Get(ctx context.Context, loanID uint64) (*domain.Loan, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}

func (m *Backend) ListByBorrower(ctx context.Context, address string) ([]uint64, error) {
	if m.ListByBorrowerFn != nil {
		return m.ListByBorrowerFn(ctx, address)
	}
	return []uint64{}, nil
}

func (m *Backend) Mode() string {
	if m.ModeName == "" {
		return "local"
	}
	return m.ModeName
}

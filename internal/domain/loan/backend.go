package loan

import (
	"context"

	"github.com/shopspring/decimal"
)

// Receipt describes the effect of a mutating call. TxRef is empty for the
// local ledger.
type Receipt struct {
	LoanID      uint64
	TxRef       string
	BlockNumber uint64
	GasUsed     uint64
}

// Backend executes loan operations against one substrate. Implementations
// own every loan they create.
type Backend interface {
	Create(ctx context.Context, t Terms) (Receipt, error)
	Fund(ctx context.Context, loanID uint64, amount decimal.Decimal, lender string) (Receipt, error)
	Disburse(ctx context.Context, loanID uint64, borrower string) (Receipt, error)
	Repay(ctx context.Context, loanID uint64, amount decimal.Decimal, borrower string) (Receipt, error)
	Get(ctx context.Context, loanID uint64) (*Loan, error)
	ListByBorrower(ctx context.Context, address string) ([]uint64, error)
	// Mode names the substrate ("chain" or "local").
	Mode() string
}

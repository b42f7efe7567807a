package loan

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RepaymentPrecision is the number of fractional digits kept in TotalRepayment.
const RepaymentPrecision = 8

var (
	bpsDenominator = decimal.NewFromInt(10000)
	daysPerYear    = decimal.NewFromInt(365)
)

// TotalRepayment computes principal × (1 + rate/10000 × term/365) with simple
// interest, rounded to RepaymentPrecision.
func TotalRepayment(principal decimal.Decimal, rateBps, termDays uint64) decimal.Decimal {
	den := bpsDenominator.Mul(daysPerYear)
	num := den.Add(decimal.NewFromInt(int64(rateBps)).Mul(decimal.NewFromInt(int64(termDays))))
	return principal.Mul(num).DivRound(den, RepaymentPrecision)
}

// NewPending builds a freshly created loan from its terms.
func NewPending(id uint64, t Terms) *Loan {
	return &Loan{
		LoanID:               id,
		Borrower:             t.Borrower,
		Principal:            t.Principal,
		InterestRate:         t.InterestRate,
		TermDays:             t.TermDays,
		TotalRepayment:       TotalRepayment(t.Principal, t.InterestRate, t.TermDays),
		FundedAmount:         decimal.Zero,
		AmountRepaid:         decimal.Zero,
		Status:               StatusPending,
		KYCHash:              t.KYCHash,
		ExplanationHash:      t.ExplanationHash,
		RiskCategory:         t.RiskCategory,
		ProbabilityOfDefault: t.ProbabilityOfDefault,
	}
}

// ApplyFunding adds amount to the funded total. A pending loan becomes Funded
// the first time the total reaches the principal; other states are kept.
func (l *Loan) ApplyFunding(amount decimal.Decimal) {
	l.FundedAmount = l.FundedAmount.Add(amount)
	if l.Status == StatusPending && l.FundedAmount.GreaterThanOrEqual(l.Principal) {
		l.Status = StatusFunded
	}
}

// ApplyDisbursement moves the loan to Disbursed. Repaid is terminal; with
// strict set only Funded loans may be disbursed.
func (l *Loan) ApplyDisbursement(strict bool) error {
	if l.Status == StatusRepaid {
		return fmt.Errorf("%w: loan %d is repaid", ErrInvalidTransition, l.LoanID)
	}
	if strict && l.Status != StatusFunded {
		return fmt.Errorf("%w: loan %d is %s, want %s", ErrInvalidTransition, l.LoanID, l.Status, StatusFunded)
	}
	l.Status = StatusDisbursed
	return nil
}

// ApplyRepayment adds amount to the repaid total and marks the loan Repaid
// once the total repayment target is met.
func (l *Loan) ApplyRepayment(amount decimal.Decimal) {
	l.AmountRepaid = l.AmountRepaid.Add(amount)
	if l.AmountRepaid.GreaterThanOrEqual(l.TotalRepayment) {
		l.Status = StatusRepaid
	}
}

// Clone returns a copy safe to mutate independently.
func (l *Loan) Clone() *Loan {
	c := *l
	return &c
}

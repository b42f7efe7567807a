package ledger

import (
	"loan-lifecycle-bridge/internal/domain/loan"

	"github.com/shopspring/decimal"
)

// number is a decimal written as a bare JSON number.
type number decimal.Decimal

func (n number) MarshalJSON() ([]byte, error) { return []byte(decimal.Decimal(n).String()), nil }

// UnmarshalJSON accepts numbers and quoted strings.
func (n *number) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = number(d)
	return nil
}

// record is the persisted form of one loan.
type record struct {
	LoanID               uint64            `json:"loan_id"`
	Borrower             string            `json:"borrower"`
	Principal            number            `json:"principal"`
	InterestRate         uint64            `json:"interest_rate"`
	TermDays             uint64            `json:"term_days"`
	TotalRepayment       number            `json:"total_repayment"`
	FundedAmount         number            `json:"funded_amount"`
	AmountRepaid         number            `json:"amount_repaid"`
	Status               loan.Status       `json:"status"`
	KYCHash              string            `json:"kyc_hash"`
	ExplanationHash      string            `json:"explanation_hash"`
	RiskCategory         loan.RiskCategory `json:"risk_category,omitempty"`
	ProbabilityOfDefault uint64            `json:"probability_of_default"`
}

func toRecord(l *loan.Loan) record {
	return record{
		LoanID:               l.LoanID,
		Borrower:             l.Borrower,
		Principal:            number(l.Principal),
		InterestRate:         l.InterestRate,
		TermDays:             l.TermDays,
		TotalRepayment:       number(l.TotalRepayment),
		FundedAmount:         number(l.FundedAmount),
		AmountRepaid:         number(l.AmountRepaid),
		Status:               l.Status,
		KYCHash:              l.KYCHash,
		ExplanationHash:      l.ExplanationHash,
		RiskCategory:         l.RiskCategory,
		ProbabilityOfDefault: l.ProbabilityOfDefault,
	}
}

func (r *record) loan() *loan.Loan {
	return &loan.Loan{
		LoanID:               r.LoanID,
		Borrower:             r.Borrower,
		Principal:            decimal.Decimal(r.Principal),
		InterestRate:         r.InterestRate,
		TermDays:             r.TermDays,
		TotalRepayment:       decimal.Decimal(r.TotalRepayment),
		FundedAmount:         decimal.Decimal(r.FundedAmount),
		AmountRepaid:         decimal.Decimal(r.AmountRepaid),
		Status:               r.Status,
		KYCHash:              r.KYCHash,
		ExplanationHash:      r.ExplanationHash,
		RiskCategory:         r.RiskCategory,
		ProbabilityOfDefault: r.ProbabilityOfDefault,
	}
}

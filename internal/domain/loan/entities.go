package loan

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusFunded    Status = "Funded"
	StatusDisbursed Status = "Disbursed"
	StatusRepaid    Status = "Repaid"
)

// statusByCode follows the contract's enum order.
var statusByCode = []Status{StatusPending, StatusFunded, StatusDisbursed, StatusRepaid}

// StatusFromCode maps the on-chain uint8 status. Unknown codes yield "".
func StatusFromCode(code uint8) Status {
	if int(code) >= len(statusByCode) {
		return ""
	}
	return statusByCode[code]
}

type RiskCategory string

const (
	RiskLow    RiskCategory = "Low"
	RiskMedium RiskCategory = "Medium"
	RiskHigh   RiskCategory = "High"
)

// Code is the contract encoding of the category. Unrecognised values encode
// as Medium.
func (r RiskCategory) Code() uint8 {
	switch r {
	case RiskLow:
		return 0
	case RiskHigh:
		return 2
	default:
		return 1
	}
}

func (r RiskCategory) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

type Loan struct {
	LoanID               uint64          `json:"loan_id"`
	Borrower             string          `json:"borrower"`
	Principal            decimal.Decimal `json:"principal"`
	InterestRate         uint64          `json:"interest_rate"`
	TermDays             uint64          `json:"term_days"`
	TotalRepayment       decimal.Decimal `json:"total_repayment"`
	FundedAmount         decimal.Decimal `json:"funded_amount"`
	AmountRepaid         decimal.Decimal `json:"amount_repaid"`
	Status               Status          `json:"status"`
	KYCHash              string          `json:"kyc_hash"`
	ExplanationHash      string          `json:"explanation_hash"`
	RiskCategory         RiskCategory    `json:"risk_category,omitempty"`
	ProbabilityOfDefault uint64          `json:"probability_of_default"`
}

// BorrowedBy reports whether addr owns the loan, ignoring hex case.
func (l *Loan) BorrowedBy(addr string) bool {
	return strings.EqualFold(l.Borrower, addr)
}

// Terms are the creation arguments shared by both backends.
type Terms struct {
	Principal            decimal.Decimal
	TermDays             uint64
	InterestRate         uint64
	KYCHash              string
	ExplanationHash      string
	RiskCategory         RiskCategory
	ProbabilityOfDefault uint64
	Borrower             string
}

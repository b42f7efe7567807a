package loan

import (
	domain "loan-lifecycle-bridge/internal/domain/loan"

	"github.com/shopspring/decimal"
)

type CreateLoanInput struct {
	Principal            decimal.Decimal     `json:"principal"`
	TermDays             uint64              `json:"term_days"`
	InterestRate         uint64              `json:"interest_rate"`
	KYCHash              string              `json:"kyc_hash"`
	ExplanationHash      string              `json:"explanation_hash"`
	RiskCategory         domain.RiskCategory `json:"risk_category"`
	ProbabilityOfDefault uint64              `json:"probability_of_default"`
	BorrowerAddress      string              `json:"borrower_address"`
}

func (in CreateLoanInput) terms() domain.Terms {
	return domain.Terms{
		Principal:            in.Principal,
		TermDays:             in.TermDays,
		InterestRate:         in.InterestRate,
		KYCHash:              in.KYCHash,
		ExplanationHash:      in.ExplanationHash,
		RiskCategory:         in.RiskCategory,
		ProbabilityOfDefault: in.ProbabilityOfDefault,
		Borrower:             in.BorrowerAddress,
	}
}

// CreateLoanResult.TxRef is nil for the local ledger.
type CreateLoanResult struct {
	LoanID uint64  `json:"loan_id"`
	TxRef  *string `json:"transaction_hash"`
}

type TxResult struct {
	OK    bool    `json:"success"`
	TxRef *string `json:"transaction_hash"`
}

func txRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

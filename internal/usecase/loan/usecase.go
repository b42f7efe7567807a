package loan

import (
	"context"

	"loan-lifecycle-bridge/internal/domain/audit"
	domain "loan-lifecycle-bridge/internal/domain/loan"
	"loan-lifecycle-bridge/pkg/id"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Gate checks the KYC and explanation references of a new loan.
type Gate interface {
	Require(ctx context.Context, kycHash, explanationHash string) error
}

type Usecase struct {
	backend domain.Backend
	gate    Gate
	events  audit.Repository
	log     *logrus.Entry
}

// NewUsecase binds the bridge to the backend chosen at startup. events may be
// nil, which disables the journal.
func NewUsecase(b domain.Backend, g Gate, events audit.Repository, log *logrus.Entry) *Usecase {
	return &Usecase{backend: b, gate: g, events: events, log: log}
}

func (u *Usecase) Mode() string { return u.backend.Mode() }

func (u *Usecase) CreateLoan(ctx context.Context, in CreateLoanInput) (*CreateLoanResult, error) {
	if err := u.gate.Require(ctx, in.KYCHash, in.ExplanationHash); err != nil {
		u.log.WithError(err).WithField("borrower", in.BorrowerAddress).Warn("loan creation rejected")
		return nil, err
	}
	rc, err := u.backend.Create(ctx, in.terms())
	if err != nil {
		u.fail(err, audit.OpCreate, 0)
		return nil, err
	}
	u.journal(ctx, audit.OpCreate, rc.LoanID, in.BorrowerAddress, in.Principal, rc.TxRef)
	return &CreateLoanResult{LoanID: rc.LoanID, TxRef: txRef(rc.TxRef)}, nil
}

func (u *Usecase) FundLoan(ctx context.Context, loanID uint64, amount decimal.Decimal, lender string) (*TxResult, error) {
	rc, err := u.backend.Fund(ctx, loanID, amount, lender)
	if err != nil {
		u.fail(err, audit.OpFund, loanID)
		return nil, err
	}
	u.journal(ctx, audit.OpFund, loanID, lender, amount, rc.TxRef)
	return &TxResult{OK: true, TxRef: txRef(rc.TxRef)}, nil
}

func (u *Usecase) DisburseLoan(ctx context.Context, loanID uint64, borrower string) (*TxResult, error) {
	rc, err := u.backend.Disburse(ctx, loanID, borrower)
	if err != nil {
		u.fail(err, audit.OpDisburse, loanID)
		return nil, err
	}
	u.journal(ctx, audit.OpDisburse, loanID, borrower, decimal.Zero, rc.TxRef)
	return &TxResult{OK: true, TxRef: txRef(rc.TxRef)}, nil
}

func (u *Usecase) RepayLoan(ctx context.Context, loanID uint64, amount decimal.Decimal, borrower string) (*TxResult, error) {
	rc, err := u.backend.Repay(ctx, loanID, amount, borrower)
	if err != nil {
		u.fail(err, audit.OpRepay, loanID)
		return nil, err
	}
	u.journal(ctx, audit.OpRepay, loanID, borrower, amount, rc.TxRef)
	return &TxResult{OK: true, TxRef: txRef(rc.TxRef)}, nil
}

func (u *Usecase) GetLoan(ctx context.Context, loanID uint64) (*domain.Loan, error) {
	return u.backend.Get(ctx, loanID)
}

func (u *Usecase) ListLoansByBorrower(ctx context.Context, address string) ([]uint64, error) {
	ids, err := u.backend.ListByBorrower(ctx, address)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// ListEvents returns the journal of a loan, oldest first. Without a journal
// the list is empty.
func (u *Usecase) ListEvents(ctx context.Context, loanID uint64) ([]audit.Event, error) {
	if u.events == nil {
		return []audit.Event{}, nil
	}
	return u.events.ListByLoanID(ctx, loanID)
}

func (u *Usecase) fail(err error, op audit.Operation, loanID uint64) {
	f := logrus.Fields{"op": op, "backend": u.backend.Mode()}
	if loanID != 0 {
		f["loan_id"] = loanID
	}
	if ref := domain.TxRefOf(err); ref != "" {
		f["tx_ref"] = ref
	}
	u.log.WithError(err).WithFields(f).Error("loan operation failed")
}

// journal records an applied mutation. The mutation already happened, so a
// journal error is only logged.
func (u *Usecase) journal(ctx context.Context, op audit.Operation, loanID uint64, actor string, amount decimal.Decimal, ref string) {
	f := logrus.Fields{"op": op, "loan_id": loanID, "backend": u.backend.Mode()}
	if ref != "" {
		f["tx_ref"] = ref
	}
	u.log.WithFields(f).Info("loan operation applied")
	if u.events == nil {
		return
	}
	e := &audit.Event{
		EventID:   id.NewEventID(),
		LoanID:    loanID,
		Operation: op,
		Actor:     actor,
		Amount:    amount,
		TxRef:     ref,
		Backend:   u.backend.Mode(),
	}
	if err := u.events.Create(ctx, e); err != nil {
		u.log.WithError(err).WithFields(f).Error("audit journal write failed")
	}
}

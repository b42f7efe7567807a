package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	domain "loan-lifecycle-bridge/internal/domain/loan"
	"loan-lifecycle-bridge/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type createLoanReq struct {
	Principal            decimal.Decimal     `json:"principal"              validate:"principal"`
	TermDays             uint64              `json:"term_days"              validate:"gte=7,lte=365"`
	InterestRate         uint64              `json:"interest_rate"          validate:"lte=10000"`
	KYCHash              string              `json:"kyc_hash"               validate:"required,hash32"`
	ExplanationHash      string              `json:"explanation_hash"       validate:"required,hash32"`
	RiskCategory         domain.RiskCategory `json:"risk_category"          validate:"required,oneof=Low Medium High"`
	ProbabilityOfDefault uint64              `json:"probability_of_default" validate:"lte=10000"`
	BorrowerAddress      string              `json:"borrower_address"       validate:"required,eth_addr"`
}

type createLoanResp struct {
	Success bool    `json:"success"`
	LoanID  uint64  `json:"loan_id"`
	TxRef   *string `json:"transaction_hash"`
	Message string  `json:"message"`
}

type fundLoanReq struct {
	Amount        decimal.Decimal `json:"amount"         validate:"posdec"`
	LenderAddress string          `json:"lender_address" validate:"required,eth_addr"`
}

type disburseLoanReq struct {
	BorrowerAddress string `json:"borrower_address" validate:"required,eth_addr"`
}

type repayLoanReq struct {
	Amount          decimal.Decimal `json:"amount"           validate:"posdec"`
	BorrowerAddress string          `json:"borrower_address" validate:"required,eth_addr"`
}

type borrowerPath struct {
	Address string `json:"address" validate:"eth_addr"`
}

type borrowerLoansResp struct {
	Address string   `json:"address"`
	Loans   []uint64 `json:"loans"`
}

// bindValid binds the JSON body into req and validates it. It writes the
// error response itself and reports whether the handler may continue.
func bindValid(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		return false, c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	return true, nil
}

func loanIDParam(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("loan_id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.CreateLoan(c.Request().Context(), loan.CreateLoanInput(req))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createLoanResp{
		Success: true,
		LoanID:  res.LoanID,
		TxRef:   res.TxRef,
		Message: "Loan created successfully",
	})
}

func (h *LoanHandler) FundLoan(c echo.Context) error {
	id, ok := loanIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid loan_id path param"})
	}
	var req fundLoanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.FundLoan(c.Request().Context(), id, req.Amount, req.LenderAddress)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) DisburseLoan(c echo.Context) error {
	id, ok := loanIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid loan_id path param"})
	}
	var req disburseLoanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.DisburseLoan(c.Request().Context(), id, req.BorrowerAddress)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) RepayLoan(c echo.Context) error {
	id, ok := loanIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid loan_id path param"})
	}
	var req repayLoanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.uc.RepayLoan(c.Request().Context(), id, req.Amount, req.BorrowerAddress)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, ok := loanIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid loan_id path param"})
	}
	l, err := h.uc.GetLoan(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *LoanHandler) ListEvents(c echo.Context) error {
	id, ok := loanIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid loan_id path param"})
	}
	evs, err := h.uc.ListEvents(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, evs)
}

func (h *LoanHandler) ListBorrowerLoans(c echo.Context) error {
	p := borrowerPath{Address: c.Param("address")}
	if err := c.Validate(&p); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid address", Details: ToFieldErrors(err)})
	}
	ids, err := h.uc.ListLoansByBorrower(c.Request().Context(), p.Address)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, borrowerLoansResp{Address: p.Address, Loans: ids})
}

// Map domain errors → HTTP codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidReference), errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransactionReverted), errors.Is(err, domain.ErrRemoteCall):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfirmationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		// outcome unknown, the transaction may still be mined
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(code, ErrorResponse{Error: msg, TxRef: domain.TxRefOf(err)})
}

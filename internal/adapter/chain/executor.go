// Package chain executes loan operations against the escrow contract over
// JSON-RPC. Every mutating call signs a legacy EIP-155 transaction locally
// and blocks until its receipt is available or the confirmation ceiling
// elapses.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"loan-lifecycle-bridge/internal/domain/loan"
	"loan-lifecycle-bridge/pkg/units"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const Mode = "chain"

const (
	GasHeadroom     uint64 = 50000
	GasCreateOrFund uint64 = 300000
	GasDisburse     uint64 = 200000
	GasRepay        uint64 = 200000

	DefaultConfirmTimeout = 300 * time.Second
	DefaultPollInterval   = time.Second
)

var tracer = otel.Tracer("loan-lifecycle-bridge/chain")

type Options struct {
	ChainID        *big.Int
	Contract       common.Address
	Key            *ecdsa.PrivateKey
	ABI            abi.ABI
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	// Locker is optional. When set it is held together with the in-process
	// mutex while the nonce is read and the transaction sent.
	Locker Locker
}

type Executor struct {
	client   Client
	chainID  *big.Int
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	abi      abi.ABI
	signer   types.Signer
	confirm  time.Duration
	poll     time.Duration
	locker   Locker
	log      *logrus.Entry

	// mu serialises nonce read and send for the signing account.
	mu sync.Mutex
}

func New(client Client, o Options, log *logrus.Entry) (*Executor, error) {
	if o.Key == nil {
		return nil, errors.New("chain: signing key required")
	}
	if o.ChainID == nil || o.ChainID.Sign() <= 0 {
		return nil, errors.New("chain: chain id required")
	}
	if o.Contract == (common.Address{}) {
		return nil, errors.New("chain: contract address required")
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = DefaultConfirmTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return &Executor{
		client:   client,
		chainID:  o.ChainID,
		contract: o.Contract,
		key:      o.Key,
		from:     crypto.PubkeyToAddress(o.Key.PublicKey),
		abi:      o.ABI,
		signer:   types.NewEIP155Signer(o.ChainID),
		confirm:  o.ConfirmTimeout,
		poll:     o.PollInterval,
		locker:   o.Locker,
		log:      log,
	}, nil
}

func (e *Executor) Mode() string { return Mode }

// Account is the address transactions are signed with.
func (e *Executor) Account() common.Address { return e.from }

func (e *Executor) Contract() common.Address { return e.contract }

func (e *Executor) Close() { e.client.Close() }

// ParseKey decodes a hex private key, with or without 0x.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		// the decoder error never contains key material
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}
	return k, nil
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", loan.ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func (e *Executor) Create(ctx context.Context, t loan.Terms) (loan.Receipt, error) {
	rc, err := e.submit(ctx, methodCreate, nil, GasCreateOrFund,
		units.ToBaseUnits(t.Principal),
		new(big.Int).SetUint64(t.TermDays),
		new(big.Int).SetUint64(t.InterestRate),
		toBytes32(t.KYCHash),
		toBytes32(t.ExplanationHash),
		t.RiskCategory.Code(),
		new(big.Int).SetUint64(t.ProbabilityOfDefault),
	)
	if err != nil {
		return rc.Receipt, err
	}
	id, ok := e.createdLoanID(rc.logs)
	if !ok {
		e.log.WithField("tx_ref", rc.TxRef).Warn("LoanCreated event not found in receipt, reporting loan id 0")
	}
	rc.LoanID = id
	return rc.Receipt, nil
}

func (e *Executor) Fund(ctx context.Context, loanID uint64, amount decimal.Decimal, lender string) (loan.Receipt, error) {
	rc, err := e.submit(ctx, methodFund, units.ToBaseUnits(amount), GasCreateOrFund, new(big.Int).SetUint64(loanID))
	rc.LoanID = loanID
	return rc.Receipt, err
}

func (e *Executor) Disburse(ctx context.Context, loanID uint64, borrower string) (loan.Receipt, error) {
	rc, err := e.submit(ctx, methodDisburse, nil, GasDisburse, new(big.Int).SetUint64(loanID))
	rc.LoanID = loanID
	return rc.Receipt, err
}

func (e *Executor) Repay(ctx context.Context, loanID uint64, amount decimal.Decimal, borrower string) (loan.Receipt, error) {
	rc, err := e.submit(ctx, methodRepay, units.ToBaseUnits(amount), GasRepay, new(big.Int).SetUint64(loanID))
	rc.LoanID = loanID
	return rc.Receipt, err
}

type submitted struct {
	loan.Receipt
	logs []*types.Log
}

// submit runs one transaction through estimate, sign, send and confirm.
// Every error after a successful send carries the tx ref.
func (e *Executor) submit(ctx context.Context, method string, value *big.Int, fallbackGas uint64, args ...interface{}) (submitted, error) {
	ctx, span := tracer.Start(ctx, "chain."+method, trace.WithAttributes(
		attribute.String("contract", e.contract.Hex()),
		attribute.String("account", e.from.Hex()),
	))
	defer span.End()

	if value == nil {
		value = new(big.Int)
	}
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return submitted{}, fail(span, &loan.TxError{Op: method, Err: fmt.Errorf("encode arguments: %w", err)})
	}
	gas := e.estimateGas(ctx, method, value, data, fallbackGas)
	span.SetAttributes(attribute.Int64("gas_limit", int64(gas)))

	tx, err := e.signAndSend(ctx, method, value, gas, data)
	if err != nil {
		return submitted{}, fail(span, err)
	}
	ref := tx.Hash().Hex()
	span.SetAttributes(attribute.String("tx_ref", ref))
	log := e.log.WithFields(logrus.Fields{"op": method, "tx_ref": ref, "nonce": tx.Nonce(), "gas": gas})
	log.Info("transaction sent")

	r, err := e.waitMined(ctx, tx.Hash())
	if err != nil {
		log.WithError(err).Error("transaction not confirmed")
		return submitted{}, fail(span, &loan.TxError{Op: method, TxRef: ref, Err: err})
	}
	out := submitted{
		Receipt: loan.Receipt{TxRef: ref, BlockNumber: blockNumber(r), GasUsed: r.GasUsed},
		logs:    r.Logs,
	}
	if r.Status != types.ReceiptStatusSuccessful {
		log.WithField("block", out.BlockNumber).Error("transaction reverted")
		return out, fail(span, &loan.TxError{Op: method, TxRef: ref, Err: loan.ErrTransactionReverted})
	}
	log.WithFields(logrus.Fields{"block": out.BlockNumber, "gas_used": r.GasUsed}).Info("transaction confirmed")
	return out, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (e *Executor) estimateGas(ctx context.Context, method string, value *big.Int, data []byte, fallback uint64) uint64 {
	est, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &e.contract, Value: value, Data: data})
	if err != nil {
		est = fallback
		e.log.WithError(err).WithFields(logrus.Fields{"op": method, "gas": est + GasHeadroom}).Warn("gas estimation failed, using static budget")
	}
	return est + GasHeadroom
}

func (e *Executor) signAndSend(ctx context.Context, method string, value *big.Int, gas uint64, data []byte) (*types.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "nonce:"+e.from.Hex())
		if err != nil {
			return nil, &loan.TxError{Op: method, Err: err}
		}
		defer unlock()
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, &loan.TxError{Op: method, Err: fmt.Errorf("%w: pending nonce: %v", loan.ErrRemoteCall, err)}
	}
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &loan.TxError{Op: method, Err: fmt.Errorf("%w: gas price: %v", loan.ErrRemoteCall, err)}
	}
	to := e.contract
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	}), e.signer, e.key)
	if err != nil {
		return nil, &loan.TxError{Op: method, Err: fmt.Errorf("sign: %w", err)}
	}
	if err := e.client.SendTransaction(ctx, tx); err != nil {
		return nil, &loan.TxError{Op: method, Err: fmt.Errorf("%w: send: %v", loan.ErrRemoteCall, err)}
	}
	return tx, nil
}

// waitMined polls for the receipt until it exists, ctx ends, or the
// confirmation ceiling elapses. Lookup errors other than "not found" are
// treated as transient.
func (e *Executor) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, e.confirm)
	defer cancel()

	tick := time.NewTicker(e.poll)
	defer tick.Stop()
	for {
		r, err := e.client.TransactionReceipt(wctx, hash)
		if err == nil && r != nil {
			return r, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			e.log.WithError(err).WithField("tx_ref", hash.Hex()).Debug("receipt lookup failed")
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w after %s", loan.ErrConfirmationTimeout, e.confirm)
		case <-tick.C:
		}
	}
}

func blockNumber(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

// createdLoanID reads loanId from the first LoanCreated log emitted by the
// contract.
func (e *Executor) createdLoanID(logs []*types.Log) (uint64, bool) {
	ev, ok := e.abi.Events[eventLoanCreated]
	if !ok {
		return 0, false
	}
	for _, l := range logs {
		if l == nil || l.Address != e.contract || len(l.Topics) < 2 || l.Topics[0] != ev.ID {
			continue
		}
		id := new(big.Int).SetBytes(l.Topics[1].Bytes())
		if !id.IsUint64() {
			continue
		}
		return id.Uint64(), true
	}
	return 0, false
}

// loanTuple mirrors the getLoan return struct.
type loanTuple struct {
	LoanId          *big.Int
	Borrower        common.Address
	Principal       *big.Int
	InterestRate    *big.Int
	TermDays        *big.Int
	TotalRepayment  *big.Int
	AmountRepaid    *big.Int
	Status          uint8
	KycHash         [32]byte
	ExplanationHash [32]byte
}

// Get reads a loan through the getLoan view. The contract does not expose
// the funded total, risk category or probability of default, so those stay
// zero.
func (e *Executor) Get(ctx context.Context, loanID uint64) (*loan.Loan, error) {
	out, err := e.call(ctx, methodGetLoan, new(big.Int).SetUint64(loanID))
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %d", loan.ErrNotFound, loanID)
		}
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getLoan returned %d values", loan.ErrRemoteCall, len(out))
	}
	t, err := convertLoan(out[0])
	if err != nil {
		return nil, fmt.Errorf("%w: getLoan: %v", loan.ErrRemoteCall, err)
	}
	if t.LoanId == nil || t.LoanId.Sign() == 0 || t.Borrower == (common.Address{}) {
		return nil, fmt.Errorf("%w: %d", loan.ErrNotFound, loanID)
	}
	return &loan.Loan{
		LoanID:          t.LoanId.Uint64(),
		Borrower:        t.Borrower.Hex(),
		Principal:       units.FromBaseUnits(t.Principal),
		InterestRate:    t.InterestRate.Uint64(),
		TermDays:        t.TermDays.Uint64(),
		TotalRepayment:  units.FromBaseUnits(t.TotalRepayment),
		FundedAmount:    decimal.Zero,
		AmountRepaid:    units.FromBaseUnits(t.AmountRepaid),
		Status:          loan.StatusFromCode(t.Status),
		KYCHash:         common.Hash(t.KycHash).Hex(),
		ExplanationHash: common.Hash(t.ExplanationHash).Hex(),
	}, nil
}

// convertLoan guards against an artifact ABI whose getLoan tuple differs
// from loanTuple; abi.ConvertType panics on mismatch.
func convertLoan(v interface{}) (t *loanTuple, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected getLoan layout: %v", r)
		}
	}()
	t, ok := abi.ConvertType(v, new(loanTuple)).(*loanTuple)
	if !ok {
		return nil, errors.New("unexpected getLoan layout")
	}
	return t, nil
}

// ListByBorrower degrades to an empty list when the contract has no
// getBorrowerLoans view or the call fails.
func (e *Executor) ListByBorrower(ctx context.Context, address string) ([]uint64, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	log := e.log.WithField("borrower", addr.Hex())
	if _, ok := e.abi.Methods[methodBorrowerLoan]; !ok {
		log.Warn("contract has no getBorrowerLoans, returning empty list")
		return []uint64{}, nil
	}
	out, err := e.call(ctx, methodBorrowerLoan, addr)
	if err != nil {
		log.WithError(err).Warn("getBorrowerLoans failed, returning empty list")
		return []uint64{}, nil
	}
	var raw []*big.Int
	if len(out) == 1 {
		raw, _ = out[0].([]*big.Int)
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		if v != nil && v.IsUint64() {
			ids = append(ids, v.Uint64())
		}
	}
	return ids, nil
}

func (e *Executor) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: encode %s: %w", method, err)
	}
	res, err := e.client.CallContract(ctx, ethereum.CallMsg{From: e.from, To: &e.contract, Data: data}, nil)
	if err != nil {
		return nil, &callError{method: method, err: err}
	}
	out, err := e.abi.Unpack(method, res)
	if err != nil {
		// an empty result from a reverted view decodes as an error too
		if len(res) == 0 {
			return nil, &callError{method: method, err: errRevert}
		}
		return nil, fmt.Errorf("%w: decode %s: %v", loan.ErrRemoteCall, method, err)
	}
	return out, nil
}

var errRevert = errors.New("execution reverted")

type callError struct {
	method string
	err    error
}

func (e *callError) Error() string { return fmt.Sprintf("%s call: %v", e.method, e.err) }

func (e *callError) Is(target error) bool { return target == loan.ErrRemoteCall }

func (e *callError) Unwrap() error { return e.err }

// isRevert reports whether a view call was rejected by the contract rather
// than by the transport.
func isRevert(err error) bool {
	var ce *callError
	if !errors.As(err, &ce) {
		return false
	}
	if errors.Is(ce.err, errRevert) {
		return true
	}
	var de interface{ ErrorData() interface{} }
	if errors.As(ce.err, &de) {
		return true
	}
	return strings.Contains(strings.ToLower(ce.err.Error()), "revert")
}

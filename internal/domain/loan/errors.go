package loan

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReference    = errors.New("invalid kyc or explanation reference")
	ErrNotFound            = errors.New("loan not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
	ErrBackendUnavailable  = errors.New("remote ledger unavailable")
	ErrRemoteCall          = errors.New("remote ledger call failed")
	ErrPersistenceFailure  = errors.New("local ledger persistence failure")
)

// TxError reports a failure of a submitted transaction. TxRef is set whenever
// the transaction reached the remote ledger, so it can be inspected manually.
type TxError struct {
	Op    string
	TxRef string
	Err   error
}

func (e *TxError) Error() string {
	if e.TxRef == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (tx %s): %v", e.Op, e.TxRef, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// TxRefOf extracts the transaction reference carried by err, if any.
func TxRefOf(err error) string {
	var te *TxError
	if errors.As(err, &te) {
		return te.TxRef
	}
	return ""
}

package escrow

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

var (
	ErrVerificationMismatch   = errors.New("escrow: on-chain state does not match expectation")
	ErrAccountNotFound        = errors.New("escrow: account not found")
	ErrUnderpaidExchange      = errors.New("escrow: exchange delivered an unexpected amount")
	ErrConfirmationTimeout    = errors.New("escrow: transaction was not confirmed in time")
	ErrTransactionFailed      = errors.New("escrow: transaction failed")
	ErrInvalidStateTransition = errors.New("escrow: invalid state transition")
	ErrInvalidTerms           = errors.New("escrow: invalid terms")
	ErrNotMatured             = errors.New("escrow: not matured yet")
)

// VerificationError describes the first field that disagreed with what the
// coordinator expected to read back from the chain.
type VerificationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, got %s", ErrVerificationMismatch.Error(), e.Field, e.Expected, e.Actual)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationMismatch
}

// BalanceError reports the taker's balance around an exchange that did not
// credit exactly the expected amount.
type BalanceError struct {
	Before   uint64
	After    uint64
	Expected uint64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s: balance went from %d to %d, expected an increase of %d", ErrUnderpaidExchange.Error(), e.Before, e.After, e.Expected)
}

func (e *BalanceError) Unwrap() error {
	return ErrUnderpaidExchange
}

// MaturityError reports an escrow whose recorded expire date has not been
// reached, so the program would refuse to release it.
type MaturityError struct {
	ExpireDate uint64
	Now        uint64
}

func (e *MaturityError) Error() string {
	return fmt.Sprintf("%s: releasable at %d, now %d", ErrNotMatured.Error(), e.ExpireDate, e.Now)
}

func (e *MaturityError) Unwrap() error {
	return ErrNotMatured
}

// TransactionFailedError carries the chain's reason for rejecting or failing
// a submitted transaction.
type TransactionFailedError struct {
	Signature solana.Signature
	Err       *solana.TransactionError
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransactionFailed.Error(), e.Signature.String(), e.Err)
}

func (e *TransactionFailedError) Unwrap() error {
	return ErrTransactionFailed
}

// IsLayoutError reports whether err was caused by escrow account bytes that
// don't match the 113 byte layout.
func IsLayoutError(err error) bool {
	return escrow_program.IsLayoutError(err)
}

// isVerificationFailure reports whether err means the chain state contradicts
// the swap, as opposed to the chain being unreachable.
func isVerificationFailure(err error) bool {
	return errors.Is(err, ErrVerificationMismatch) ||
		errors.Is(err, ErrAccountNotFound) ||
		IsLayoutError(err)
}

// isTransient reports whether a gateway error is worth retrying. Missing
// accounts, rejected transactions and malformed data are answers, not
// failures.
func isTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, solana.ErrNoAccountInfo), errors.Is(err, solana.ErrNoBalance):
		return false
	case errors.Is(err, token.ErrAccountNotFound), errors.Is(err, token.ErrInvalidTokenAccount):
		return false
	case IsLayoutError(err), errors.Is(err, ErrTransactionFailed):
		return false
	}

	var txErr *solana.TransactionError
	return !errors.As(err, &txErr)
}

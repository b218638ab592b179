package escrow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

func TestErrorCategories(t *testing.T) {
	verificationErr := errors.Wrap(&VerificationError{Field: "receiver", Expected: "a", Actual: "b"}, "context")
	assert.ErrorIs(t, verificationErr, ErrVerificationMismatch)
	assert.Contains(t, verificationErr.Error(), "receiver: expected a, got b")

	balanceErr := &BalanceError{Before: 1, After: 2, Expected: 3}
	assert.ErrorIs(t, balanceErr, ErrUnderpaidExchange)
	assert.False(t, errors.Is(balanceErr, ErrVerificationMismatch))

	failure := &TransactionFailedError{Err: solana.NewTransactionError(solana.TransactionErrorAccountInUse)}
	assert.ErrorIs(t, failure, ErrTransactionFailed)
	assert.Contains(t, failure.Error(), "AccountInUse")

	maturityErr := &MaturityError{ExpireDate: 20, Now: 10}
	assert.ErrorIs(t, maturityErr, ErrNotMatured)
	assert.False(t, errors.Is(maturityErr, ErrVerificationMismatch))

	assert.True(t, IsLayoutError(errors.Wrap(escrow_program.ErrInvalidLength, "decode")))
	assert.False(t, IsLayoutError(ErrAccountNotFound))
}

func TestIsVerificationFailure(t *testing.T) {
	for _, err := range []error{
		&VerificationError{Field: "escrow.owner"},
		errors.Wrap(ErrAccountNotFound, "escrow"),
		errors.Wrap(escrow_program.ErrInvalidLength, "decode"),
	} {
		assert.True(t, isVerificationFailure(err), err.Error())
	}

	for _, err := range []error{
		solana.ErrRateLimited,
		context.Canceled,
		&MaturityError{},
	} {
		assert.False(t, isVerificationFailure(err), err.Error())
	}
}

func TestIsTransient(t *testing.T) {
	for _, err := range []error{
		solana.ErrRateLimited,
		solana.ErrServiceUnavailable,
		errors.New("connection reset"),
	} {
		assert.True(t, isTransient(err), err.Error())
	}

	for _, err := range []error{
		nil,
		context.Canceled,
		errors.Wrap(context.DeadlineExceeded, "rpc"),
		solana.ErrNoAccountInfo,
		solana.ErrNoBalance,
		token.ErrAccountNotFound,
		token.ErrInvalidTokenAccount,
		escrow_program.ErrInvalidLength,
		solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound),
		&TransactionFailedError{Err: solana.NewTransactionError(solana.TransactionErrorAccountInUse)},
	} {
		assert.False(t, isTransient(err), "%v", err)
	}
}

package escrow

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/retry"
	"github.com/code-payments/code-escrow/pkg/retry/backoff"
	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
)

// submit signs and sends a transaction paid for by the first signer.
// Transient gateway failures are retried; a rejection by the chain is not.
func (c *Coordinator) submit(ctx context.Context, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	if len(signers) == 0 {
		return solana.Signature{}, errors.New("at least one signer is required")
	}

	var blockhash solana.Blockhash
	err := c.withRetry(ctx, func() (err error) {
		blockhash, err = c.gateway.GetLatestBlockhash()
		return err
	})
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to get latest blockhash")
	}

	txn := solana.NewTransaction(signers[0].Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(signers...); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	sig := txn.Signature()
	commitment := c.commitment(ctx)

	err = c.withRetry(ctx, func() error {
		_, err := c.gateway.SubmitTransaction(txn, commitment)
		return err
	})

	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		// A previous attempt that timed out may have landed.
		if txErr.ErrorKey() == solana.TransactionErrorDuplicateSignature {
			return sig, nil
		}

		return sig, &TransactionFailedError{Signature: sig, Err: txErr}
	} else if err != nil {
		return sig, errors.Wrap(err, "failed to submit transaction")
	}

	return sig, nil
}

// awaitConfirmation polls the signature status with exponential backoff until
// it reaches the configured commitment.
func (c *Coordinator) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	commitment := c.commitment(ctx)
	maxAttempts := c.conf.confirmationMaxAttempts.Get(ctx)

	attempts, err := retry.RetryContext(
		ctx,
		func() error {
			statuses, err := c.gateway.GetSignatureStatuses([]solana.Signature{sig})
			if err != nil {
				return err
			}

			if len(statuses) == 0 || statuses[0] == nil {
				return errNotConfirmed
			}

			status := statuses[0]
			if status.ErrorResult != nil {
				return &TransactionFailedError{Signature: sig, Err: status.ErrorResult}
			}
			if !status.Reached(commitment) {
				return errNotConfirmed
			}

			return nil
		},
		retry.Limit(uint(maxAttempts)),
		retry.Filter(func(err error) bool {
			return errors.Is(err, errNotConfirmed) || isTransient(err)
		}),
		retry.BackoffContext(
			ctx,
			backoff.BinaryExponential(c.conf.confirmationBaseDelay.Get(ctx)),
			c.conf.confirmationMaxDelay.Get(ctx),
		),
	)

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	if errors.Is(err, errNotConfirmed) {
		return errors.Wrapf(ErrConfirmationTimeout, "%s not %s after %d attempts", sig.String(), commitment.Commitment, attempts)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to confirm %s", sig.String())
	}

	return nil
}

func (c *Coordinator) getAccountInfo(ctx context.Context, account ed25519.PublicKey) (solana.AccountInfo, error) {
	var info solana.AccountInfo
	err := c.withRetry(ctx, func() (err error) {
		info, err = c.gateway.GetAccountInfo(account, c.commitment(ctx))
		return err
	})
	if errors.Is(err, solana.ErrNoAccountInfo) {
		return info, errors.Wrap(ErrAccountNotFound, base58.Encode(account))
	} else if err != nil {
		return info, errors.Wrapf(err, "failed to get account info for %s", base58.Encode(account))
	}

	return info, nil
}

func (c *Coordinator) getEscrowAccount(ctx context.Context, address ed25519.PublicKey) (*escrow_program.EscrowAccount, error) {
	info, err := c.getAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(info.Owner, c.program) {
		return nil, &VerificationError{
			Field:    "escrow.owner",
			Expected: base58.Encode(c.program),
			Actual:   base58.Encode(info.Owner),
		}
	}

	var account escrow_program.EscrowAccount
	if err := account.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrapf(err, "failed to decode escrow %s", base58.Encode(address))
	}

	return &account, nil
}

func (c *Coordinator) getTokenBalance(ctx context.Context, account ed25519.PublicKey) (uint64, error) {
	var balance uint64
	err := c.withRetry(ctx, func() (err error) {
		balance, _, err = c.gateway.GetTokenAccountBalance(account)
		return err
	})
	if errors.Is(err, solana.ErrNoBalance) {
		return 0, errors.Wrapf(ErrAccountNotFound, "token account %s", base58.Encode(account))
	} else if err != nil {
		return 0, errors.Wrapf(err, "failed to get token balance for %s", base58.Encode(account))
	}

	return balance, nil
}

func (c *Coordinator) getRentExemption(ctx context.Context, size uint64) (uint64, error) {
	var lamports uint64
	err := c.withRetry(ctx, func() (err error) {
		lamports, err = c.gateway.GetMinimumBalanceForRentExemption(size)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get rent exemption for %d bytes", size)
	}

	return lamports, nil
}

// withRetry runs a gateway call, retrying transient failures with backoff.
func (c *Coordinator) withRetry(ctx context.Context, action retry.Action) error {
	_, err := retry.RetryContext(
		ctx,
		action,
		retry.Limit(uint(c.conf.rpcMaxAttempts.Get(ctx))),
		retry.Filter(isTransient),
		retry.BackoffContext(
			ctx,
			backoff.BinaryExponential(c.conf.rpcBaseDelay.Get(ctx)),
			c.conf.rpcMaxDelay.Get(ctx),
		),
	)

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return err
}

package escrow

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/metrics"
	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

var errNotConfirmed = errors.New("transaction not yet confirmed")

// Coordinator drives a two party swap through the escrow program, verifying
// on-chain state after every transaction before moving on.
type Coordinator struct {
	log         *logrus.Entry
	conf        *conf
	gateway     Gateway
	tokenClient *token.Client
	program     ed25519.PublicKey
	now         func() time.Time
}

func NewCoordinator(gateway Gateway, program ed25519.PublicKey, configProvider ConfigProvider) *Coordinator {
	return &Coordinator{
		log:         logrus.StandardLogger().WithField("type", "escrow/coordinator"),
		conf:        configProvider(),
		gateway:     gateway,
		tokenClient: token.NewClient(gateway),
		program:     program,
		now:         time.Now,
	}
}

type InitializeArgs struct {
	Initializer             ed25519.PrivateKey
	InitializerTokenAccount ed25519.PublicKey
	Mint                    ed25519.PublicKey
	Receiver                ed25519.PublicKey
	Terms                   Terms
}

type ExchangeArgs struct {
	Handle            *Handle
	Taker             ed25519.PrivateKey
	TakerTokenAccount ed25519.PublicKey
	Terms             Terms
}

type Result struct {
	Signature          solana.Signature
	TakerBalanceBefore uint64
	TakerBalanceAfter  uint64
}

// Initialize moves the initializer's offer into a fresh temp token account and
// records the swap in a fresh escrow account in one transaction. The program
// takes authority over the temp account as part of its Initialize; if it
// didn't, the initializer reassigns it in a second transaction before the
// escrow is reported as initialized.
//
// Once the transaction has been submitted, the returned handle is non-nil
// even on error, and reports StateFailed.
func (c *Coordinator) Initialize(ctx context.Context, args *InitializeArgs) (*Handle, error) {
	tracer := metrics.StartSegment(ctx, metricsStructName, "Initialize")
	defer tracer.End()

	start := time.Now()

	if err := args.Terms.Validate(); err != nil {
		tracer.Fail(err)
		return nil, err
	}

	initializer := args.Initializer.Public().(ed25519.PublicKey)

	tempPublic, tempKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate temp token account key")
	}
	escrowPublic, escrowKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate escrow account key")
	}

	authority, _, err := escrow_program.GetAuthorityAddress(c.program)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive program authority")
	}

	handle := &Handle{
		Program:          c.program,
		Escrow:           escrowPublic,
		Initializer:      initializer,
		TempTokenAccount: tempPublic,
		Receiver:         args.Receiver,
		ExpectedAmount:   args.Terms.TransferAmount,
		State:            StateUninitialized,
	}

	log := c.log.WithFields(logrus.Fields{
		"method":      "Initialize",
		"escrow":      base58.Encode(escrowPublic),
		"initializer": base58.Encode(initializer),
		"receiver":    base58.Encode(args.Receiver),
		"amount":      args.Terms.TransferAmount,
	})

	tempRent, err := c.getRentExemption(ctx, token.AccountSize)
	if err != nil {
		tracer.Fail(err)
		return nil, err
	}
	escrowRent, err := c.getRentExemption(ctx, escrow_program.EscrowAccountSize)
	if err != nil {
		tracer.Fail(err)
		return nil, err
	}

	if err := handle.transition(StateInitializing); err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{
		system.CreateAccount(initializer, tempPublic, token.ProgramKey, tempRent, token.AccountSize),
		token.InitializeAccount(tempPublic, args.Mint, initializer),
		token.Transfer(args.InitializerTokenAccount, tempPublic, initializer, args.Terms.TransferAmount),
		system.CreateAccount(initializer, escrowPublic, c.program, escrowRent, escrow_program.EscrowAccountSize),
		escrow_program.NewInitializeInstruction(
			&escrow_program.InitializeInstructionAccounts{
				Program:          c.program,
				Initializer:      initializer,
				TempTokenAccount: tempPublic,
				Receiver:         args.Receiver,
				Escrow:           escrowPublic,
			},
			&escrow_program.InitializeInstructionArgs{
				ExpectedAmount: args.Terms.TransferAmount,
			},
		),
	}

	sig, err := c.submit(ctx, []ed25519.PrivateKey{args.Initializer, tempKey, escrowKey}, instructions...)
	if err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}
	handle.InitializeSignature = sig
	log = log.WithField("signature", sig.String())

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}

	account, err := c.getEscrowAccount(ctx, escrowPublic)
	if err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}
	if err := verifyInitialized(handle, account); err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}
	handle.Account = *account

	if err := c.handOffTempTokenAccount(ctx, log, handle, args.Initializer, args.Mint, authority); err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}
	if err := c.verifyTempTokenAccount(ctx, handle, args.Mint, authority); err != nil {
		return handle, c.fail(ctx, log, handle, err)
	}

	if err := handle.transition(StateInitialized); err != nil {
		return handle, err
	}

	log.Debug("escrow initialized")
	recordInitializedEvent(ctx, handle, time.Since(start))

	return handle, nil
}

// Exchange releases the escrowed tokens to the taker. Before submitting it
// verifies the escrow is still live and records the agreed amount, and
// afterwards that both the escrow and temp token accounts are gone and that
// the taker received exactly that amount.
func (c *Coordinator) Exchange(ctx context.Context, args *ExchangeArgs) (*Result, error) {
	tracer := metrics.StartSegment(ctx, metricsStructName, "Exchange")
	defer tracer.End()

	start := time.Now()

	handle := args.Handle
	if handle == nil {
		return nil, errors.Wrap(ErrInvalidStateTransition, "no escrow handle provided")
	}
	if err := args.Terms.Validate(); err != nil {
		tracer.Fail(err)
		return nil, err
	}
	if !handle.State.CanTransitionTo(StateExchanging) {
		return nil, errors.Wrapf(ErrInvalidStateTransition, "cannot exchange an escrow that is %s", handle.State)
	}

	taker := args.Taker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": "Exchange",
		"escrow": base58.Encode(handle.Escrow),
		"taker":  base58.Encode(taker),
		"amount": args.Terms.TransferAmount,
	})

	account, err := c.getEscrowAccount(ctx, handle.Escrow)
	if err != nil {
		tracer.Fail(err)
		if isVerificationFailure(err) {
			return nil, c.fail(ctx, log, handle, err)
		}
		return nil, err
	}
	if err := verifyExchangeable(handle, account, args.Terms); err != nil {
		tracer.Fail(err)
		return nil, c.fail(ctx, log, handle, err)
	}
	handle.Account = *account

	if c.conf.enforceMaturity.Get(ctx) {
		now := uint64(c.now().Unix())
		if now < account.ExpireDate {
			err := &MaturityError{ExpireDate: account.ExpireDate, Now: now}
			tracer.Fail(err)
			log.WithError(err).Debug("escrow not matured yet")
			return nil, err
		}
	}

	authority, _, err := escrow_program.GetAuthorityAddress(c.program)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive program authority")
	}

	before, err := c.getTokenBalance(ctx, args.TakerTokenAccount)
	if err != nil {
		tracer.Fail(err)
		return nil, err
	}

	if err := handle.transition(StateExchanging); err != nil {
		return nil, err
	}

	instruction := escrow_program.NewExchangeInstruction(
		&escrow_program.ExchangeInstructionAccounts{
			Program:            c.program,
			Taker:              taker,
			TakerTokenAccount:  args.TakerTokenAccount,
			TempTokenAccount:   account.TempTokenAccount,
			InitializerAccount: account.Initializer,
			Escrow:             handle.Escrow,
			Authority:          authority,
		},
		&escrow_program.ExchangeInstructionArgs{
			Amount: args.Terms.TransferAmount,
		},
	)

	sig, err := c.submit(ctx, []ed25519.PrivateKey{args.Taker}, instruction)
	if err != nil {
		return nil, c.fail(ctx, log, handle, err)
	}
	log = log.WithField("signature", sig.String())

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return nil, c.fail(ctx, log, handle, err)
	}

	if err := c.verifyClosed(ctx, "escrow", handle.Escrow); err != nil {
		return nil, c.fail(ctx, log, handle, err)
	}
	if err := c.verifyClosed(ctx, "temp_token_account", account.TempTokenAccount); err != nil {
		return nil, c.fail(ctx, log, handle, err)
	}

	after, err := c.getTokenBalance(ctx, args.TakerTokenAccount)
	if err != nil {
		return nil, c.fail(ctx, log, handle, err)
	}
	if after < before || after-before != args.Terms.TransferAmount {
		return nil, c.fail(ctx, log, handle, &BalanceError{
			Before:   before,
			After:    after,
			Expected: args.Terms.TransferAmount,
		})
	}

	if err := handle.transition(StateCompleted); err != nil {
		return nil, err
	}

	log.Debug("escrow exchanged")
	recordExchangedEvent(ctx, handle, args.Terms.TransferAmount, time.Since(start))

	return &Result{
		Signature:          sig,
		TakerBalanceBefore: before,
		TakerBalanceAfter:  after,
	}, nil
}

// Load reconstructs a handle for an existing, initialized escrow. It is the
// counterparty's entry point when all it knows is the escrow address.
func (c *Coordinator) Load(ctx context.Context, escrowAddress ed25519.PublicKey) (*Handle, error) {
	tracer := metrics.StartSegment(ctx, metricsStructName, "Load")
	defer tracer.End()

	account, err := c.getEscrowAccount(ctx, escrowAddress)
	if err != nil {
		tracer.Fail(err)
		return nil, err
	}
	if !account.IsInitialized {
		return nil, &VerificationError{Field: "is_initialized", Expected: "true", Actual: "false"}
	}

	return &Handle{
		Program:          c.program,
		Escrow:           escrowAddress,
		Initializer:      account.Initializer,
		TempTokenAccount: account.TempTokenAccount,
		Receiver:         account.Receiver,
		ExpectedAmount:   account.ExpectedAmount,
		Account:          *account,
		State:            StateInitialized,
	}, nil
}

func (c *Coordinator) fail(ctx context.Context, log *logrus.Entry, handle *Handle, err error) error {
	stage := handle.State
	if transitionErr := handle.transition(StateFailed); transitionErr != nil {
		log.WithError(transitionErr).Warn("failure reported outside of an in-flight transaction")
	}

	log.WithError(err).WithField("stage", stage.String()).Warn("escrow step failed")
	recordFailureEvent(ctx, handle, stage, err)

	return err
}

func verifyInitialized(handle *Handle, account *escrow_program.EscrowAccount) error {
	if !account.IsInitialized {
		return &VerificationError{Field: "is_initialized", Expected: "true", Actual: "false"}
	}

	keys := []struct {
		field    string
		expected ed25519.PublicKey
		actual   ed25519.PublicKey
	}{
		{"initializer", handle.Initializer, account.Initializer},
		{"temp_token_account", handle.TempTokenAccount, account.TempTokenAccount},
		{"receiver", handle.Receiver, account.Receiver},
	}
	for _, k := range keys {
		if !bytes.Equal(k.expected, k.actual) {
			return &VerificationError{
				Field:    k.field,
				Expected: base58.Encode(k.expected),
				Actual:   base58.Encode(k.actual),
			}
		}
	}

	if account.ExpectedAmount != handle.ExpectedAmount {
		return &VerificationError{
			Field:    "expected_amount",
			Expected: strconv.FormatUint(handle.ExpectedAmount, 10),
			Actual:   strconv.FormatUint(account.ExpectedAmount, 10),
		}
	}

	return nil
}

// verifyExchangeable checks the escrow read back just before Exchange against
// the handle and the taker's terms. The program releases the recorded amount
// regardless of the instruction argument.
func verifyExchangeable(handle *Handle, account *escrow_program.EscrowAccount, terms Terms) error {
	if err := verifyInitialized(handle, account); err != nil {
		return err
	}

	if account.ExpectedAmount != terms.TransferAmount {
		return &VerificationError{
			Field:    "expected_amount",
			Expected: strconv.FormatUint(terms.TransferAmount, 10),
			Actual:   strconv.FormatUint(account.ExpectedAmount, 10),
		}
	}

	return nil
}

// handOffTempTokenAccount makes sure the program authority owns the temp
// token account, reassigning it from the initializer when the program's
// Initialize left it in place.
func (c *Coordinator) handOffTempTokenAccount(ctx context.Context, log *logrus.Entry, handle *Handle, initializer ed25519.PrivateKey, mint, authority ed25519.PublicKey) error {
	tokenAccount, err := c.getTempTokenAccount(ctx, handle, mint)
	if err != nil {
		return err
	}

	if bytes.Equal(tokenAccount.Owner, authority) {
		return nil
	}
	if !bytes.Equal(tokenAccount.Owner, handle.Initializer) {
		return &VerificationError{
			Field:    "temp_token_account.owner",
			Expected: base58.Encode(authority),
			Actual:   base58.Encode(tokenAccount.Owner),
		}
	}

	log.Debug("temp token account still held by the initializer, reassigning to the program authority")

	sig, err := c.submit(
		ctx,
		[]ed25519.PrivateKey{initializer},
		token.SetAuthority(handle.TempTokenAccount, handle.Initializer, authority, token.AuthorityTypeAccountHolder),
	)
	if err != nil {
		return err
	}
	handle.AuthoritySignature = sig

	return c.awaitConfirmation(ctx, sig)
}

func (c *Coordinator) getTempTokenAccount(ctx context.Context, handle *Handle, mint ed25519.PublicKey) (*token.Account, error) {
	var tokenAccount *token.Account
	err := c.withRetry(ctx, func() (err error) {
		tokenAccount, err = c.tokenClient.GetAccount(handle.TempTokenAccount, mint, c.commitment(ctx))
		return err
	})
	if errors.Is(err, token.ErrAccountNotFound) {
		return nil, errors.Wrap(ErrAccountNotFound, "temp token account")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to load temp token account")
	}

	return tokenAccount, nil
}

func (c *Coordinator) verifyTempTokenAccount(ctx context.Context, handle *Handle, mint, authority ed25519.PublicKey) error {
	tokenAccount, err := c.getTempTokenAccount(ctx, handle, mint)
	if err != nil {
		return err
	}

	if !bytes.Equal(tokenAccount.Owner, authority) {
		return &VerificationError{
			Field:    "temp_token_account.owner",
			Expected: base58.Encode(authority),
			Actual:   base58.Encode(tokenAccount.Owner),
		}
	}
	if tokenAccount.Amount != handle.ExpectedAmount {
		return &VerificationError{
			Field:    "temp_token_account.amount",
			Expected: strconv.FormatUint(handle.ExpectedAmount, 10),
			Actual:   strconv.FormatUint(tokenAccount.Amount, 10),
		}
	}

	return nil
}

func (c *Coordinator) verifyClosed(ctx context.Context, field string, account ed25519.PublicKey) error {
	_, err := c.getAccountInfo(ctx, account)
	if err == nil {
		return &VerificationError{Field: field, Expected: "closed", Actual: "open"}
	}
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	return err
}

func (c *Coordinator) commitment(ctx context.Context) solana.Commitment {
	commitment, err := solana.ParseCommitment(c.conf.commitment.Get(ctx))
	if err != nil {
		c.log.WithError(err).Warn("invalid commitment configured, using finalized")
		return solana.CommitmentFinalized
	}
	return commitment
}

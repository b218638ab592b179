package memory

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/system_instruction.rs
const (
	systemErrorAccountAlreadyInUse solana.CustomError = iota
	systemErrorResultWithNegativeLamports
)

var (
	errInvalidInstructionData    = instructionError(solana.InstructionErrorInvalidInstructionData)
	errInvalidAccountData        = instructionError(solana.InstructionErrorInvalidAccountData)
	errInvalidArgument           = instructionError(solana.InstructionErrorInvalidArgument)
	errIncorrectProgramID        = instructionError(solana.InstructionErrorIncorrectProgramID)
	errMissingRequiredSignature  = instructionError(solana.InstructionErrorMissingRequiredSignature)
	errAccountAlreadyInitialized = instructionError(solana.InstructionErrorAccountAlreadyInitialized)
	errUninitializedAccount      = instructionError(solana.InstructionErrorUninitializedAccount)
)

func instructionError(key solana.InstructionErrorKey) error {
	return errors.New(string(key))
}

// execution applies a message's instructions to a private copy of the
// chain's accounts.
type execution struct {
	chain     *Chain
	message   solana.Message
	accounts  map[string]*account
	exchanged bool
}

func (e *execution) executeInstruction(index int) error {
	i := e.message.Instructions[index]
	program := e.message.Accounts[i.ProgramIndex]

	switch {
	case bytes.Equal(program, system.ProgramKey[:]):
		return e.executeSystem(index)
	case bytes.Equal(program, token.ProgramKey):
		return e.executeToken(index)
	case bytes.Equal(program, e.chain.program):
		return e.executeEscrow(index)
	default:
		return errIncorrectProgramID
	}
}

func (e *execution) isSigner(pub ed25519.PublicKey) bool {
	for i := 0; i < int(e.message.Header.NumSignatures); i++ {
		if bytes.Equal(e.message.Accounts[i], pub) {
			return true
		}
	}
	return false
}

func (e *execution) executeSystem(index int) error {
	d, err := system.DecompileCreateAccount(e.message, index)
	if err != nil {
		return errInvalidInstructionData
	}

	if !e.isSigner(d.Funder) || !e.isSigner(d.Address) {
		return errMissingRequiredSignature
	}

	if existing, ok := e.accounts[string(d.Address)]; ok && (existing.lamports > 0 || len(existing.data) > 0) {
		return systemErrorAccountAlreadyInUse
	}

	funder, ok := e.accounts[string(d.Funder)]
	if !ok || funder.lamports < d.Lamports {
		return systemErrorResultWithNegativeLamports
	}

	funder.lamports -= d.Lamports
	e.accounts[string(d.Address)] = &account{
		owner:    d.Owner,
		lamports: d.Lamports,
		data:     make([]byte, d.Size),
	}

	return nil
}

func (e *execution) executeToken(index int) error {
	cmd, err := token.GetCommand(e.message, index)
	if err != nil {
		return errInvalidInstructionData
	}

	switch cmd {
	case token.CommandInitializeAccount:
		d, err := token.DecompileInitializeAccount(e.message, index)
		if err != nil {
			return errInvalidInstructionData
		}

		a, ok := e.accounts[string(d.Account)]
		if !ok || !bytes.Equal(a.owner, token.ProgramKey) {
			return errIncorrectProgramID
		}

		var tokenAccount token.Account
		if !tokenAccount.Unmarshal(a.data) {
			return errInvalidAccountData
		}
		if tokenAccount.State != token.AccountStateUninitialized {
			return errAccountAlreadyInitialized
		}
		if a.lamports < minimumBalance(uint64(len(a.data))) {
			return token.ErrorNotRentExempt
		}

		mint, ok := e.accounts[string(d.Mint)]
		if !ok || !bytes.Equal(mint.owner, token.ProgramKey) || len(mint.data) != token.MintSize {
			return token.ErrorInvalidMint
		}

		tokenAccount = token.Account{
			Mint:  d.Mint,
			Owner: d.Owner,
			State: token.AccountStateInitialized,
		}
		a.data = tokenAccount.Marshal()
		return nil

	case token.CommandTransfer:
		d, err := token.DecompileTransfer(e.message, index)
		if err != nil {
			return errInvalidInstructionData
		}
		if !e.isSigner(d.Owner) {
			return errMissingRequiredSignature
		}

		return e.transfer(d.Source, d.Destination, d.Owner, d.Amount)

	case token.CommandSetAuthority:
		d, err := token.DecompileSetAuthority(e.message, index)
		if err != nil {
			return errInvalidInstructionData
		}
		if d.Type != token.AuthorityTypeAccountHolder {
			return token.ErrorAuthorityTypeNotSupported
		}
		if len(d.NewAuthority) == 0 {
			return errInvalidArgument
		}
		if !e.isSigner(d.CurrentAuthority) {
			return errMissingRequiredSignature
		}

		a, tokenAccount, err := e.loadTokenAccount(d.Account)
		if err != nil {
			return err
		}
		if !bytes.Equal(tokenAccount.Owner, d.CurrentAuthority) {
			return token.ErrorOwnerMismatch
		}

		tokenAccount.Owner = d.NewAuthority
		a.data = tokenAccount.Marshal()
		return nil

	case token.CommandCloseAccount:
		d, err := token.DecompileCloseAccount(e.message, index)
		if err != nil {
			return errInvalidInstructionData
		}
		if !e.isSigner(d.Owner) {
			return errMissingRequiredSignature
		}

		return e.closeTokenAccount(d.Account, d.Destination, d.Owner)

	default:
		return token.ErrorInvalidInstruction
	}
}

func (e *execution) executeEscrow(index int) error {
	program := e.chain.program

	instructionType, err := escrow.GetInstructionType(e.message, index, program)
	if err != nil {
		return escrow.ErrorInvalidInstruction
	}

	switch instructionType {
	case escrow.InstructionTypeInitialize:
		d, err := escrow.DecompileInitialize(e.message, index, program)
		if err != nil {
			return escrow.ErrorInvalidInstruction
		}
		if !e.isSigner(d.Accounts.Initializer) {
			return errMissingRequiredSignature
		}

		a, ok := e.accounts[string(d.Accounts.Escrow)]
		if !ok || !bytes.Equal(a.owner, program) {
			return errIncorrectProgramID
		}
		if a.lamports < minimumBalance(uint64(len(a.data))) {
			return escrow.ErrorNotRentExempt
		}

		var state escrow.EscrowAccount
		if err := state.Unmarshal(a.data); err != nil {
			return errInvalidAccountData
		}
		if state.IsInitialized {
			return errAccountAlreadyInitialized
		}

		state = escrow.EscrowAccount{
			IsInitialized:    true,
			Initializer:      d.Accounts.Initializer,
			Receiver:         d.Accounts.Receiver,
			TempTokenAccount: d.Accounts.TempTokenAccount,
			ExpectedAmount:   d.Args.ExpectedAmount,
			ExpireDate:       uint64(e.chain.now().Unix()) + escrow.ExpiryOffset,
		}
		if err := state.MarshalInto(a.data); err != nil {
			return errInvalidAccountData
		}

		if !e.chain.programAssignsAuthority {
			return nil
		}

		// The program moves the temp token account to its own authority,
		// signing as the initializer.
		authority, _, err := escrow.GetAuthorityAddress(program)
		if err != nil {
			return errInvalidArgument
		}
		temp, tempState, err := e.loadTokenAccount(d.Accounts.TempTokenAccount)
		if err != nil {
			return err
		}
		if !bytes.Equal(tempState.Owner, d.Accounts.Initializer) {
			return token.ErrorOwnerMismatch
		}

		tempState.Owner = authority
		temp.data = tempState.Marshal()
		return nil

	case escrow.InstructionTypeExchange:
		d, err := escrow.DecompileExchange(e.message, index, program)
		if err != nil {
			return escrow.ErrorInvalidInstruction
		}
		if !e.isSigner(d.Accounts.Taker) {
			return errMissingRequiredSignature
		}

		authority, _, err := escrow.GetAuthorityAddress(program)
		if err != nil || !bytes.Equal(authority, d.Accounts.Authority) {
			return errInvalidArgument
		}

		escrowAccount, ok := e.accounts[string(d.Accounts.Escrow)]
		if !ok || !bytes.Equal(escrowAccount.owner, program) {
			return errIncorrectProgramID
		}

		var state escrow.EscrowAccount
		if err := state.Unmarshal(escrowAccount.data); err != nil {
			return errInvalidAccountData
		}
		if !state.IsInitialized {
			return errUninitializedAccount
		}
		if e.chain.enforceMaturity && uint64(e.chain.now().Unix()) < state.ExpireDate {
			return escrow.ErrorEscrowNotMaturedYet
		}

		_, receiving, err := e.loadTokenAccount(d.Accounts.TakerTokenAccount)
		if err != nil {
			return err
		}
		if !bytes.Equal(receiving.Owner, state.Receiver) {
			return errInvalidAccountData
		}
		if !bytes.Equal(d.Accounts.TempTokenAccount, state.TempTokenAccount) {
			return errInvalidAccountData
		}
		if !bytes.Equal(d.Accounts.InitializerAccount, state.Initializer) {
			return errInvalidAccountData
		}

		amount := state.ExpectedAmount
		if shortfall := e.chain.exchangeShortfall; shortfall > 0 {
			if shortfall > amount {
				shortfall = amount
			}
			amount -= shortfall
			if err := e.burn(d.Accounts.TempTokenAccount, shortfall); err != nil {
				return err
			}
		}

		if err := e.transfer(d.Accounts.TempTokenAccount, d.Accounts.TakerTokenAccount, authority, amount); err != nil {
			return err
		}
		if err := e.closeTokenAccount(d.Accounts.TempTokenAccount, d.Accounts.InitializerAccount, authority); err != nil {
			return err
		}

		if !e.chain.leaveEscrowOpen {
			if !credit(e.accounts, d.Accounts.InitializerAccount, escrowAccount.lamports) {
				return escrow.ErrorAmountOverflow
			}
			delete(e.accounts, string(d.Accounts.Escrow))
		}

		e.exchanged = true
		return nil

	default:
		return escrow.ErrorInvalidInstruction
	}
}

func (e *execution) loadTokenAccount(pub ed25519.PublicKey) (*account, *token.Account, error) {
	a, ok := e.accounts[string(pub)]
	if !ok || !bytes.Equal(a.owner, token.ProgramKey) {
		return nil, nil, errInvalidAccountData
	}

	var tokenAccount token.Account
	if !tokenAccount.Unmarshal(a.data) {
		return nil, nil, errInvalidAccountData
	}
	if tokenAccount.State == token.AccountStateUninitialized {
		return nil, nil, token.ErrorUninitializedState
	}

	return a, &tokenAccount, nil
}

func (e *execution) transfer(source, destination, authority ed25519.PublicKey, amount uint64) error {
	src, srcState, err := e.loadTokenAccount(source)
	if err != nil {
		return err
	}
	dst, dstState, err := e.loadTokenAccount(destination)
	if err != nil {
		return err
	}

	if !bytes.Equal(srcState.Owner, authority) {
		return token.ErrorOwnerMismatch
	}
	if !bytes.Equal(srcState.Mint, dstState.Mint) {
		return token.ErrorMintMismatch
	}
	if srcState.Amount < amount {
		return token.ErrorInsufficientFunds
	}
	if bytes.Equal(source, destination) {
		return nil
	}

	srcState.Amount -= amount
	dstState.Amount += amount
	src.data = srcState.Marshal()
	dst.data = dstState.Marshal()

	return nil
}

func (e *execution) burn(pub ed25519.PublicKey, amount uint64) error {
	a, tokenAccount, err := e.loadTokenAccount(pub)
	if err != nil {
		return err
	}
	if tokenAccount.Amount < amount {
		return token.ErrorInsufficientFunds
	}

	tokenAccount.Amount -= amount
	a.data = tokenAccount.Marshal()
	return nil
}

func (e *execution) closeTokenAccount(pub, destination, authority ed25519.PublicKey) error {
	a, tokenAccount, err := e.loadTokenAccount(pub)
	if err != nil {
		return err
	}

	if !bytes.Equal(tokenAccount.Owner, authority) {
		return token.ErrorOwnerMismatch
	}
	if tokenAccount.Amount != 0 {
		return token.ErrorNonNativeHasBalance
	}

	if !credit(e.accounts, destination, a.lamports) {
		return token.ErrorOverflow
	}
	delete(e.accounts, string(pub))

	return nil
}

package memory

import (
	"crypto/ed25519"
	"crypto/rand"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/escrow"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

func TestChain_TransferAndBalance(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 100)
	dest := chain.CreateTokenAccount(mint, newAddress(), 0)

	sig, err := submit(t, chain, owner, []ed25519.PrivateKey{owner}, token.Transfer(source, dest, public(owner), 40))
	require.NoError(t, err)

	balance, _, err := chain.GetTokenAccountBalance(source)
	require.NoError(t, err)
	assert.EqualValues(t, 60, balance)

	balance, _, err = chain.GetTokenAccountBalance(dest)
	require.NoError(t, err)
	assert.EqualValues(t, 40, balance)

	statuses, err := chain.GetSignatureStatuses([]solana.Signature{sig, {}})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.NotNil(t, statuses[0])
	assert.True(t, statuses[0].Finalized())
	assert.Nil(t, statuses[0].ErrorResult)
	assert.Nil(t, statuses[1])

	_, _, err = chain.GetTokenAccountBalance(newAddress())
	assert.Equal(t, solana.ErrNoBalance, err)
}

func TestChain_Atomicity(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 100)
	dest := chain.CreateTokenAccount(mint, newAddress(), 0)

	newAccount := newKey(t)
	lamports := minimumBalance(token.AccountSize)

	// The second transfer overdraws, so the account creation and first
	// transfer must not be committed either.
	_, err := submit(
		t,
		chain,
		owner,
		[]ed25519.PrivateKey{owner, newAccount},
		system.CreateAccount(public(owner), public(newAccount), token.ProgramKey, lamports, token.AccountSize),
		token.Transfer(source, dest, public(owner), 60),
		token.Transfer(source, dest, public(owner), 60),
	)
	require.Error(t, err)

	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, 2, txErr.InstructionError().Index)
	assert.Equal(t, token.ErrorInsufficientFunds, *txErr.InstructionError().CustomError())

	balance, _, err := chain.GetTokenAccountBalance(source)
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)

	_, err = chain.GetAccountInfo(public(newAccount), solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
	assert.EqualValues(t, 1_000_000_000, chain.Lamports(public(owner)))
}

func TestChain_CreateAndInitializeTokenAccount(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)

	mint := chain.CreateMint(public(owner), 6)
	newAccount := newKey(t)
	lamports := minimumBalance(token.AccountSize)

	_, err := submit(
		t,
		chain,
		owner,
		[]ed25519.PrivateKey{owner, newAccount},
		system.CreateAccount(public(owner), public(newAccount), token.ProgramKey, lamports, token.AccountSize),
		token.InitializeAccount(public(newAccount), mint, public(owner)),
		token.SetAuthority(public(newAccount), public(owner), public(newKey(t)), token.AuthorityTypeAccountHolder),
	)
	require.NoError(t, err)

	info, err := chain.GetAccountInfo(public(newAccount), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, token.ProgramKey, info.Owner)
	assert.Equal(t, lamports, info.Lamports)

	var tokenAccount token.Account
	require.True(t, tokenAccount.Unmarshal(info.Data))
	assert.EqualValues(t, mint, tokenAccount.Mint)
	assert.NotEqualValues(t, public(owner), tokenAccount.Owner)
	assert.Equal(t, token.AccountStateInitialized, tokenAccount.State)

	assert.EqualValues(t, 1_000_000_000-lamports, chain.Lamports(public(owner)))
}

func TestChain_Rejections(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	other := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 100)
	dest := chain.CreateTokenAccount(mint, newAddress(), 0)

	// unsigned
	txn := solana.NewTransaction(public(owner), token.Transfer(source, dest, public(owner), 1))
	bh, err := chain.GetLatestBlockhash()
	require.NoError(t, err)
	txn.SetBlockhash(bh)
	_, err = chain.SubmitTransaction(txn, solana.CommitmentFinalized)
	assert.Equal(t, solana.TransactionErrorSignatureFailure, err.(*solana.TransactionError).ErrorKey())

	// unknown blockhash
	txn.SetBlockhash(solana.Blockhash{1})
	require.NoError(t, txn.Sign(owner))
	_, err = chain.SubmitTransaction(txn, solana.CommitmentFinalized)
	assert.Equal(t, solana.TransactionErrorBlockhashNotFound, err.(*solana.TransactionError).ErrorKey())

	// wrong owner
	_, err = submit(t, chain, other, []ed25519.PrivateKey{other}, token.Transfer(source, dest, public(other), 1))
	require.Error(t, err)
	assert.Equal(t, token.ErrorOwnerMismatch, *err.(*solana.TransactionError).InstructionError().CustomError())

	// duplicate
	txn = solana.NewTransaction(public(owner), token.Transfer(source, dest, public(owner), 1))
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(owner))
	_, err = chain.SubmitTransaction(txn, solana.CommitmentFinalized)
	require.NoError(t, err)
	_, err = chain.SubmitTransaction(txn, solana.CommitmentFinalized)
	assert.Equal(t, solana.TransactionErrorDuplicateSignature, err.(*solana.TransactionError).ErrorKey())
}

func TestChain_SkipPreflight(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)
	chain.SetSkipPreflight(true)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 1)
	dest := chain.CreateTokenAccount(mint, newAddress(), 0)

	sig, err := submit(t, chain, owner, []ed25519.PrivateKey{owner}, token.Transfer(source, dest, public(owner), 2))
	require.NoError(t, err)

	statuses, err := chain.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	require.NotNil(t, statuses[0])
	require.NotNil(t, statuses[0].ErrorResult)
	assert.Equal(t, solana.TransactionErrorInstructionError, statuses[0].ErrorResult.ErrorKey())
}

func TestChain_ConfirmationDelay(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)
	chain.SetConfirmationDelay(2)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 1)

	sig, err := submit(t, chain, owner, []ed25519.PrivateKey{owner}, token.Transfer(source, source, public(owner), 1))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		statuses, err := chain.GetSignatureStatuses([]solana.Signature{sig})
		require.NoError(t, err)
		assert.False(t, statuses[0].Confirmed())
		assert.True(t, statuses[0].Reached(solana.CommitmentProcessed))
	}

	statuses, err := chain.GetSignatureStatuses([]solana.Signature{sig})
	require.NoError(t, err)
	assert.True(t, statuses[0].Finalized())
}

func TestChain_Hooks(t *testing.T) {
	chain := NewChain(newAddress())
	owner := newKey(t)
	chain.Fund(public(owner), 1_000_000_000)

	mint := chain.CreateMint(public(owner), 6)
	source := chain.CreateTokenAccount(mint, public(owner), 10)

	injected := errors.New("unavailable")
	chain.InjectRPCErrors(2, injected)
	_, err := chain.GetLatestBlockhash()
	assert.Equal(t, injected, err)
	_, _, err = chain.GetTokenAccountBalance(source)
	assert.Equal(t, injected, err)
	_, _, err = chain.GetTokenAccountBalance(source)
	assert.NoError(t, err)

	assert.Error(t, chain.SetAccountData(newAddress(), []byte{1}))
	require.NoError(t, chain.SetAccountData(source, []byte{1, 2, 3}))
	info, err := chain.GetAccountInfo(source, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)

	// Returned data must not alias chain state.
	info.Data[0] = 9
	info, err = chain.GetAccountInfo(source, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)

	other := chain.CreateTokenAccount(mint, public(owner), 10)
	dest := chain.CreateTokenAccount(mint, newAddress(), 0)
	chain.CorruptAfterNextSubmit(token.ProgramKey, func(data []byte) {
		data[0] ^= 0xff
	})
	_, err = submit(t, chain, owner, []ed25519.PrivateKey{owner}, token.Transfer(other, dest, public(owner), 1))
	require.NoError(t, err)

	info, err = chain.GetAccountInfo(dest, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, mint[0]^0xff, info.Data[0])
}

func TestChain_EscrowInitializeAssignsAuthority(t *testing.T) {
	env := setupEscrow(t)

	_, err := env.initialize(t)
	require.NoError(t, err)

	authority, _, err := escrow.GetAuthorityAddress(env.program)
	require.NoError(t, err)
	assert.EqualValues(t, authority, env.tempOwner(t))

	info, err := env.chain.GetAccountInfo(public(env.escrow), solana.CommitmentFinalized)
	require.NoError(t, err)
	var state escrow.EscrowAccount
	require.NoError(t, state.Unmarshal(info.Data))
	assert.True(t, state.IsInitialized)
	assert.EqualValues(t, public(env.initializer), state.Initializer)
	assert.EqualValues(t, 50, state.ExpectedAmount)

	_, err = env.exchange(t)
	require.NoError(t, err)

	balance, _, err := env.chain.GetTokenAccountBalance(env.takerTokens)
	require.NoError(t, err)
	assert.EqualValues(t, 50, balance)
	_, err = env.chain.GetAccountInfo(public(env.escrow), solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
}

func TestChain_EscrowInitializeRejectsClientSetAuthority(t *testing.T) {
	env := setupEscrow(t)

	authority, _, err := escrow.GetAuthorityAddress(env.program)
	require.NoError(t, err)

	// The account already belongs to the authority once the program has run,
	// so an appended SetAuthority signed by the initializer fails.
	_, err = env.initialize(t, token.SetAuthority(env.temp, public(env.initializer), authority, token.AuthorityTypeAccountHolder))
	require.Error(t, err)

	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, 2, txErr.InstructionError().Index)
	assert.Equal(t, token.ErrorOwnerMismatch, *txErr.InstructionError().CustomError())

	assert.EqualValues(t, public(env.initializer), env.tempOwner(t))
	_, err = env.chain.GetAccountInfo(public(env.escrow), solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
}

func TestChain_EscrowInitializeRecordsStateOnly(t *testing.T) {
	env := setupEscrow(t)
	env.chain.SetProgramAssignsAuthority(false)

	_, err := env.initialize(t)
	require.NoError(t, err)
	assert.EqualValues(t, public(env.initializer), env.tempOwner(t))

	authority, _, err := escrow.GetAuthorityAddress(env.program)
	require.NoError(t, err)
	_, err = submit(t, env.chain, env.initializer, []ed25519.PrivateKey{env.initializer}, token.SetAuthority(env.temp, public(env.initializer), authority, token.AuthorityTypeAccountHolder))
	require.NoError(t, err)
	assert.EqualValues(t, authority, env.tempOwner(t))

	_, err = env.exchange(t)
	require.NoError(t, err)
}

func TestChain_EscrowMaturity(t *testing.T) {
	env := setupEscrow(t)

	start := time.Unix(1_700_000_000, 0)
	env.chain.SetClock(func() time.Time { return start })
	env.chain.SetEnforceMaturity(true)

	_, err := env.initialize(t)
	require.NoError(t, err)

	_, err = env.exchange(t)
	require.Error(t, err)
	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, escrow.ErrorEscrowNotMaturedYet, *txErr.InstructionError().CustomError())

	env.chain.SetClock(func() time.Time { return start.Add(escrow.ExpiryOffset * time.Second) })
	_, err = env.exchange(t)
	require.NoError(t, err)
}

func TestChain_EscrowAmountOverflow(t *testing.T) {
	env := setupEscrow(t)

	_, err := env.initialize(t)
	require.NoError(t, err)

	// Leave exactly enough headroom for the temp token account's rent so that
	// refunding the escrow account's rent overflows.
	temp, err := env.chain.GetAccountInfo(env.temp, solana.CommitmentFinalized)
	require.NoError(t, err)
	initializer := public(env.initializer)
	env.chain.Fund(initializer, math.MaxUint64-temp.Lamports-env.chain.Lamports(initializer))

	_, err = env.exchange(t)
	require.Error(t, err)
	txErr, ok := err.(*solana.TransactionError)
	require.True(t, ok)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, escrow.ErrorAmountOverflow, *txErr.InstructionError().CustomError())

	balance, _, err := env.chain.GetTokenAccountBalance(env.takerTokens)
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance)
	_, err = env.chain.GetAccountInfo(public(env.escrow), solana.CommitmentFinalized)
	assert.NoError(t, err)

	// One more lamport and closing the temp account overflows first.
	env.chain.Fund(initializer, 1)
	_, err = env.exchange(t)
	require.Error(t, err)
	assert.Equal(t, token.ErrorOverflow, *err.(*solana.TransactionError).InstructionError().CustomError())
}

type escrowEnv struct {
	chain       *Chain
	program     ed25519.PublicKey
	initializer ed25519.PrivateKey
	taker       ed25519.PrivateKey
	escrow      ed25519.PrivateKey
	temp        ed25519.PublicKey
	takerTokens ed25519.PublicKey
}

func setupEscrow(t *testing.T) *escrowEnv {
	env := &escrowEnv{
		program:     newAddress(),
		initializer: newKey(t),
		taker:       newKey(t),
		escrow:      newKey(t),
	}
	env.chain = NewChain(env.program)
	env.chain.Fund(public(env.initializer), 1_000_000_000)
	env.chain.Fund(public(env.taker), 1_000_000_000)

	mint := env.chain.CreateMint(public(env.initializer), 6)
	env.temp = env.chain.CreateTokenAccount(mint, public(env.initializer), 50)
	env.takerTokens = env.chain.CreateTokenAccount(mint, public(env.taker), 0)

	return env
}

func (e *escrowEnv) initialize(t *testing.T, extra ...solana.Instruction) (solana.Signature, error) {
	instructions := []solana.Instruction{
		system.CreateAccount(
			public(e.initializer),
			public(e.escrow),
			e.program,
			minimumBalance(escrow.EscrowAccountSize),
			escrow.EscrowAccountSize,
		),
		escrow.NewInitializeInstruction(
			&escrow.InitializeInstructionAccounts{
				Program:          e.program,
				Initializer:      public(e.initializer),
				TempTokenAccount: e.temp,
				Receiver:         public(e.taker),
				Escrow:           public(e.escrow),
			},
			&escrow.InitializeInstructionArgs{ExpectedAmount: 50},
		),
	}
	instructions = append(instructions, extra...)

	return submit(t, e.chain, e.initializer, []ed25519.PrivateKey{e.initializer, e.escrow}, instructions...)
}

func (e *escrowEnv) exchange(t *testing.T) (solana.Signature, error) {
	authority, _, err := escrow.GetAuthorityAddress(e.program)
	require.NoError(t, err)

	return submit(t, e.chain, e.taker, []ed25519.PrivateKey{e.taker}, escrow.NewExchangeInstruction(
		&escrow.ExchangeInstructionAccounts{
			Program:            e.program,
			Taker:              public(e.taker),
			TakerTokenAccount:  e.takerTokens,
			TempTokenAccount:   e.temp,
			InitializerAccount: public(e.initializer),
			Escrow:             public(e.escrow),
			Authority:          authority,
		},
		&escrow.ExchangeInstructionArgs{Amount: 50},
	))
}

func (e *escrowEnv) tempOwner(t *testing.T) ed25519.PublicKey {
	info, err := e.chain.GetAccountInfo(e.temp, solana.CommitmentFinalized)
	require.NoError(t, err)

	var tokenAccount token.Account
	require.True(t, tokenAccount.Unmarshal(info.Data))
	return tokenAccount.Owner
}

func submit(t *testing.T, chain *Chain, payer ed25519.PrivateKey, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	txn := solana.NewTransaction(public(payer), instructions...)

	bh, err := chain.GetLatestBlockhash()
	require.NoError(t, err)
	txn.SetBlockhash(bh)
	require.NoError(t, txn.Sign(signers...))

	return chain.SubmitTransaction(txn, solana.CommitmentFinalized)
}

func newKey(t *testing.T) ed25519.PrivateKey {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func public(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}

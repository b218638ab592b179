// Package memory provides an in-process Solana chain that executes the system,
// token and escrow instructions used by the escrow coordinator. It is intended
// for tests.
package memory

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

const (
	// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/rent.rs
	lamportsPerByteYear    = 3480
	exemptionThresholdYear = 2
	accountStorageOverhead = 128
)

type account struct {
	owner      ed25519.PublicKey
	lamports   uint64
	data       []byte
	executable bool
}

func (a *account) clone() *account {
	cloned := &account{
		owner:      make(ed25519.PublicKey, len(a.owner)),
		lamports:   a.lamports,
		data:       make([]byte, len(a.data)),
		executable: a.executable,
	}
	copy(cloned.owner, a.owner)
	copy(cloned.data, a.data)
	return cloned
}

type submission struct {
	slot  uint64
	err   *solana.TransactionError
	delay int
	polls int
}

type corruption struct {
	owner  ed25519.PublicKey
	mutate func(data []byte)
}

// Chain is an in-memory ledger satisfying the escrow coordinator's gateway.
// Transactions are executed atomically: either every instruction succeeds and
// the resulting accounts are committed, or nothing changes.
type Chain struct {
	log     *logrus.Entry
	program ed25519.PublicKey
	now     func() time.Time

	mu          sync.Mutex
	accounts    map[string]*account
	submissions map[solana.Signature]*submission
	blockhashes map[solana.Blockhash]struct{}
	slot        uint64

	confirmationDelay int
	skipPreflight     bool
	rpcFaults         int
	rpcFaultErr       error
	corruptions       []corruption
	exchangeShortfall uint64
	leaveEscrowOpen   bool

	programAssignsAuthority bool
	enforceMaturity         bool
}

// NewChain returns an empty chain that executes program as the escrow program.
func NewChain(program ed25519.PublicKey) *Chain {
	return &Chain{
		log:         logrus.StandardLogger().WithField("type", "solana/memory"),
		program:     program,
		now:         time.Now,
		accounts:    make(map[string]*account),
		submissions: make(map[solana.Signature]*submission),
		blockhashes: make(map[solana.Blockhash]struct{}),

		programAssignsAuthority: true,
	}
}

func (c *Chain) GetAccountInfo(pub ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.consumeFault(); err != nil {
		return solana.AccountInfo{}, err
	}

	a, ok := c.accounts[string(pub)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}

	a = a.clone()
	return solana.AccountInfo{
		Data:       a.data,
		Owner:      a.owner,
		Lamports:   a.lamports,
		Executable: a.executable,
	}, nil
}

func (c *Chain) GetLatestBlockhash() (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.consumeFault(); err != nil {
		return solana.Blockhash{}, err
	}

	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], c.slot)

	hash := solana.Blockhash(sha256.Sum256(slot[:]))
	c.blockhashes[hash] = struct{}{}
	return hash, nil
}

func (c *Chain) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.consumeFault(); err != nil {
		return 0, err
	}

	return minimumBalance(size), nil
}

func (c *Chain) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.consumeFault(); err != nil {
		return nil, err
	}

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		s, ok := c.submissions[sig]
		if !ok {
			continue
		}

		s.polls++

		status := &solana.SignatureStatus{
			Slot:        s.slot,
			ErrorResult: s.err,
		}
		if s.polls <= s.delay {
			confirmations := 0
			status.Confirmations = &confirmations
			status.ConfirmationStatus = solana.CommitmentProcessed.Commitment
		} else {
			status.ConfirmationStatus = solana.CommitmentFinalized.Commitment
		}

		statuses[i] = status
	}

	return statuses, nil
}

func (c *Chain) GetTokenAccountBalance(pub ed25519.PublicKey) (uint64, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.consumeFault(); err != nil {
		return 0, 0, err
	}

	a, ok := c.accounts[string(pub)]
	if !ok || !a.owner.Equal(token.ProgramKey) {
		return 0, 0, solana.ErrNoBalance
	}

	var tokenAccount token.Account
	if !tokenAccount.Unmarshal(a.data) || tokenAccount.State == token.AccountStateUninitialized {
		return 0, 0, solana.ErrNoBalance
	}

	return tokenAccount.Amount, c.slot, nil
}

// SubmitTransaction verifies and executes txn. Unless preflight is skipped,
// a failing transaction is rejected with its *solana.TransactionError and
// leaves no trace. With preflight skipped, the failure is recorded against the
// signature and only surfaces through GetSignatureStatuses.
func (c *Chain) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig := txn.Signature()

	if err := c.consumeFault(); err != nil {
		return sig, err
	}

	if _, ok := c.submissions[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}
	if err := txn.VerifySignatures(); err != nil {
		c.log.WithError(err).Debug("rejecting transaction with bad signatures")
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}
	if _, ok := c.blockhashes[txn.Message.RecentBlockhash]; !ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	c.slot++

	txErr := c.execute(txn.Message)
	if txErr != nil {
		log := c.log.WithFields(logrus.Fields{
			"signature": sig.String(),
			"error":     txErr.Error(),
		})

		if !c.skipPreflight {
			log.Debug("transaction failed preflight")
			return sig, txErr
		}

		log.Debug("transaction failed")
	}

	c.submissions[sig] = &submission{
		slot:  c.slot,
		err:   txErr,
		delay: c.confirmationDelay,
	}

	if txErr == nil {
		c.applyCorruptions()
	}

	return sig, nil
}

func (c *Chain) execute(m solana.Message) *solana.TransactionError {
	e := &execution{
		chain:    c,
		message:  m,
		accounts: make(map[string]*account, len(c.accounts)),
	}
	for k, v := range c.accounts {
		e.accounts[k] = v.clone()
	}

	for i := range m.Instructions {
		if err := e.executeInstruction(i); err != nil {
			txErr, parseErr := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
				Index: i,
				Err:   err,
			})
			if parseErr != nil {
				return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
			}
			return txErr
		}
	}

	c.accounts = e.accounts
	if e.exchanged {
		c.exchangeShortfall = 0
		c.leaveEscrowOpen = false
	}

	return nil
}

func (c *Chain) applyCorruptions() {
	for _, corruption := range c.corruptions {
		for _, a := range c.accounts {
			if bytes.Equal(a.owner, corruption.owner) {
				corruption.mutate(a.data)
			}
		}
	}
	c.corruptions = nil
}

func (c *Chain) consumeFault() error {
	if c.rpcFaults <= 0 {
		return nil
	}

	c.rpcFaults--
	return c.rpcFaultErr
}

// Fund credits lamports to a system owned account, creating it if needed.
func (c *Chain) Fund(pub ed25519.PublicKey, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	credit(c.accounts, pub, lamports)
}

// CreateMint creates a rent exempt mint with the given authority and returns
// its address.
func (c *Chain) CreateMint(authority ed25519.PublicKey, decimals uint8) ed25519.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	mint := newAddress()

	// mint_authority: COption<Pubkey>, supply: u64, decimals: u8, is_initialized: bool
	data := make([]byte, token.MintSize)
	data[0] = 1
	copy(data[4:36], authority)
	data[44] = decimals
	data[45] = 1

	c.accounts[string(mint)] = &account{
		owner:    token.ProgramKey,
		lamports: minimumBalance(token.MintSize),
		data:     data,
	}

	return mint
}

// CreateTokenAccount creates an initialized token account for mint, owned by
// owner and holding amount tokens.
func (c *Chain) CreateTokenAccount(mint, owner ed25519.PublicKey, amount uint64) ed25519.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	pub := newAddress()
	tokenAccount := token.Account{
		Mint:   mint,
		Owner:  owner,
		Amount: amount,
		State:  token.AccountStateInitialized,
	}

	c.accounts[string(pub)] = &account{
		owner:    token.ProgramKey,
		lamports: minimumBalance(token.AccountSize),
		data:     tokenAccount.Marshal(),
	}

	return pub
}

// SetAccountData overwrites the data of an existing account.
func (c *Chain) SetAccountData(pub ed25519.PublicKey, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.accounts[string(pub)]
	if !ok {
		return errors.Wrap(solana.ErrNoAccountInfo, base58.Encode(pub))
	}

	a.data = make([]byte, len(data))
	copy(a.data, data)
	return nil
}

// CorruptAfterNextSubmit runs mutate over the data of every account owned by
// owner right after the next successful transaction commits.
func (c *Chain) CorruptAfterNextSubmit(owner ed25519.PublicKey, mutate func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.corruptions = append(c.corruptions, corruption{owner: owner, mutate: mutate})
}

// SetConfirmationDelay sets the number of status polls a subsequently
// submitted transaction reports as processed before it is finalized.
func (c *Chain) SetConfirmationDelay(polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.confirmationDelay = polls
}

// SetSkipPreflight controls whether failing transactions are rejected at
// submission or recorded as failed.
func (c *Chain) SetSkipPreflight(skip bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.skipPreflight = skip
}

// InjectRPCErrors makes the next n gateway calls fail with err.
func (c *Chain) InjectRPCErrors(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rpcFaults = n
	c.rpcFaultErr = err
}

// InjectExchangeShortfall makes the next committed exchange deliver amount
// fewer tokens than the escrow expects.
func (c *Chain) InjectExchangeShortfall(amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exchangeShortfall = amount
}

// LeaveEscrowOpen makes the next committed exchange skip closing the escrow
// account.
func (c *Chain) LeaveEscrowOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.leaveEscrowOpen = true
}

// SetProgramAssignsAuthority selects the escrow program variant. By default
// Initialize reassigns the temp token account from the initializer to the
// program authority; disabled, Initialize only records the escrow state.
func (c *Chain) SetProgramAssignsAuthority(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.programAssignsAuthority = enabled
}

// SetEnforceMaturity makes Exchange fail with ErrorEscrowNotMaturedYet until
// the escrow's recorded expire date has passed.
func (c *Chain) SetEnforceMaturity(enforce bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enforceMaturity = enforce
}

// SetClock replaces the chain's source of the current time.
func (c *Chain) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
}

// Lamports returns the balance of pub, or zero if it doesn't exist.
func (c *Chain) Lamports(pub ed25519.PublicKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.accounts[string(pub)]; ok {
		return a.lamports
	}
	return 0
}

// credit adds lamports to pub, creating a system owned account if needed. It
// reports false and changes nothing when the balance would overflow.
func credit(accounts map[string]*account, pub ed25519.PublicKey, lamports uint64) bool {
	a, ok := accounts[string(pub)]
	if ok && a.lamports > math.MaxUint64-lamports {
		return false
	}
	if !ok {
		a = &account{owner: make(ed25519.PublicKey, ed25519.PublicKeySize)}
		accounts[string(pub)] = a
	}

	a.lamports += lamports
	return true
}

func minimumBalance(size uint64) uint64 {
	return (accountStorageOverhead + size) * lamportsPerByteYear * exemptionThresholdYear
}

func newAddress() ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return pub
}

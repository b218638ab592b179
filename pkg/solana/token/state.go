package token

import (
	"crypto/ed25519"

	"github.com/code-payments/code-escrow/pkg/solana/binary"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L36
const MintSize = 82

const optionSize = 4

type Account struct {
	// The mint associated with this account
	Mint ed25519.PublicKey
	// The owner of this account.
	Owner ed25519.PublicKey
	// The amount of tokens this account holds.
	Amount uint64
	// If set, then the 'DelegatedAmount' represents the amount
	// authorized by the delegate.
	Delegate ed25519.PublicKey
	// The account's state
	State AccountState
	// If set, this is a native token, and the value logs the rent-exempt reserve.
	IsNative *uint64
	// The amount delegated
	DelegatedAmount uint64
	// Optional authority to close the account.
	CloseAuthority ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	b := make([]byte, AccountSize)

	w := binary.NewWriter(b)
	w.PutKey32(a.Mint)
	w.PutKey32(a.Owner)
	w.PutUint64(a.Amount)
	w.PutOptionalKey32(a.Delegate, optionSize)
	w.PutUint8(byte(a.State))
	w.PutOptionalUint64(a.IsNative, optionSize)
	w.PutUint64(a.DelegatedAmount)
	w.PutOptionalKey32(a.CloseAuthority, optionSize)

	return b
}

func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	r := binary.NewReader(b)
	a.Mint = r.Key32()
	a.Owner = r.Key32()
	a.Amount = r.Uint64()
	a.Delegate = r.OptionalKey32(optionSize)
	a.State = AccountState(r.Uint8())
	a.IsNative = r.OptionalUint64(optionSize)
	a.DelegatedAmount = r.Uint64()
	a.CloseAuthority = r.OptionalKey32(optionSize)

	return true
}

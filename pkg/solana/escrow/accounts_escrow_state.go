package escrow

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana/binary"
)

const (
	EscrowAccountSize = (1 + // is_initialized
		32 + // initializer
		32 + // receiver
		32 + // temp_token_account
		8 + // expected_amount
		8) // expire_date
)

type EscrowAccount struct {
	IsInitialized    bool
	Initializer      ed25519.PublicKey
	Receiver         ed25519.PublicKey
	TempTokenAccount ed25519.PublicKey
	ExpectedAmount   uint64
	ExpireDate       uint64
}

func (obj *EscrowAccount) Marshal() []byte {
	data := make([]byte, EscrowAccountSize)
	obj.marshal(data)
	return data
}

// MarshalInto encodes the account into dst, which must be exactly
// EscrowAccountSize bytes.
func (obj *EscrowAccount) MarshalInto(dst []byte) error {
	if len(dst) != EscrowAccountSize {
		return errors.Wrapf(ErrSizeMismatch, "got %d bytes, want %d", len(dst), EscrowAccountSize)
	}

	obj.marshal(dst)
	return nil
}

func (obj *EscrowAccount) marshal(dst []byte) {
	w := binary.NewWriter(dst)
	w.PutBool(obj.IsInitialized)
	w.PutKey32(obj.Initializer)
	w.PutKey32(obj.Receiver)
	w.PutKey32(obj.TempTokenAccount)
	w.PutUint64(obj.ExpectedAmount)
	w.PutUint64(obj.ExpireDate)
}

func (obj *EscrowAccount) Unmarshal(data []byte) error {
	if len(data) != EscrowAccountSize {
		return errors.Wrapf(ErrInvalidLength, "got %d bytes, want %d", len(data), EscrowAccountSize)
	}

	r := binary.NewReader(data)
	obj.IsInitialized = r.Bool()
	obj.Initializer = r.Key32()
	obj.Receiver = r.Key32()
	obj.TempTokenAccount = r.Key32()
	obj.ExpectedAmount = r.Uint64()
	obj.ExpireDate = r.Uint64()

	return nil
}

func (obj *EscrowAccount) String() string {
	return fmt.Sprintf(
		"EscrowAccount{is_initialized=%t,initializer=%s,receiver=%s,temp_token_account=%s,expected_amount=%d,expire_date=%d}",
		obj.IsInitialized,
		base58.Encode(obj.Initializer),
		base58.Encode(obj.Receiver),
		base58.Encode(obj.TempTokenAccount),
		obj.ExpectedAmount,
		obj.ExpireDate,
	)
}

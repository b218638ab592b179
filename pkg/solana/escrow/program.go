// Package escrow holds the client side of the two party token escrow
// program: the escrow account layout, the program authority address and the
// instruction builders.
package escrow

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

var (
	ErrInvalidLength          = errors.New("escrow: invalid account data length")
	ErrSizeMismatch           = errors.New("escrow: destination buffer size mismatch")
	ErrInvalidInstructionData = errors.New("escrow: unexpected instruction data")
)

var (
	SPL_TOKEN_PROGRAM_ID = token.ProgramKey
	SYSVAR_RENT_PUBKEY   = system.RentSysVar
)

// Custom program errors.
const (
	ErrorInvalidInstruction solana.CustomError = iota
	ErrorNotRentExempt
	ErrorAmountOverflow
	ErrorEscrowNotMaturedYet
)

// ExpiryOffset is the number of seconds the program adds to the current unix
// timestamp when recording an escrow's expire date.
const ExpiryOffset = 20000

type InstructionType uint8

const (
	InstructionTypeInitialize InstructionType = iota
	InstructionTypeExchange
)

// IsLayoutError reports whether err was caused by malformed escrow account
// bytes or a badly sized encode buffer.
func IsLayoutError(err error) bool {
	return errors.Is(err, ErrInvalidLength) || errors.Is(err, ErrSizeMismatch)
}

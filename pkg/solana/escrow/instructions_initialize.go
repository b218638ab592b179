package escrow

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/binary"
)

const (
	InitializeInstructionArgsSize = 8 // expected_amount
)

type InitializeInstructionArgs struct {
	ExpectedAmount uint64
}

type InitializeInstructionAccounts struct {
	Program          ed25519.PublicKey
	Initializer      ed25519.PublicKey
	TempTokenAccount ed25519.PublicKey
	Receiver         ed25519.PublicKey
	Escrow           ed25519.PublicKey
}

// NewInitializeInstruction records the swap terms in the escrow account and
// transfers ownership of the temp token account to the program authority.
//
// Accounts expected by this instruction:
//
//  0. `[signer]` The initializer
//  1. `[writable]` Temp token account holding the offered tokens
//  2. `[]` The receiver
//  3. `[writable]` The escrow account
//  4. `[]` Rent sysvar
//  5. `[]` Token program
func NewInitializeInstruction(
	accounts *InitializeInstructionAccounts,
	args *InitializeInstructionArgs,
) solana.Instruction {
	data := make([]byte, 1+InitializeInstructionArgsSize)

	w := binary.NewWriter(data)
	w.PutUint8(uint8(InstructionTypeInitialize))
	w.PutUint64(args.ExpectedAmount)

	return solana.Instruction{
		Program: accounts.Program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Initializer,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.TempTokenAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Receiver,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Escrow,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  SYSVAR_RENT_PUBKEY,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type DecompiledInitialize struct {
	Accounts InitializeInstructionAccounts
	Args     InitializeInstructionArgs
}

// DecompileInitialize reads back an Initialize instruction for program from
// the compiled message.
func DecompileInitialize(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledInitialize, error) {
	i, err := getInstruction(m, index, program, InstructionTypeInitialize)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 6 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 1+InitializeInstructionArgsSize {
		return nil, errors.Wrapf(ErrInvalidInstructionData, "invalid data size: %d", len(i.Data))
	}
	if err := expectKey(m, i.Accounts[4], SYSVAR_RENT_PUBKEY, "rent sysvar"); err != nil {
		return nil, err
	}
	if err := expectKey(m, i.Accounts[5], SPL_TOKEN_PROGRAM_ID, "token program"); err != nil {
		return nil, err
	}

	r := binary.NewReader(i.Data[1:])
	return &DecompiledInitialize{
		Accounts: InitializeInstructionAccounts{
			Program:          program,
			Initializer:      m.Accounts[i.Accounts[0]],
			TempTokenAccount: m.Accounts[i.Accounts[1]],
			Receiver:         m.Accounts[i.Accounts[2]],
			Escrow:           m.Accounts[i.Accounts[3]],
		},
		Args: InitializeInstructionArgs{
			ExpectedAmount: r.Uint64(),
		},
	}, nil
}

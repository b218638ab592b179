package escrow

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/binary"
)

const (
	ExchangeInstructionArgsSize = 8 // amount
)

type ExchangeInstructionArgs struct {
	Amount uint64
}

type ExchangeInstructionAccounts struct {
	Program            ed25519.PublicKey
	Taker              ed25519.PublicKey
	TakerTokenAccount  ed25519.PublicKey
	TempTokenAccount   ed25519.PublicKey
	InitializerAccount ed25519.PublicKey
	Escrow             ed25519.PublicKey
	Authority          ed25519.PublicKey
}

// NewExchangeInstruction releases the escrowed tokens to the taker, closing
// both the temp token account and the escrow account.
//
// Accounts expected by this instruction:
//
//  0. `[signer]` The taker
//  1. `[writable]` The taker's token account receiving the escrowed tokens
//  2. `[writable]` Temp token account owned by the program authority
//  3. `[writable]` The initializer's main account, refunded the rent
//  4. `[writable]` The escrow account
//  5. `[]` Token program
//  6. `[]` The program authority
func NewExchangeInstruction(
	accounts *ExchangeInstructionAccounts,
	args *ExchangeInstructionArgs,
) solana.Instruction {
	data := make([]byte, 1+ExchangeInstructionArgsSize)

	w := binary.NewWriter(data)
	w.PutUint8(uint8(InstructionTypeExchange))
	w.PutUint64(args.Amount)

	return solana.Instruction{
		Program: accounts.Program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Taker,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.TakerTokenAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.TempTokenAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.InitializerAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Escrow,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Authority,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

type DecompiledExchange struct {
	Accounts ExchangeInstructionAccounts
	Args     ExchangeInstructionArgs
}

// DecompileExchange reads back an Exchange instruction for program from the
// compiled message.
func DecompileExchange(m solana.Message, index int, program ed25519.PublicKey) (*DecompiledExchange, error) {
	i, err := getInstruction(m, index, program, InstructionTypeExchange)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 7 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != 1+ExchangeInstructionArgsSize {
		return nil, errors.Wrapf(ErrInvalidInstructionData, "invalid data size: %d", len(i.Data))
	}
	if err := expectKey(m, i.Accounts[5], SPL_TOKEN_PROGRAM_ID, "token program"); err != nil {
		return nil, err
	}

	r := binary.NewReader(i.Data[1:])
	return &DecompiledExchange{
		Accounts: ExchangeInstructionAccounts{
			Program:            program,
			Taker:              m.Accounts[i.Accounts[0]],
			TakerTokenAccount:  m.Accounts[i.Accounts[1]],
			TempTokenAccount:   m.Accounts[i.Accounts[2]],
			InitializerAccount: m.Accounts[i.Accounts[3]],
			Escrow:             m.Accounts[i.Accounts[4]],
			Authority:          m.Accounts[i.Accounts[6]],
		},
		Args: ExchangeInstructionArgs{
			Amount: r.Uint64(),
		},
	}, nil
}

package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// GetInstructionType returns the escrow instruction type at index, or an
// error if the instruction does not target program.
func GetInstructionType(m solana.Message, index int, program ed25519.PublicKey) (InstructionType, error) {
	if index >= len(m.Instructions) {
		return 0, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(i.Data) == 0 {
		return 0, errors.Wrap(ErrInvalidInstructionData, "missing instruction type")
	}

	return InstructionType(i.Data[0]), nil
}

func getInstruction(m solana.Message, index int, program ed25519.PublicKey, expected InstructionType) (solana.CompiledInstruction, error) {
	instructionType, err := GetInstructionType(m, index, program)
	if err != nil {
		return solana.CompiledInstruction{}, err
	}
	if instructionType != expected {
		return solana.CompiledInstruction{}, solana.ErrIncorrectInstruction
	}

	return m.Instructions[index], nil
}

func expectKey(m solana.Message, index byte, expected ed25519.PublicKey, name string) error {
	if !bytes.Equal(m.Accounts[index], expected) {
		return errors.Errorf("invalid %s: %s", name, base58.Encode(m.Accounts[index]))
	}
	return nil
}

package escrow

import (
	"crypto/ed25519"

	"github.com/code-payments/code-escrow/pkg/solana"
)

var (
	AuthorityPrefix = []byte("escrow")
)

// GetAuthorityAddress returns the program derived address that takes over
// authority of every temp token account held in escrow by program.
func GetAuthorityAddress(program ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		AuthorityPrefix,
	)
}

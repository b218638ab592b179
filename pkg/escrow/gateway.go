package escrow

import (
	"crypto/ed25519"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// Gateway is the chain surface used by the coordinator. It is satisfied by
// solana.Client.
type Gateway interface {
	GetAccountInfo(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
	GetLatestBlockhash() (solana.Blockhash, error)
	GetMinimumBalanceForRentExemption(size uint64) (lamports uint64, err error)
	GetSignatureStatuses([]solana.Signature) ([]*solana.SignatureStatus, error)
	GetTokenAccountBalance(ed25519.PublicKey) (uint64, uint64, error)
	SubmitTransaction(solana.Transaction, solana.Commitment) (solana.Signature, error)
}

var _ Gateway = solana.Client(nil)

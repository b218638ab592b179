package token

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
)

type accountReader map[string]solana.AccountInfo

func (r accountReader) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	info, ok := r[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

func TestClient_GetAccount(t *testing.T) {
	keys := generateKeys(t, 5)
	mint, owner, valid, uninitialized, foreign := keys[0], keys[1], keys[2], keys[3], keys[4]

	account := Account{
		Mint:   mint,
		Owner:  owner,
		Amount: 42,
		State:  AccountStateInitialized,
	}

	reader := accountReader{
		string(valid):         {Owner: ProgramKey, Data: account.Marshal()},
		string(uninitialized): {Owner: ProgramKey, Data: make([]byte, AccountSize)},
		string(foreign):       {Owner: owner, Data: account.Marshal()},
	}
	c := NewClient(reader)

	actual, err := c.GetAccount(valid, mint, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, owner, actual.Owner)
	assert.EqualValues(t, 42, actual.Amount)

	actual, err = c.GetAccount(valid, nil, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, actual.Amount)

	_, err = c.GetAccount(valid, owner, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	_, err = c.GetAccount(uninitialized, nil, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	_, err = c.GetAccount(foreign, nil, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	_, err = c.GetAccount(mint, nil, solana.CommitmentConfirmed)
	assert.Equal(t, ErrAccountNotFound, err)
}

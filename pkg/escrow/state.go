package escrow

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	escrow_program "github.com/code-payments/code-escrow/pkg/solana/escrow"
)

// State is the lifecycle of a single swap as seen by the coordinator.
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
	StateExchanging
	StateCompleted
	StateFailed
)

var validTransitions = map[State][]State{
	StateUninitialized: {StateInitializing},
	StateInitializing:  {StateInitialized, StateFailed},
	StateInitialized:   {StateExchanging, StateFailed},
	StateExchanging:    {StateCompleted, StateFailed},
}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateExchanging:
		return "exchanging"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// CanTransitionTo reports whether next directly follows s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Handle tracks one escrow from initialization through exchange.
type Handle struct {
	Program          ed25519.PublicKey
	Escrow           ed25519.PublicKey
	Initializer      ed25519.PublicKey
	TempTokenAccount ed25519.PublicKey
	Receiver         ed25519.PublicKey
	ExpectedAmount   uint64

	InitializeSignature solana.Signature
	// AuthoritySignature is set when the temp token account had to be
	// reassigned to the program authority in its own transaction.
	AuthoritySignature solana.Signature

	// Account is the escrow account as last read back from the chain.
	Account escrow_program.EscrowAccount
	State   State
}

func (h *Handle) transition(next State) error {
	if !h.State.CanTransitionTo(next) {
		return errors.Wrapf(ErrInvalidStateTransition, "%s -> %s", h.State, next)
	}

	h.State = next
	return nil
}

// Package ledger is the client side of the round contract.
//
// The contract is the source of truth for round ids, the pot, the round
// deadline and who has paid an entry fee. This package only reads it and
// submits the operator's start / end / declare-winner transactions.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/robalobadob/zoltar/internal/commitment"
)

var (
	ErrReadOnly    = errors.New("ledger: no signing key configured")
	ErrReverted    = errors.New("ledger: transaction reverted")
	ErrUnconfirmed = errors.New("ledger: confirmation timed out")
	ErrBadAddress  = errors.New("ledger: invalid address")
)

// RoundInfo mirrors the contract's getGameInfo view.
type RoundInfo struct {
	GameID        int64
	Commitment    commitment.Digest
	Pot           *big.Int
	EndTime       uint64
	Active        bool
	TimeRemaining uint64
}

// Tx is a submitted transaction awaiting confirmation.
type Tx struct {
	Hash string
	raw  *types.Transaction
}

// Client is everything the oracle needs from the ledger.
// All calls may block on the network and may fail.
type Client interface {
	RoundInfo(ctx context.Context) (RoundInfo, error)
	StartRound(ctx context.Context, c commitment.Digest) (Tx, error)
	EndRound(ctx context.Context) (Tx, error)
	DeclareWinner(ctx context.Context, addr string) (Tx, error)
	AwaitConfirmation(ctx context.Context, tx Tx) error
	HasEntryFeePaid(ctx context.Context, addr string) (bool, error)
	// EntryCount is the number of entry fees addr has paid into the current round.
	EntryCount(ctx context.Context, addr string) (int, error)
	// CanTransact reports whether an operator key is configured.
	CanTransact() bool
}

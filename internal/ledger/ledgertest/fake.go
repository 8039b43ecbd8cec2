// Package ledgertest provides an in-memory ledger.Client for tests.
//
// The fake models the contract closely enough for the coordinator: a
// confirmed startGame bumps the round id and activates it, a confirmed
// endGame or declareWinner deactivates it. Effects are applied on
// confirmation, never on send.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/ledger"
)

// Fake is a scriptable ledger.Client. Set the *Err fields to make the
// matching call fail. All methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	round    ledger.RoundInfo
	entries  map[string]int
	paid     map[string]bool
	pending  map[string]func()
	calls    []string
	winners  []string
	seq      int
	readOnly bool

	InfoErr    error
	StartErr   error
	EndErr     error
	WinnerErr  error
	AwaitErr   error
	EntriesErr error

	// BeforeConfirm, when set, runs at the start of AwaitConfirmation.
	BeforeConfirm func(tx ledger.Tx)
}

// New returns a fake holding round.
func New(round ledger.RoundInfo) *Fake {
	if round.Pot == nil {
		round.Pot = new(big.Int)
	}
	return &Fake{
		round:   round,
		entries: make(map[string]int),
		paid:    make(map[string]bool),
		pending: make(map[string]func()),
	}
}

// ReadOnly makes CanTransact report false.
func (f *Fake) ReadOnly() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readOnly = true
	return f
}

// SetRound replaces the round state.
func (f *Fake) SetRound(r ledger.RoundInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Pot == nil {
		r.Pot = new(big.Int)
	}
	f.round = r
}

// Round returns the current round state.
func (f *Fake) Round() ledger.RoundInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.round
}

// PayEntry records n additional entry fees for addr.
func (f *Fake) PayEntry(addr string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := strings.ToLower(addr)
	f.entries[a] += n
	f.paid[a] = f.entries[a] > 0
}

// MarkPaid sets only the hasBoughtIn flag for addr.
func (f *Fake) MarkPaid(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid[strings.ToLower(addr)] = true
}

// Calls returns the names of the write and confirm calls made so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times name appears in Calls.
func (f *Fake) Count(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// Winners returns the addresses declared winner on confirmation.
func (f *Fake) Winners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.winners...)
}

func (f *Fake) CanTransact() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.readOnly
}

func (f *Fake) RoundInfo(context.Context) (ledger.RoundInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InfoErr != nil {
		return ledger.RoundInfo{}, f.InfoErr
	}
	return f.round, nil
}

func (f *Fake) HasEntryFeePaid(_ context.Context, addr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paid[strings.ToLower(addr)], nil
}

func (f *Fake) EntryCount(_ context.Context, addr string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EntriesErr != nil {
		return 0, f.EntriesErr
	}
	return f.entries[strings.ToLower(addr)], nil
}

func (f *Fake) StartRound(_ context.Context, c commitment.Digest) (ledger.Tx, error) {
	return f.send("startGame", f.StartErr, func() {
		f.round.GameID++
		f.round.Commitment = c
		f.round.Active = true
		f.round.TimeRemaining = 3600
		f.round.Pot = new(big.Int)
		f.entries = make(map[string]int)
		f.paid = make(map[string]bool)
	})
}

func (f *Fake) EndRound(context.Context) (ledger.Tx, error) {
	return f.send("endGame", f.EndErr, func() {
		f.round.Active = false
		f.round.TimeRemaining = 0
	})
}

func (f *Fake) DeclareWinner(_ context.Context, addr string) (ledger.Tx, error) {
	return f.send("declareWinner", f.WinnerErr, func() {
		f.winners = append(f.winners, strings.ToLower(addr))
		f.round.Active = false
		f.round.TimeRemaining = 0
	})
}

// AwaitConfirmation applies tx's effect. Like a real receipt wait it gives
// up on a done ctx, leaving tx pending.
func (f *Fake) AwaitConfirmation(ctx context.Context, tx ledger.Tx) error {
	if hook := f.BeforeConfirm; hook != nil {
		hook(tx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "await")
	if err := ctx.Err(); err != nil {
		return err
	}
	apply, ok := f.pending[tx.Hash]
	if !ok {
		return fmt.Errorf("unknown tx %s", tx.Hash)
	}
	delete(f.pending, tx.Hash)
	if f.AwaitErr != nil {
		return f.AwaitErr
	}
	apply()
	return nil
}

func (f *Fake) send(method string, failWith error, apply func()) (ledger.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if f.readOnly {
		return ledger.Tx{}, ledger.ErrReadOnly
	}
	if failWith != nil {
		return ledger.Tx{}, failWith
	}
	f.seq++
	tx := ledger.Tx{Hash: fmt.Sprintf("0x%064x", f.seq)}
	f.pending[tx.Hash] = apply
	return tx, nil
}

var _ ledger.Client = (*Fake)(nil)

// Package rotation keeps exactly one round live on the ledger and mirrors it
// in the session store.
//
// The Loop is a supervised task: Run owns the ticker, and Start / Stop are
// commands sent to it. Passes never overlap. Manual starts and on-demand
// ticks share the same pass lock as timer passes.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/ledger"
	"github.com/robalobadob/zoltar/internal/store"
)

// DefaultInterval is the period between reconciliation passes.
const DefaultInterval = 30 * time.Second

var (
	ErrAlreadyRunning = errors.New("rotation loop already running")
	ErrLoopClosed     = errors.New("rotation loop is not accepting commands")
)

// Action names what a pass did.
type Action string

const (
	ActionNone    Action = "none"
	ActionStarted Action = "started"
	ActionRotated Action = "rotated"
	ActionDesync  Action = "desync"
	ActionAdopted Action = "adopted"
)

// Outcome reports one pass.
type Outcome struct {
	Action      Action            `json:"action"`
	GameID      int64             `json:"gameId,omitempty"`
	Commitment  commitment.Digest `json:"commitment"`
	ChainGameID int64             `json:"chainGameId"`
	LocalGameID int64             `json:"localGameId,omitempty"`
}

type command struct {
	start bool
	reply chan error
}

// Loop reconciles the session store with the ledger on a fixed period.
type Loop struct {
	session  *store.Session
	ledger   ledger.Client
	interval time.Duration
	log      zerolog.Logger

	cmds    chan command
	done    chan struct{}
	running atomic.Bool

	passMu   sync.Mutex // serializes passes and manual starts
	inFlight atomic.Bool
	passes   sync.WaitGroup

	// pending is the last draft whose startGame was sent but not confirmed.
	// Guarded by passMu.
	pending *store.Draft
}

// New returns an idle Loop. Call Run to make it accept commands.
func New(session *store.Session, l ledger.Client, interval time.Duration, log zerolog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		session:  session,
		ledger:   l,
		interval: interval,
		log:      log.With().Str("component", "rotation").Logger(),
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
}

// Run processes commands and ticks until ctx is done, then waits for an
// in-flight pass to finish.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		l.running.Store(false)
	}
	defer func() {
		stopTicker()
		l.passes.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("rotation loop shutting down")
			return

		case cmd := <-l.cmds:
			if !cmd.start {
				if ticker != nil {
					l.log.Info().Msg("rotation loop stopped")
				}
				stopTicker()
				cmd.reply <- nil
				continue
			}
			if ticker != nil {
				cmd.reply <- ErrAlreadyRunning
				continue
			}
			if !l.ledger.CanTransact() {
				l.log.Error().Msg("cannot start rotation loop: no operator key")
				cmd.reply <- game.ErrNotConfigured
				continue
			}
			ticker = time.NewTicker(l.interval)
			tick = ticker.C
			l.running.Store(true)
			l.log.Info().Dur("interval", l.interval).Msg("rotation loop started")
			cmd.reply <- nil
			l.spawnPass(ctx)

		case <-tick:
			l.spawnPass(ctx)
		}
	}
}

// spawnPass runs a pass in the background unless one is already running.
// The pass is detached from ctx so stopping never abandons a sent transaction.
func (l *Loop) spawnPass(ctx context.Context) {
	if !l.inFlight.CompareAndSwap(false, true) {
		l.log.Debug().Msg("previous pass still running, skipping tick")
		return
	}
	l.passes.Add(1)
	go func() {
		defer l.passes.Done()
		defer l.inFlight.Store(false)
		_, _ = l.Reconcile(context.WithoutCancel(ctx))
	}()
}

// Start moves the loop to Running and triggers an immediate pass.
func (l *Loop) Start() error { return l.send(true) }

// Stop moves the loop to Idle. A pass already underway runs to completion.
func (l *Loop) Stop() error { return l.send(false) }

// Running reports whether the ticker is active.
func (l *Loop) Running() bool { return l.running.Load() }

func (l *Loop) send(start bool) error {
	reply := make(chan error, 1)
	select {
	case l.cmds <- command{start: start, reply: reply}:
	case <-l.done:
		return ErrLoopClosed
	}
	return <-reply
}

// Reconcile runs one pass: read the ledger round and act on it.
// A desync is reported as game.ErrDesync alongside its Outcome.
// A panic inside the pass is logged and reported as an error.
func (l *Loop) Reconcile(ctx context.Context) (out Outcome, err error) {
	l.passMu.Lock()
	defer l.passMu.Unlock()

	log := l.log.With().Str("pass", uuid.NewString()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("reconciliation pass panicked")
			err = fmt.Errorf("reconciliation pass panicked: %v", r)
		}
	}()

	chain, err := l.ledger.RoundInfo(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ledger read failed")
		return Outcome{}, fmt.Errorf("read round: %w", err)
	}
	local, hasLocal := l.session.GameID()
	log = log.With().Int64("game_id", chain.GameID).Logger()
	log.Debug().
		Bool("active", chain.Active).
		Uint64("time_remaining", chain.TimeRemaining).
		Str("pot", chain.Pot.String()).
		Msg("ledger round")

	switch {
	case chain.Active && chain.TimeRemaining == 0:
		log.Info().Msg("round expired, rotating")
		if err := l.endRound(ctx, log); err != nil {
			return Outcome{ChainGameID: chain.GameID}, err
		}
		out, err := l.startRound(ctx, log, chain.GameID)
		if err != nil {
			return out, err
		}
		out.Action = ActionRotated
		return out, nil

	case !chain.Active:
		if hasLocal {
			l.clearLocal(log, "ledger round inactive")
		}
		out, err := l.startRound(ctx, log, chain.GameID)
		if err != nil {
			return out, err
		}
		out.Action = ActionStarted
		return out, nil

	case hasLocal && local == chain.GameID:
		return Outcome{Action: ActionNone, GameID: local, ChainGameID: chain.GameID, LocalGameID: local}, nil

	case l.pending != nil && l.pending.Commitment == chain.Commitment:
		// A start whose confirmation we gave up on was mined after all.
		draft := *l.pending
		l.pending = nil
		info := l.session.Install(chain.GameID, draft)
		log.Info().
			Str("commitment", info.Commitment.Hex()).
			Str("difficulty", string(info.Difficulty)).
			Msg("late startGame confirmed, round installed")
		return Outcome{
			Action:      ActionAdopted,
			GameID:      chain.GameID,
			Commitment:  info.Commitment,
			ChainGameID: chain.GameID,
			LocalGameID: chain.GameID,
		}, nil

	default:
		// The secret cannot be recovered from the commitment; an operator
		// must supply it through the recovery path.
		ev := log.Warn().Str("ledger_commitment", chain.Commitment.Hex())
		if hasLocal {
			ev = ev.Int64("local_game_id", local)
		}
		ev.Msg("ledger round is not held locally, operator recovery required")
		return Outcome{Action: ActionDesync, ChainGameID: chain.GameID, LocalGameID: local},
			fmt.Errorf("%w: ledger round %d, local round %d", game.ErrDesync, chain.GameID, local)
	}
}

// StartIfIdle starts a round only when the ledger reports none active.
func (l *Loop) StartIfIdle(ctx context.Context) (Outcome, error) {
	if !l.ledger.CanTransact() {
		return Outcome{}, game.ErrNotConfigured
	}
	l.passMu.Lock()
	defer l.passMu.Unlock()

	log := l.log.With().Str("pass", uuid.NewString()).Str("trigger", "manual").Logger()
	chain, err := l.ledger.RoundInfo(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ledger read failed")
		return Outcome{}, fmt.Errorf("read round: %w", err)
	}
	if chain.Active {
		return Outcome{ChainGameID: chain.GameID}, game.ErrGameStillActive
	}
	if _, ok := l.session.GameID(); ok {
		l.clearLocal(log, "ledger round inactive")
	}
	out, err := l.startRound(ctx, log, chain.GameID)
	if err != nil {
		return out, err
	}
	out.Action = ActionStarted
	return out, nil
}

// endRound ends the ledger round, then clears the local one.
func (l *Loop) endRound(ctx context.Context, log zerolog.Logger) error {
	tx, err := l.ledger.EndRound(ctx)
	if err != nil {
		log.Error().Err(err).Msg("endGame send failed")
		return fmt.Errorf("%w: endGame: %v", game.ErrLedgerTx, err)
	}
	if err := l.ledger.AwaitConfirmation(ctx, tx); err != nil {
		log.Error().Err(err).Str("tx", tx.Hash).Msg("endGame not confirmed")
		return fmt.Errorf("%w: endGame: %v", game.ErrLedgerTx, err)
	}
	log.Info().Str("tx", tx.Hash).Msg("endGame confirmed")
	l.clearLocal(log, "round ended")
	return nil
}

// startRound publishes a fresh commitment and installs the round locally
// only once the ledger has confirmed it.
func (l *Loop) startRound(ctx context.Context, log zerolog.Logger, prevID int64) (Outcome, error) {
	draft := l.session.Draw()
	out := Outcome{ChainGameID: prevID, Commitment: draft.Commitment}

	tx, err := l.ledger.StartRound(ctx, draft.Commitment)
	if err != nil {
		log.Error().Err(err).Msg("startGame send failed")
		return out, fmt.Errorf("%w: startGame: %v", game.ErrLedgerTx, err)
	}
	if err := l.ledger.AwaitConfirmation(ctx, tx); err != nil {
		// The tx may still be mined; keep the draft so a later pass can
		// install it once the ledger shows its commitment.
		l.pending = &draft
		log.Error().Err(err).
			Str("tx", tx.Hash).
			Str("commitment", draft.Commitment.Hex()).
			Msg("startGame not confirmed, draft kept")
		return out, fmt.Errorf("%w: startGame: %v", game.ErrLedgerTx, err)
	}
	l.pending = nil

	id := prevID + 1
	if chain, err := l.ledger.RoundInfo(ctx); err != nil {
		log.Warn().Err(err).Int64("assumed_game_id", id).Msg("could not re-read round after start")
	} else if chain.Commitment == draft.Commitment {
		id = chain.GameID
	} else {
		log.Warn().Int64("assumed_game_id", id).Msg("ledger commitment differs after start")
	}

	info := l.session.Install(id, draft)
	out.GameID = id
	out.ChainGameID = id
	out.LocalGameID = id
	log.Info().
		Int64("new_game_id", id).
		Str("commitment", info.Commitment.Hex()).
		Str("difficulty", string(info.Difficulty)).
		Str("tx", tx.Hash).
		Msg("round started")
	return out, nil
}

func (l *Loop) clearLocal(log zerolog.Logger, reason string) {
	if c := l.session.EndGame(); c != nil {
		log.Info().
			Int64("ended_game_id", c.Info.GameID).
			Str("secret", c.Secret).
			Str("winner", c.Info.Winner).
			Str("reason", reason).
			Msg("local round cleared")
	}
}

// Package play runs player submissions and operator recovery against the
// session store, the ledger and the responder.
package play

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/ledger"
	"github.com/robalobadob/zoltar/internal/responder"
	"github.com/robalobadob/zoltar/internal/store"
)

// Reply is the outcome of one submission.
type Reply struct {
	Won       bool   `json:"won"`
	Response  string `json:"response"`
	TriesLeft int    `json:"triesRemaining"`
	TxHash    string `json:"txHash,omitempty"`
	TxError   string `json:"txError,omitempty"`
}

// Recovery is the outcome of a forced secret.
type Recovery struct {
	GameID     int64             `json:"gameId"`
	Commitment commitment.Digest `json:"commitment"`
	// MatchesLedger is nil when the ledger could not be read.
	MatchesLedger *bool `json:"matchesLedger"`
}

// Service coordinates the player-facing flow.
type Service struct {
	session *store.Session
	ledger  ledger.Client
	oracle  responder.Responder
	log     zerolog.Logger
}

// New wires a Service over the session store, the ledger and the responder.
func New(session *store.Session, l ledger.Client, r responder.Responder, log zerolog.Logger) *Service {
	return &Service{
		session: session,
		ledger:  l,
		oracle:  r,
		log:     log.With().Str("component", "play").Logger(),
	}
}

// Info returns the public projection of the active round.
func (s *Service) Info() (game.Info, bool) { return s.session.Info() }

// Transcript returns the shared transcript, or nil when addr has not
// submitted anything in the active round.
func (s *Service) Transcript(addr string) []game.Entry { return s.session.Transcript(addr) }

// Submit spends one attempt on text for addr.
//
// Unknown players and players out of tries are first re-synced with the
// entry fees confirmed on the ledger. The attempt is consumed before the win
// check or the responder call, so a failed reply still costs a try.
func (s *Service) Submit(ctx context.Context, addr, text string) (Reply, error) {
	addr = game.NormalizeAddress(addr)
	gameID, ok := s.session.GameID()
	if !ok {
		return Reply{}, game.ErrNoActiveGame
	}
	log := s.log.With().Int64("game_id", gameID).Str("address", addr).Logger()

	if p, known := s.session.Player(addr); !known || p.Tries == 0 {
		s.syncEntryFees(ctx, log, gameID, addr, known)
	}

	a, err := s.session.Attempt(addr, text)
	if err != nil {
		return Reply{TriesLeft: a.TriesLeft}, err
	}

	if a.Won {
		log.Info().Msg("secret guessed")
		s.session.Record(a.GameID, addr, text, responder.WinTranscript)
		reply := Reply{Won: true, Response: responder.WinResponse, TriesLeft: a.TriesLeft}
		reply.TxHash, err = s.payout(ctx, log, addr)
		if err != nil {
			reply.TxError = err.Error()
		}
		return reply, nil
	}

	out, err := s.oracle.Generate(ctx, a.Secret, text)
	if err != nil {
		log.Error().Err(err).Msg("responder failed")
		return Reply{TriesLeft: a.TriesLeft}, fmt.Errorf("%w: %v", game.ErrResponderFailed, err)
	}
	if game.Leaks(a.Secret, out) {
		log.Warn().Msg("reply contained the secret, deflecting")
		out = responder.Deflection
	}
	if _, ok := s.session.Record(a.GameID, addr, text, out); !ok {
		log.Info().Msg("round changed before the reply was recorded")
	}
	return Reply{Response: out, TriesLeft: a.TriesLeft}, nil
}

// syncEntryFees credits entry fees confirmed on the ledger but not yet
// recorded locally. Read failures leave the player as they were.
func (s *Service) syncEntryFees(ctx context.Context, log zerolog.Logger, gameID int64, addr string, known bool) {
	n, err := s.ledger.EntryCount(ctx, addr)
	if err == nil {
		if p, ok := s.session.SyncEntryFees(gameID, addr, n); ok {
			log.Debug().Int("entries", p.TotalBuyIns).Int("tries", p.Tries).Msg("entry fees synced")
		}
		return
	}
	log.Warn().Err(err).Msg("entry count read failed")
	if known {
		return
	}
	paid, err := s.ledger.HasEntryFeePaid(ctx, addr)
	if err != nil {
		log.Warn().Err(err).Msg("entry fee check failed")
		return
	}
	if paid {
		s.session.SyncEntryFees(gameID, addr, 1)
	}
}

// payout declares addr the winner on the ledger and waits for confirmation.
// It runs detached from ctx so a dropped client cannot abandon the payout.
func (s *Service) payout(ctx context.Context, log zerolog.Logger, addr string) (string, error) {
	if !s.ledger.CanTransact() {
		log.Error().Msg("winner not declared on ledger: no operator key")
		return "", fmt.Errorf("%w: %v", game.ErrLedgerTx, ledger.ErrReadOnly)
	}
	ctx = context.WithoutCancel(ctx)
	tx, err := s.ledger.DeclareWinner(ctx, addr)
	if err != nil {
		log.Error().Err(err).Msg("declareWinner send failed")
		return "", fmt.Errorf("%w: %v", game.ErrLedgerTx, err)
	}
	if err := s.ledger.AwaitConfirmation(ctx, tx); err != nil {
		log.Error().Err(err).Str("tx", tx.Hash).Msg("declareWinner not confirmed")
		return tx.Hash, fmt.Errorf("%w: %v", game.ErrLedgerTx, err)
	}
	log.Info().Str("tx", tx.Hash).Msg("winner declared on ledger")
	return tx.Hash, nil
}

// ForceEnd clears the active round locally and returns it. The ledger round
// is left alone.
func (s *Service) ForceEnd() (*store.Closed, error) {
	c := s.session.EndGame()
	if c == nil {
		return nil, game.ErrNoActiveGame
	}
	s.log.Warn().Int64("game_id", c.Info.GameID).Str("secret", c.Secret).Msg("round force-ended")
	return c, nil
}

// ForceSetSecret installs secret as round gameID, typically to recover a
// ledger round after a restart. A zero gameID means the ledger's current
// round, or round 1 when the ledger cannot be read.
func (s *Service) ForceSetSecret(ctx context.Context, gameID int64, secret string) (Recovery, error) {
	secret = game.NormalizeSecret(secret)
	if secret == "" {
		return Recovery{}, errors.New("secret is required")
	}

	var chain *ledger.RoundInfo
	if info, err := s.ledger.RoundInfo(ctx); err != nil {
		s.log.Warn().Err(err).Msg("recovery without ledger round info")
	} else {
		chain = &info
	}
	if gameID == 0 {
		gameID = 1
		if chain != nil && chain.GameID > 0 {
			gameID = chain.GameID
		}
	}

	c := s.session.SetSecret(gameID, secret)
	rec := Recovery{GameID: gameID, Commitment: c}
	if chain != nil {
		match := chain.GameID == gameID && chain.Commitment == c
		rec.MatchesLedger = &match
		if !match {
			s.log.Warn().
				Int64("game_id", gameID).
				Int64("ledger_game_id", chain.GameID).
				Str("commitment", c.Hex()).
				Str("ledger_commitment", chain.Commitment.Hex()).
				Msg("recovered secret does not match ledger commitment")
		}
	}
	s.log.Info().Int64("game_id", gameID).Str("commitment", c.Hex()).Msg("secret set by operator")
	return rec, nil
}

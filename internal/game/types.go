// internal/game/types.go
//
// Core type definitions for an oracle round.
// Defines:
//   - PlayerState: per-wallet attempt budget and participation.
//   - Entry: one transcript line (question/guess plus the oracle's reply).
//   - Game: the single active round held by the session store.
//   - Info: public projection of a Game (never carries the secret).

package game

import (
	"time"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/words"
)

// DefaultTriesPerEntry is the attempt allotment granted per confirmed entry fee.
const DefaultTriesPerEntry = 5

// PlayerState tracks one wallet within a round.
type PlayerState struct {
	Tries           int  `json:"tries"`           // remaining attempts, never below zero
	HasParticipated bool `json:"hasParticipated"` // set on first consumed attempt; gates transcript access
	TotalBuyIns     int  `json:"totalBuyIns"`     // confirmed entry fees recorded this round
}

// Entry is one line of the shared transcript.
// Seq is the authoritative order; At is for display only.
type Entry struct {
	Seq      uint64    `json:"seq"`
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Message  string    `json:"message"`
	Response string    `json:"response"`
	At       time.Time `json:"timestamp"`
}

// Game holds the state of the active round.
// It is not safe for concurrent use; the session store serializes access.
type Game struct {
	ID            int64             // round id assigned by the ledger
	Difficulty    words.Difficulty  // selection metadata only
	Commitment    commitment.Digest // always Of(secret)
	StartedAt     time.Time
	Winner        string // lowercase address; empty until the round is won
	TriesPerEntry int

	secret     string
	transcript []Entry
	players    map[string]*PlayerState
	nextSeq    uint64
}

// Info is the public projection of a Game.
type Info struct {
	GameID           int64             `json:"gameId"`
	Commitment       commitment.Digest `json:"commitment"`
	Difficulty       words.Difficulty  `json:"difficulty"`
	TranscriptLength int               `json:"chatCount"`
	PlayerCount      int               `json:"playerCount"`
	StartedAt        time.Time         `json:"startedAt"`
	Winner           string            `json:"winner,omitempty"`
}

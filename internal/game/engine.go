// internal/game/engine.go
//
// Attempt and win rules for a single oracle round.
// Responsibilities:
//   - Grant attempts for confirmed entry fees.
//   - Consume exactly one attempt per submission.
//   - Detect a whole-word match of the secret (first match wins).
//   - Flag replies that leak the secret as a substring.
//   - Keep the shared, append-ordered transcript and gate who may read it.
//
// Notes:
//   - Addresses are canonicalized to lowercase on every call.
//   - Nothing here locks; the session store owns the *Game and serializes access.

package game

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/words"
)

// New constructs a round for secret. The commitment is derived here so the
// two are always set together.
func New(id int64, secret string, d words.Difficulty, now time.Time) *Game {
	secret = NormalizeSecret(secret)
	return &Game{
		ID:            id,
		Difficulty:    d,
		Commitment:    commitment.Of(secret),
		StartedAt:     now,
		TriesPerEntry: DefaultTriesPerEntry,
		secret:        secret,
		players:       make(map[string]*PlayerState),
	}
}

// NormalizeAddress canonicalizes a wallet address for use as a player key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeSecret lowercases and trims a secret word.
func NormalizeSecret(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Secret returns the round's secret word.
func (g *Game) Secret() string { return g.secret }

// Info returns the public projection of the round.
func (g *Game) Info() Info {
	return Info{
		GameID:           g.ID,
		Commitment:       g.Commitment,
		Difficulty:       g.Difficulty,
		TranscriptLength: len(g.transcript),
		PlayerCount:      len(g.players),
		StartedAt:        g.StartedAt,
		Winner:           g.Winner,
	}
}

// Player returns a copy of the player's state.
func (g *Game) Player(addr string) (PlayerState, bool) {
	p, ok := g.players[NormalizeAddress(addr)]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

// RecordEntryFee credits one confirmed entry fee to addr.
// Each call is one fee event; callers must not replay the same event.
func (g *Game) RecordEntryFee(addr string) PlayerState {
	key := NormalizeAddress(addr)
	p, ok := g.players[key]
	if !ok {
		p = &PlayerState{}
		g.players[key] = p
	}
	p.Tries += g.TriesPerEntry
	p.TotalBuyIns++
	return *p
}

// ConsumeAttempt spends one try. It returns false without effect when the
// player is unknown or out of tries.
func (g *Game) ConsumeAttempt(addr string) bool {
	p, ok := g.players[NormalizeAddress(addr)]
	if !ok || p.Tries <= 0 {
		return false
	}
	p.Tries--
	p.HasParticipated = true
	return true
}

// CheckWin reports whether text names the secret as a whole word.
// Always false once a winner exists.
func (g *Game) CheckWin(text string) bool {
	if g.Winner != "" {
		return false
	}
	return MatchesWord(g.secret, text)
}

// DeclareWinner records the winner. Callers guard with CheckWin, so this is
// reached at most once per round.
func (g *Game) DeclareWinner(addr string) {
	g.Winner = NormalizeAddress(addr)
}

// ContainsSecret reports whether text contains the secret anywhere,
// including inside a longer word.
func (g *Game) ContainsSecret(text string) bool {
	return Leaks(g.secret, text)
}

// Append adds an entry to the transcript and returns it with its sequence number.
func (g *Game) Append(addr, message, response string, at time.Time) Entry {
	g.nextSeq++
	e := Entry{
		Seq:      g.nextSeq,
		ID:       uuid.NewString(),
		Address:  NormalizeAddress(addr),
		Message:  message,
		Response: response,
		At:       at,
	}
	g.transcript = append(g.transcript, e)
	return e
}

// Transcript returns a copy of the shared transcript if addr has spent at
// least one attempt this round, otherwise nil.
func (g *Game) Transcript(addr string) []Entry {
	p, ok := g.players[NormalizeAddress(addr)]
	if !ok || !p.HasParticipated {
		return nil
	}
	return g.Entries()
}

// Entries returns a copy of the full transcript regardless of participation.
func (g *Game) Entries() []Entry {
	out := make([]Entry, len(g.transcript))
	copy(out, g.transcript)
	return out
}

// MatchesWord reports whether secret occurs in text bounded by non-word
// characters or the ends of the string, ignoring case.
func MatchesWord(secret, text string) bool {
	secret = NormalizeSecret(secret)
	if secret == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(secret) + `\b`)
	return re.MatchString(strings.TrimSpace(text))
}

// Leaks reports whether text contains secret as a case-insensitive substring.
func Leaks(secret, text string) bool {
	secret = NormalizeSecret(secret)
	if secret == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), secret)
}

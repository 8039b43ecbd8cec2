// internal/store/memory.go
//
// In-memory session store holding at most one active round.
//
// Characteristics:
//   - Owns a single *game.Game; starting a round replaces the previous one outright.
//   - Every mutation runs under one exclusive mutex, so check-then-decrement
//     sequences on a player's tries cannot race.
//   - Info() reads an atomically swapped snapshot and never takes the lock.
//   - Operations on a missing round return zero values / false / nil; they never panic.
//   - Nothing here blocks on the network. Callers copy out what they need,
//     release, call the ledger or responder, then come back to commit.
//   - State is lost when the process restarts.

package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/words"
)

// Draft is a freshly drawn secret that has not been installed yet.
type Draft struct {
	Secret     string
	Difficulty words.Difficulty
	Commitment commitment.Digest
}

// Closed describes a round removed from the store.
type Closed struct {
	Info       game.Info
	Secret     string
	Transcript []game.Entry
	EndedAt    time.Time
}

// Observer is notified after rounds are installed or cleared.
// Calls happen outside the store lock.
type Observer interface {
	RoundStarted(info game.Info)
	RoundEnded(c Closed)
}

// Attempt is the outcome of the locked consume-and-check step of a submission.
type Attempt struct {
	GameID    int64
	Secret    string
	Won       bool
	TriesLeft int
}

// Session is the process-wide round holder.
type Session struct {
	mu            sync.Mutex // guards g
	g             *game.Game
	snap          atomic.Pointer[game.Info]
	sel           *words.Selector
	now           func() time.Time
	triesPerEntry int
	observers     []Observer
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// WithTriesPerEntry overrides the attempt allotment per entry fee.
func WithTriesPerEntry(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.triesPerEntry = n
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// NewSession constructs an empty Session drawing secrets from sel.
func NewSession(sel *words.Selector, opts ...Option) *Session {
	s := &Session{sel: sel, now: time.Now, triesPerEntry: game.DefaultTriesPerEntry}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ------------------------------ lifecycle ----------------------------------

// Draw picks a new secret and its commitment without touching the store.
func (s *Session) Draw() Draft {
	secret, d := s.sel.Select()
	return Draft{Secret: secret, Difficulty: d, Commitment: commitment.Of(secret)}
}

// Install replaces any current round with a new one built from d.
// A replaced round is reported to observers as ended, unless it carried the
// same game id: that round is still live on the ledger and its secret must
// stay hidden.
func (s *Session) Install(gameID int64, d Draft) game.Info {
	g := game.New(gameID, d.Secret, d.Difficulty, s.now())
	g.TriesPerEntry = s.triesPerEntry

	s.mu.Lock()
	prev := s.closeLocked()
	s.g = g
	info := s.publishLocked()
	s.mu.Unlock()

	if prev != nil && prev.Info.GameID == gameID {
		prev = nil
	}

	for _, o := range s.observers {
		if prev != nil {
			o.RoundEnded(*prev)
		}
		o.RoundStarted(info)
	}
	return info
}

// StartGame draws a secret and installs it as round gameID.
func (s *Session) StartGame(gameID int64) Draft {
	d := s.Draw()
	s.Install(gameID, d)
	return d
}

// SetSecret force-installs secret for round gameID. Used to recover a round
// that is live on the ledger after server memory was lost; the difficulty is
// unknown and recorded as medium.
func (s *Session) SetSecret(gameID int64, secret string) commitment.Digest {
	secret = game.NormalizeSecret(secret)
	d := Draft{Secret: secret, Difficulty: words.Medium, Commitment: commitment.Of(secret)}
	s.Install(gameID, d)
	return d.Commitment
}

// EndGame clears the current round and returns it for audit.
// Returns nil when no round was active.
func (s *Session) EndGame() *Closed {
	s.mu.Lock()
	c := s.closeLocked()
	s.g = nil
	s.publishLocked()
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	for _, o := range s.observers {
		o.RoundEnded(*c)
	}
	return c
}

// ------------------------------- queries -----------------------------------

// Info returns the public projection of the active round without locking.
func (s *Session) Info() (game.Info, bool) {
	p := s.snap.Load()
	if p == nil {
		return game.Info{}, false
	}
	return *p, true
}

// Secret returns the active secret. Never expose this to players.
func (s *Session) Secret() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return "", false
	}
	return s.g.Secret(), true
}

// GameID returns the active round id.
func (s *Session) GameID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return 0, false
	}
	return s.g.ID, true
}

// Player returns the state for addr in the active round.
func (s *Session) Player(addr string) (game.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return game.PlayerState{}, false
	}
	return s.g.Player(addr)
}

// Transcript returns the shared transcript if addr has participated, else nil.
func (s *Session) Transcript(addr string) []game.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return nil
	}
	return s.g.Transcript(addr)
}

// ------------------------------ mutations ----------------------------------

// RecordEntryFee credits one confirmed entry fee to addr.
func (s *Session) RecordEntryFee(addr string) (game.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return game.PlayerState{}, false
	}
	p := s.g.RecordEntryFee(addr)
	s.publishLocked()
	return p, true
}

// SyncEntryFees records entry fees for addr until TotalBuyIns reaches
// confirmed. It only applies to round gameID and returns the resulting state.
func (s *Session) SyncEntryFees(gameID int64, addr string, confirmed int) (game.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil || s.g.ID != gameID {
		return game.PlayerState{}, false
	}
	p, _ := s.g.Player(addr)
	for i := p.TotalBuyIns; i < confirmed; i++ {
		p = s.g.RecordEntryFee(addr)
	}
	s.publishLocked()
	_, known := s.g.Player(addr)
	return p, known
}

// ConsumeAttempt spends one try for addr.
func (s *Session) ConsumeAttempt(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return false
	}
	return s.g.ConsumeAttempt(addr)
}

// CheckWin reports whether text wins the active round.
func (s *Session) CheckWin(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return false
	}
	return s.g.CheckWin(text)
}

// DeclareWinner sets the winner of the active round.
func (s *Session) DeclareWinner(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return
	}
	s.g.DeclareWinner(addr)
	s.publishLocked()
}

// ContainsSecret reports whether text leaks the active secret.
func (s *Session) ContainsSecret(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return false
	}
	return s.g.ContainsSecret(text)
}

// RecordTranscriptEntry appends to the active round's transcript.
func (s *Session) RecordTranscriptEntry(addr, message, response string) (game.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return game.Entry{}, false
	}
	e := s.g.Append(addr, message, response, s.now())
	s.publishLocked()
	return e, true
}

// Attempt runs the consume / win-check / declare step of one submission as a
// single critical section. On a win the winner is set before the lock is
// released, so two concurrent correct guesses cannot both win.
//
// Errors: game.ErrNoActiveGame, game.ErrUnconfirmedEntryFee (unknown player),
// game.ErrInsufficientAttempts.
func (s *Session) Attempt(addr, text string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil {
		return Attempt{}, game.ErrNoActiveGame
	}
	if _, ok := s.g.Player(addr); !ok {
		return Attempt{}, game.ErrUnconfirmedEntryFee
	}
	if !s.g.ConsumeAttempt(addr) {
		return Attempt{GameID: s.g.ID}, game.ErrInsufficientAttempts
	}
	a := Attempt{GameID: s.g.ID, Secret: s.g.Secret()}
	if s.g.CheckWin(text) {
		s.g.DeclareWinner(addr)
		a.Won = true
		s.publishLocked()
	}
	p, _ := s.g.Player(addr)
	a.TriesLeft = p.Tries
	return a, nil
}

// Record appends a transcript entry only if round gameID is still active.
// Used to commit a reply produced outside the lock.
func (s *Session) Record(gameID int64, addr, message, response string) (game.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.g == nil || s.g.ID != gameID {
		return game.Entry{}, false
	}
	e := s.g.Append(addr, message, response, s.now())
	s.publishLocked()
	return e, true
}

// closeLocked captures the current round for observers. Caller holds s.mu.
func (s *Session) closeLocked() *Closed {
	if s.g == nil {
		return nil
	}
	return &Closed{
		Info:       s.g.Info(),
		Secret:     s.g.Secret(),
		Transcript: s.g.Entries(),
		EndedAt:    s.now(),
	}
}

// publishLocked refreshes the lock-free snapshot. Caller holds s.mu.
func (s *Session) publishLocked() game.Info {
	if s.g == nil {
		s.snap.Store(nil)
		return game.Info{}
	}
	info := s.g.Info()
	s.snap.Store(&info)
	return info
}

package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/zoltar/internal/store"
	"github.com/robalobadob/zoltar/internal/words"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "zoltar.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func newSession(t *testing.T, a *Store) *store.Session {
	t.Helper()
	sel, err := words.NewSelector(map[words.Difficulty][]string{
		words.Easy: {"moon"}, words.Medium: {"ledger"}, words.Hard: {"luna"},
	})
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return store.NewSession(sel, store.WithClock(clock), store.WithObserver(a))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zoltar.db")
	a, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
}

func TestStartedRoundHidesSecret(t *testing.T) {
	a := openTemp(t)
	s := newSession(t, a)
	c := s.SetSecret(3, "luna")

	r, entries, err := a.Round(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, c, r.Commitment)
	assert.Equal(t, words.Medium, r.Difficulty)
	assert.Empty(t, r.Secret)
	assert.Nil(t, r.EndedAt)
	assert.False(t, r.Verified)
	assert.Empty(t, entries)
}

func TestRetriedRecoveryKeepsSecretHidden(t *testing.T) {
	a := openTemp(t)
	s := newSession(t, a)
	s.SetSecret(4, "luna")
	c := s.SetSecret(4, "moon")

	r, _, err := a.Round(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, c, r.Commitment)
	assert.Empty(t, r.Secret)
	assert.Nil(t, r.EndedAt)
	assert.False(t, r.Verified)
}

func TestEndedRoundIsRevealed(t *testing.T) {
	a := openTemp(t)
	s := newSession(t, a)
	s.SetSecret(3, "luna")
	s.RecordEntryFee("0xA")
	_, err := s.Attempt("0xA", "is it the moon?")
	require.NoError(t, err)
	s.Record(3, "0xA", "is it the moon?", "The tides say no.")
	_, err = s.Attempt("0xA", "luna")
	require.NoError(t, err)
	s.Record(3, "0xA", "luna", "CORRECT! YOU WIN!")
	s.EndGame()

	r, entries, err := a.Round(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "luna", r.Secret)
	assert.Equal(t, "0xa", r.Winner)
	assert.Equal(t, 1, r.PlayerCount)
	assert.True(t, r.Verified)
	require.NotNil(t, r.EndedAt)

	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, "is it the moon?", entries[0].Message)
	assert.Equal(t, uint64(2), entries[1].Seq)
}

func TestRoundsNewestFirst(t *testing.T) {
	a := openTemp(t)
	s := newSession(t, a)
	s.StartGame(1)
	s.StartGame(2)
	s.StartGame(3)

	rounds, err := a.Rounds(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, int64(3), rounds[0].GameID)
	assert.Nil(t, rounds[0].EndedAt, "the live round is not revealed")
	assert.NotEmpty(t, rounds[1].Secret, "replaced rounds are revealed")
	assert.True(t, rounds[1].Verified)
}

func TestUnknownRound(t *testing.T) {
	a := openTemp(t)
	_, _, err := a.Round(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

// Package archive keeps a durable history of rounds in SQLite.
//
// A round's row is written when it starts with public fields only. The
// secret, winner and transcript are written when the round ends, so the
// archive never holds a secret that has not been revealed.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/zoltar/assets"
	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/store"
	"github.com/robalobadob/zoltar/internal/words"
)

// ErrNotFound is returned for an unknown round id.
var ErrNotFound = errors.New("archive: round not found")

const writeTimeout = 5 * time.Second

// Round is one archived round.
type Round struct {
	GameID      int64             `json:"gameId"`
	Commitment  commitment.Digest `json:"commitment"`
	Difficulty  words.Difficulty  `json:"difficulty"`
	StartedAt   time.Time         `json:"startedAt"`
	EndedAt     *time.Time        `json:"endedAt,omitempty"`
	Secret      string            `json:"secret,omitempty"`
	Winner      string            `json:"winner,omitempty"`
	PlayerCount int               `json:"playerCount"`
	// Verified reports whether the revealed secret matches the commitment.
	Verified bool `json:"verified"`
}

// Store is the SQLite-backed archive. It implements store.Observer.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens the archive at path and applies migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	log = log.With().Str("component", "archive").Logger()
	if err := migrate(db, assets.Migrations(), log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RoundStarted records a new round. Re-installing an id resets its row.
func (s *Store) RoundStarted(info game.Info) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.insertRound(ctx, info); err != nil {
		s.log.Error().Err(err).Int64("game_id", info.GameID).Msg("archive round start failed")
	}
}

// RoundEnded records the revealed secret, winner and transcript.
func (s *Store) RoundEnded(c store.Closed) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.closeRound(ctx, c); err != nil {
		s.log.Error().Err(err).Int64("game_id", c.Info.GameID).Msg("archive round end failed")
	}
}

func (s *Store) insertRound(ctx context.Context, info game.Info) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_entries WHERE game_id=?`, info.GameID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO rounds (game_id, commitment, difficulty, started_at, player_count)
        VALUES (?, ?, ?, ?, 0)
        ON CONFLICT(game_id) DO UPDATE SET
            commitment=excluded.commitment,
            difficulty=excluded.difficulty,
            started_at=excluded.started_at,
            ended_at=NULL, secret=NULL, winner=NULL, player_count=0`,
		info.GameID, info.Commitment.Hex(), string(info.Difficulty), formatTime(info.StartedAt),
	); err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return tx.Commit()
}

func (s *Store) closeRound(ctx context.Context, c store.Closed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	info := c.Info
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO rounds (game_id, commitment, difficulty, started_at, ended_at, secret, winner, player_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(game_id) DO UPDATE SET
            ended_at=excluded.ended_at,
            secret=excluded.secret,
            winner=excluded.winner,
            player_count=excluded.player_count`,
		info.GameID, info.Commitment.Hex(), string(info.Difficulty), formatTime(info.StartedAt),
		formatTime(c.EndedAt), c.Secret, nullable(info.Winner), info.PlayerCount,
	); err != nil {
		return fmt.Errorf("close round: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO transcript_entries
            (game_id, seq, entry_id, address, message, response, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range c.Transcript {
		if _, err := stmt.ExecContext(ctx,
			info.GameID, e.Seq, e.ID, e.Address, e.Message, e.Response, formatTime(e.At),
		); err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Int64("game_id", info.GameID).Int("entries", len(c.Transcript)).Msg("round archived")
	return nil
}

// Rounds returns up to limit rounds, newest first.
func (s *Store) Rounds(ctx context.Context, limit int) ([]Round, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT game_id, commitment, difficulty, started_at, ended_at, secret, winner, player_count
        FROM rounds
        ORDER BY game_id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Round returns one round and its transcript in sequence order.
func (s *Store) Round(ctx context.Context, gameID int64) (Round, []game.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT game_id, commitment, difficulty, started_at, ended_at, secret, winner, player_count
        FROM rounds WHERE game_id=?`, gameID)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Round{}, nil, ErrNotFound
	}
	if err != nil {
		return Round{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT seq, entry_id, address, message, response, created_at
        FROM transcript_entries
        WHERE game_id=?
        ORDER BY seq`, gameID)
	if err != nil {
		return Round{}, nil, err
	}
	defer rows.Close()

	entries := []game.Entry{}
	for rows.Next() {
		var (
			e  game.Entry
			at string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Address, &e.Message, &e.Response, &at); err != nil {
			return Round{}, nil, err
		}
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return r, entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRound(sc scanner) (Round, error) {
	var (
		r                      Round
		c, difficulty, started string
		ended, secret, winner  sql.NullString
	)
	if err := sc.Scan(&r.GameID, &c, &difficulty, &started, &ended, &secret, &winner, &r.PlayerCount); err != nil {
		return Round{}, err
	}
	d, err := commitment.Parse(c)
	if err != nil {
		return Round{}, fmt.Errorf("round %d: %w", r.GameID, err)
	}
	r.Commitment = d
	r.Difficulty = words.Difficulty(difficulty)
	r.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		r.EndedAt = &t
	}
	r.Secret = secret.String
	r.Winner = winner.String
	r.Verified = secret.Valid && commitment.Verify(secret.String, d)
	return r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ store.Observer = (*Store)(nil)

// internal/httpserver/routes_game.go
//
// Round, player, loop and archive handlers.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/zoltar/internal/archive"
	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/rotation"
)

const maxMessageLen = 500

// ------------------------------ round --------------------------------------

type gameRes struct {
	Active bool `json:"active"`
	*game.Info
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	info, ok := s.play.Info()
	if !ok {
		writeJSON(w, http.StatusOK, gameRes{Active: false})
		return
	}
	writeJSON(w, http.StatusOK, gameRes{Active: true, Info: &info})
}

type setSecretReq struct {
	GameID int64  `json:"gameId"`
	Secret string `json:"secret"`
}

// handleSetSecret force-installs a secret, usually to recover a ledger round
// after a restart.
func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	var req setSecretReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Secret) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Secret is required")
		return
	}
	rec, err := s.play.ForceSetSecret(r.Context(), req.GameID, req.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gameId":        rec.GameID,
		"commitment":    rec.Commitment,
		"matchesLedger": rec.MatchesLedger,
		"message":       "Server synced with on-chain game",
	})
}

func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	c, err := s.play.ForceEnd()
	if errors.Is(err, game.ErrNoActiveGame) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No active game", "revealedSecret": nil})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Game ended",
		"gameId":         c.Info.GameID,
		"revealedSecret": c.Secret,
	})
}

// handleStartGame starts a round when the ledger has none active.
// The start outlives the request so a disconnect never strands a sent tx.
func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	out, err := s.loop.StartIfIdle(context.WithoutCancel(r.Context()))
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("manual start refused or failed")
		writeDomainError(w, err)
		return
	}
	info, _ := s.play.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Game started!",
		"gameId":     out.GameID,
		"commitment": out.Commitment,
		"difficulty": info.Difficulty,
	})
}

// ------------------------------ player -------------------------------------

type submitReq struct {
	Message string `json:"message"`
	Address string `json:"address"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Message is required")
		return
	}
	if len(req.Message) > maxMessageLen {
		writeError(w, http.StatusBadRequest, "bad_request", "Message is too long")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "bad_request", "Address is required")
		return
	}

	reply, err := s.play.Submit(r.Context(), req.Address, req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Address required")
		return
	}
	chat := s.play.Transcript(addr)
	if chat == nil {
		writeJSON(w, http.StatusOK, map[string]any{"chat": nil, "message": "Send a message to see the chat"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat})
}

// ------------------------------- loop --------------------------------------

func (s *Server) handleLoopStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.loop.Running()})
}

func (s *Server) handleLoopStart(w http.ResponseWriter, r *http.Request) {
	err := s.loop.Start()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"running": true, "message": "Game loop started"})
	case errors.Is(err, rotation.ErrAlreadyRunning):
		writeJSON(w, http.StatusOK, map[string]any{"running": true, "message": "Game loop already running"})
	case errors.Is(err, rotation.ErrLoopClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		writeDomainError(w, err)
	}
}

func (s *Server) handleLoopStop(w http.ResponseWriter, r *http.Request) {
	if err := s.loop.Stop(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": false, "message": "Game loop stopped"})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	out, err := s.loop.Reconcile(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, game.ErrDesync) {
			writeJSON(w, http.StatusOK, out)
			return
		}
		if errors.Is(err, game.ErrLedgerTx) {
			writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, "ledger_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ------------------------------ archive ------------------------------------

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled", "round archive is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rounds, err := s.archive.Rounds(r.Context(), limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list rounds")
		writeError(w, http.StatusInternalServerError, "db_error", "could not list rounds")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_disabled", "round archive is not configured")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid round id")
		return
	}
	round, entries, err := s.archive.Round(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "round not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("game_id", id).Msg("load round")
		writeError(w, http.StatusInternalServerError, "db_error", "could not load round")
		return
	}
	// The transcript of a live round is only visible to its participants.
	if round.EndedAt == nil {
		entries = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": round, "transcript": entries})
}

type verifyReq struct {
	Secret     string `json:"secret"`
	Commitment string `json:"commitment"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	want, err := commitment.Parse(req.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	got := commitment.Of(game.NormalizeSecret(req.Secret))
	writeJSON(w, http.StatusOK, map[string]any{"valid": got == want, "commitment": got})
}

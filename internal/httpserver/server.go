// internal/httpserver/server.go
//
// HTTP surface for the oracle.
// Responsibilities:
//   - Router + middleware (JSON, CORS, request IDs, access logs, panic recovery).
//   - Round endpoints: GET/PATCH/DELETE /game, POST /game/start.
//   - Player endpoints: POST /message (submit), GET /message (transcript).
//   - Rotation loop control: /loop, /loop/tick.
//   - Archive and verification: /rounds, /rounds/{id}, /verify.
//
// Notes:
//   - Handlers that wait on ledger confirmations or the responder are not
//     wrapped in the request timeout; the ledger client bounds its own waits.
//   - Operator routes require a bearer JWT (see auth.go).

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/zoltar/internal/archive"
	"github.com/robalobadob/zoltar/internal/game"
	"github.com/robalobadob/zoltar/internal/play"
	"github.com/robalobadob/zoltar/internal/rotation"
)

// Archive is the read side of the round archive.
type Archive interface {
	Rounds(ctx context.Context, limit int) ([]archive.Round, error)
	Round(ctx context.Context, gameID int64) (archive.Round, []game.Entry, error)
}

// Options configures a Server.
type Options struct {
	ClientOrigin   string
	OperatorSecret string
	Log            zerolog.Logger
}

// Server bundles the router and the services behind it.
type Server struct {
	r           *chi.Mux
	play        *play.Service
	loop        *rotation.Loop
	archive     Archive
	operatorKey []byte
	origin      string
	log         zerolog.Logger
}

// New constructs a Server, installs middleware, and registers routes.
// archive may be nil, in which case /rounds answers 503.
func New(p *play.Service, loop *rotation.Loop, a Archive, opts Options) *Server {
	s := &Server{
		r:           chi.NewRouter(),
		play:        p,
		loop:        loop,
		archive:     a,
		operatorKey: []byte(opts.OperatorSecret),
		origin:      opts.ClientOrigin,
		log:         opts.Log.With().Str("component", "http").Logger(),
	}
	if s.origin == "" {
		s.origin = "http://localhost:5173"
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(hlog.NewHandler(s.log))
	s.r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	s.r.Use(chimw.Recoverer)
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	// Quick reads share a request timeout.
	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Get("/game", s.handleGetGame)
		r.Get("/message", s.handleTranscript)
		r.Get("/loop", s.handleLoopStatus)
		r.Post("/loop", s.handleLoopStart)
		r.Get("/rounds", s.handleRounds)
		r.Get("/rounds/{id}", s.handleRound)
		r.Post("/verify", s.handleVerify)
	})

	s.r.Post("/message", s.handleSubmit)
	s.r.Post("/game/start", s.handleStartGame)

	s.r.Group(func(r chi.Router) {
		r.Use(s.requireOperator)
		r.Patch("/game", s.handleSetSecret)
		r.Delete("/game", s.handleEndGame)
		r.Delete("/loop", s.handleLoopStop)
		r.Post("/loop/tick", s.handleTick)
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})
	return s
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors allows the configured browser origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", s.origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- helpers -----------------------------------

type errorBody struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	NeedsEntryFee  bool   `json:"needsBuyIn,omitempty"`
	TriesRemaining *int   `json:"triesRemaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeDomainError maps the error taxonomy onto HTTP.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNoActiveGame):
		writeError(w, http.StatusBadRequest, "no_active_game", "No active game. Zoltar sleeps...")
	case errors.Is(err, game.ErrUnconfirmedEntryFee):
		writeJSON(w, http.StatusForbidden, errorBody{
			Error: "You must buy in to play", Code: "needs_entry_fee", NeedsEntryFee: true,
		})
	case errors.Is(err, game.ErrInsufficientAttempts):
		zero := 0
		writeJSON(w, http.StatusForbidden, errorBody{
			Error: "No tries remaining. Buy in again to continue.", Code: "no_tries", TriesRemaining: &zero,
		})
	case errors.Is(err, game.ErrGameStillActive):
		writeError(w, http.StatusConflict, "game_still_active", "Game already active. Wait for it to end.")
	case errors.Is(err, game.ErrLedgerTx):
		writeError(w, http.StatusBadGateway, "ledger_tx_failed", err.Error())
	case errors.Is(err, game.ErrResponderFailed):
		writeError(w, http.StatusBadGateway, "responder_failed", "Zoltar's crystal ball has clouded. Try again.")
	case errors.Is(err, game.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", "Agent wallet not configured")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	return dec.Decode(v)
}

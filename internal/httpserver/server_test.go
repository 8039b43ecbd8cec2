package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/zoltar/internal/archive"
	"github.com/robalobadob/zoltar/internal/commitment"
	"github.com/robalobadob/zoltar/internal/ledger"
	"github.com/robalobadob/zoltar/internal/ledger/ledgertest"
	"github.com/robalobadob/zoltar/internal/play"
	"github.com/robalobadob/zoltar/internal/responder"
	"github.com/robalobadob/zoltar/internal/rotation"
	"github.com/robalobadob/zoltar/internal/store"
	"github.com/robalobadob/zoltar/internal/words"
)

const (
	testSecret = "operator-test-secret"
	player     = "0x00000000000000000000000000000000000000aa"
)

type fixture struct {
	srv     *Server
	session *store.Session
	ledger  *ledgertest.Fake
	loop    *rotation.Loop
}

func newFixture(t *testing.T, round ledger.RoundInfo) *fixture {
	t.Helper()
	a, err := archive.Open(filepath.Join(t.TempDir(), "zoltar.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	sel, err := words.NewSelector(map[words.Difficulty][]string{
		words.Easy: {"moon"}, words.Medium: {"ledger"}, words.Hard: {"luna"},
	})
	require.NoError(t, err)
	session := store.NewSession(sel, store.WithObserver(a))
	fake := ledgertest.New(round)
	oracle := responder.Func(func(context.Context, string, string) (string, error) {
		return "The mempool whispers...", nil
	})
	svc := play.New(session, fake, oracle, zerolog.Nop())
	loop := rotation.New(session, fake, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := New(svc, loop, a, Options{OperatorSecret: testSecret, Log: zerolog.Nop()})
	return &fixture{srv: srv, session: session, ledger: fake, loop: loop}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func operatorToken(t *testing.T) string {
	t.Helper()
	tok, _, err := SignOperatorToken(testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHealth(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	rec, body := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}

func TestGetGame(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	_, body := f.do(t, http.MethodGet, "/game", "", "")
	assert.Equal(t, false, body["active"])

	c := f.session.SetSecret(3, "luna")
	rec, body := f.do(t, http.MethodGet, "/game", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, float64(3), body["gameId"])
	assert.Equal(t, c.Hex(), body["commitment"])
	assert.NotContains(t, rec.Body.String(), "luna")
}

func TestSubmitFlow(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 3, Active: true, TimeRemaining: 100})
	f.session.SetSecret(3, "luna")

	rec, body := f.do(t, http.MethodPost, "/message", `{"message":"hint?","address":"`+player+`"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "needs_entry_fee", body["code"])
	assert.Equal(t, true, body["needsBuyIn"])

	_, body = f.do(t, http.MethodGet, "/message?address="+player, "", "")
	assert.Nil(t, body["chat"])

	f.ledger.PayEntry(player, 1)
	rec, body = f.do(t, http.MethodPost, "/message", `{"message":"hint?","address":"`+player+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["won"])
	assert.Equal(t, float64(4), body["triesRemaining"])

	rec, body = f.do(t, http.MethodGet, "/message?address=0x"+strings.ToUpper(player[2:]), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	chat, ok := body["chat"].([]any)
	require.True(t, ok, "addresses are case-insensitive")
	assert.Len(t, chat, 1)

	rec, body = f.do(t, http.MethodPost, "/message", `{"message":"Luna!","address":"`+player+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["won"])
	assert.NotEmpty(t, body["txHash"])
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	f.session.SetSecret(1, "luna")

	rec, _ := f.do(t, http.MethodPost, "/message", `{"message":"","address":"`+player+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/message", `{"message":"hi","address":"nope"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/message", `{`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWithoutGame(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	rec, body := f.do(t, http.MethodPost, "/message", `{"message":"hi","address":"`+player+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_active_game", body["code"])
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	f.session.SetSecret(1, "luna")

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPatch, "/game", `{"secret":"moon"}`},
		{http.MethodDelete, "/game", ""},
		{http.MethodDelete, "/loop", ""},
		{http.MethodPost, "/loop/tick", ""},
	} {
		rec, _ := f.do(t, tc.method, tc.path, tc.body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		rec, _ = f.do(t, tc.method, tc.path, tc.body, "garbage")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}

	other, _, err := SignOperatorToken("another-secret", time.Hour)
	require.NoError(t, err)
	rec, _ := f.do(t, http.MethodDelete, "/game", "", other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	secret, ok := f.session.Secret()
	require.True(t, ok, "rejected calls leave the round alone")
	assert.Equal(t, "luna", secret)
}

func TestRecoveryAndForceEnd(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 6, Commitment: commitment.Of("moon"), Active: true, TimeRemaining: 50})
	tok := operatorToken(t)

	rec, body := f.do(t, http.MethodPatch, "/game", `{"secret":"Moon"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(6), body["gameId"])
	assert.Equal(t, true, body["matchesLedger"])

	rec, body = f.do(t, http.MethodDelete, "/game", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "moon", body["revealedSecret"])

	_, body = f.do(t, http.MethodDelete, "/game", "", tok)
	assert.Nil(t, body["revealedSecret"])

	rec, body = f.do(t, http.MethodGet, "/rounds/6", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	round := body["round"].(map[string]any)
	assert.Equal(t, "moon", round["secret"])
	assert.Equal(t, true, round["verified"])
}

func TestManualStart(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 2, Active: true, TimeRemaining: 30})
	rec, body := f.do(t, http.MethodPost, "/game/start", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "game_still_active", body["code"])

	f.ledger.SetRound(ledger.RoundInfo{GameID: 2})
	rec, body = f.do(t, http.MethodPost, "/game/start", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), body["gameId"])

	rec, body = f.do(t, http.MethodGet, "/rounds", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rounds"], 1)
}

func TestLoopControl(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 4, Active: true, TimeRemaining: 600})
	f.session.SetSecret(4, "luna")
	tok := operatorToken(t)

	_, body := f.do(t, http.MethodGet, "/loop", "", "")
	assert.Equal(t, false, body["running"])

	rec, body := f.do(t, http.MethodPost, "/loop", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["running"])
	assert.True(t, f.loop.Running())

	rec, body = f.do(t, http.MethodPost, "/loop/tick", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", body["action"])

	rec, _ = f.do(t, http.MethodDelete, "/loop", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.loop.Running())
}

func TestLoopStartWithoutKey(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	f.ledger.ReadOnly()
	rec, body := f.do(t, http.MethodPost, "/loop", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_configured", body["code"])
}

func TestVerify(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	c := commitment.Of("bitcoin")

	_, body := f.do(t, http.MethodPost, "/verify", `{"secret":"Bitcoin","commitment":"`+c.Hex()+`"}`, "")
	assert.Equal(t, true, body["valid"])
	_, body = f.do(t, http.MethodPost, "/verify", `{"secret":"ethereum","commitment":"`+c.Hex()+`"}`, "")
	assert.Equal(t, false, body["valid"])
	rec, _ := f.do(t, http.MethodPost, "/verify", `{"secret":"x","commitment":"0x12"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{})
	rec, body := f.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestStartSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/game/start", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"startGame", "await"}, f.ledger.Calls())
	id, ok := f.session.GameID()
	require.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.True(t, f.ledger.Round().Active)
}

func TestTickReportsDesync(t *testing.T) {
	f := newFixture(t, ledger.RoundInfo{GameID: 6, Active: true, TimeRemaining: 600})
	rec, body := f.do(t, http.MethodPost, "/loop/tick", "", operatorToken(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "desync", body["action"])
	assert.Equal(t, float64(6), body["chainGameId"])
}

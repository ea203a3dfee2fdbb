package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

type stubRoundService struct {
	round    domain.Round
	bet      domain.UserBet
	winner   uint8
	payout   uint64
	err      error
	lastUser string
}

func (s *stubRoundService) OpenRound(ctx context.Context, signer string) (domain.Round, error) {
	s.lastUser = signer
	return s.round, s.err
}

func (s *stubRoundService) Round(ctx context.Context, roundID string) (domain.Round, error) {
	return s.round, s.err
}

func (s *stubRoundService) PlaceBet(ctx context.Context, owner, roundID string, side uint8, amount uint64) (domain.UserBet, error) {
	s.lastUser = owner
	if s.err != nil {
		return domain.UserBet{}, s.err
	}
	return domain.UserBet{Owner: owner, Amount: amount, Side: side}, nil
}

func (s *stubRoundService) StartAnticipation(ctx context.Context, signer, roundID string) error {
	return s.err
}

func (s *stubRoundService) ResolveRound(ctx context.Context, signer, roundID string) (uint8, error) {
	return s.winner, s.err
}

func (s *stubRoundService) ClaimWin(ctx context.Context, owner, roundID string) (uint64, error) {
	s.lastUser = owner
	return s.payout, s.err
}

func (s *stubRoundService) CloseRound(ctx context.Context, signer, roundID string) error {
	return s.err
}

func newMux(svc *stubRoundService) *http.ServeMux {
	h := NewRoundHandler(svc, nil, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rounds", h.OpenRound)
	mux.HandleFunc("GET /api/rounds/{id}", h.GetRound)
	mux.HandleFunc("POST /api/rounds/{id}/bets", h.PlaceBet)
	mux.HandleFunc("POST /api/rounds/{id}/resolution", h.ResolveRound)
	mux.HandleFunc("POST /api/rounds/{id}/claims", h.ClaimWin)
	mux.HandleFunc("DELETE /api/rounds/{id}", h.CloseRound)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, ident, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if ident != "" {
		req.Header.Set("X-Identity", ident)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestOpenRound(t *testing.T) {
	svc := &stubRoundService{round: domain.Round{
		ID:        "r1",
		Phase:     domain.PhaseBetting,
		HouseSide: domain.SideNone,
	}}
	mux := newMux(svc)

	rec := doRequest(t, mux, http.MethodPost, "/api/rounds", "admin", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "admin", svc.lastUser)
	assert.Contains(t, rec.Body.String(), `"id":"r1"`)
	assert.Contains(t, rec.Body.String(), `"house_side":"none"`)
}

func TestPlaceBet(t *testing.T) {
	svc := &stubRoundService{}
	mux := newMux(svc)

	rec := doRequest(t, mux, http.MethodPost, "/api/rounds/r1/bets", "alice",
		`{"side":"sol","amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", svc.lastUser)
	assert.Contains(t, rec.Body.String(), `"side":"sol"`)

	rec = doRequest(t, mux, http.MethodPost, "/api/rounds/r1/bets", "alice",
		`{"side":"doge","amount":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/rounds/r1/bets", "alice", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveRound(t *testing.T) {
	svc := &stubRoundService{winner: domain.WinnerDraw}
	mux := newMux(svc)

	rec := doRequest(t, mux, http.MethodPost, "/api/rounds/r1/resolution", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"winner":"draw"`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidAdmin, http.StatusForbidden},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrBettingInactive, http.StatusConflict},
		{domain.ErrRoundInProgress, http.StatusConflict},
		{domain.ErrMaxUserBetExceeded, http.StatusBadRequest},
		{domain.ErrStaleOracle, http.StatusServiceUnavailable},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrHouseBankrupt, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &stubRoundService{err: tt.err}
			mux := newMux(svc)
			rec := doRequest(t, mux, http.MethodPost, "/api/rounds/r1/bets", "alice",
				`{"side":"sol","amount":100}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCloseRound(t *testing.T) {
	svc := &stubRoundService{}
	mux := newMux(svc)

	rec := doRequest(t, mux, http.MethodDelete, "/api/rounds/r1", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.err = domain.ErrBetsNotClaimed
	rec = doRequest(t, mux, http.MethodDelete, "/api/rounds/r1", "admin", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// RoundService defines the engine operations the round handler requires. It
// is declared locally so the handler package does not depend on the concrete
// engine implementation.
type RoundService interface {
	OpenRound(ctx context.Context, signer string) (domain.Round, error)
	Round(ctx context.Context, roundID string) (domain.Round, error)
	PlaceBet(ctx context.Context, owner, roundID string, side uint8, amount uint64) (domain.UserBet, error)
	StartAnticipation(ctx context.Context, signer, roundID string) error
	ResolveRound(ctx context.Context, signer, roundID string) (uint8, error)
	ClaimWin(ctx context.Context, owner, roundID string) (uint64, error)
	CloseRound(ctx context.Context, signer, roundID string) error
}

// RoundCache is an optional read cache for round snapshots.
type RoundCache interface {
	Get(ctx context.Context, id string) (domain.Round, error)
	Set(ctx context.Context, r domain.Round) error
}

// RoundHandler serves the round lifecycle endpoints.
type RoundHandler struct {
	rounds RoundService
	cache  RoundCache
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler. cache may be nil.
func NewRoundHandler(rounds RoundService, cache RoundCache, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{rounds: rounds, cache: cache, logger: logger}
}

// sideName translates a side code to its API representation.
func sideName(side uint8) string {
	switch side {
	case domain.SideSOL:
		return "sol"
	case domain.SideETH:
		return "eth"
	case domain.WinnerDraw:
		return "draw"
	default:
		return "none"
	}
}

// parseSide translates the API side representation to a side code.
func parseSide(s string) (uint8, bool) {
	switch s {
	case "sol":
		return domain.SideSOL, true
	case "eth":
		return domain.SideETH, true
	default:
		return 0, false
	}
}

// betView is the API shape of one ledger entry.
type betView struct {
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	Side    string `json:"side"`
	Claimed bool   `json:"claimed"`
}

// roundView is the API shape of a round.
type roundView struct {
	ID                string    `json:"id"`
	Phase             string    `json:"phase"`
	InitialPriceSOL   uint64    `json:"initial_price_sol"`
	InitialPriceETH   uint64    `json:"initial_price_eth"`
	FinalPriceSOL     uint64    `json:"final_price_sol"`
	FinalPriceETH     uint64    `json:"final_price_eth"`
	PoolSOL           uint64    `json:"pool_sol"`
	PoolETH           uint64    `json:"pool_eth"`
	HouseSide         string    `json:"house_side"`
	HouseAmount       uint64    `json:"house_amount"`
	BettingStart      uint64    `json:"betting_start"`
	AnticipationStart uint64    `json:"anticipation_start,omitempty"`
	AnticipationEnd   uint64    `json:"anticipation_end,omitempty"`
	Settled           bool      `json:"settled"`
	Bets              []betView `json:"bets"`
	CreatedAt         time.Time `json:"created_at"`
}

func viewOf(r domain.Round) roundView {
	bets := make([]betView, 0, len(r.Ledger.Entries))
	for _, b := range r.Ledger.Entries {
		bets = append(bets, betView{
			Owner:   b.Owner,
			Amount:  b.Amount,
			Side:    sideName(b.Side),
			Claimed: b.Claimed,
		})
	}
	return roundView{
		ID:                r.ID,
		Phase:             string(r.Phase),
		InitialPriceSOL:   r.InitialPrice[domain.SideSOL],
		InitialPriceETH:   r.InitialPrice[domain.SideETH],
		FinalPriceSOL:     r.FinalPrice[domain.SideSOL],
		FinalPriceETH:     r.FinalPrice[domain.SideETH],
		PoolSOL:           r.Pools[domain.SideSOL],
		PoolETH:           r.Pools[domain.SideETH],
		HouseSide:         sideName(r.HouseSide),
		HouseAmount:       r.HouseAmount,
		BettingStart:      r.BettingStart,
		AnticipationStart: r.AnticipationStart,
		AnticipationEnd:   r.AnticipationEnd,
		Settled:           r.Settled,
		Bets:              bets,
		CreatedAt:         r.CreatedAt,
	}
}

// OpenRound opens a new betting round.
// POST /api/rounds
func (h *RoundHandler) OpenRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.OpenRound(r.Context(), identity(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(round))
}

// GetRound returns a round with its ledger.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if h.cache != nil {
		if round, err := h.cache.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, viewOf(round))
			return
		}
	}

	round, err := h.rounds.Round(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), round); err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache round failed",
				slog.String("round_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, viewOf(round))
}

// placeBetRequest is the body of POST /api/rounds/{id}/bets.
type placeBetRequest struct {
	Side   string `json:"side"`
	Amount uint64 `json:"amount"`
}

// PlaceBet stakes the caller on a side of the round.
// POST /api/rounds/{id}/bets
func (h *RoundHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be \"sol\" or \"eth\"")
		return
	}

	bet, err := h.rounds.PlaceBet(r.Context(), identity(r), pathParam(r, "id"), side, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, betView{
		Owner:   bet.Owner,
		Amount:  bet.Amount,
		Side:    sideName(bet.Side),
		Claimed: bet.Claimed,
	})
}

// StartAnticipation freezes betting and records initial prices.
// POST /api/rounds/{id}/anticipation
func (h *RoundHandler) StartAnticipation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.rounds.StartAnticipation(r.Context(), identity(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"round_id": id, "phase": string(domain.PhaseAnticipating)})
}

// ResolveRound settles the round against final prices.
// POST /api/rounds/{id}/resolution
func (h *RoundHandler) ResolveRound(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	winner, err := h.rounds.ResolveRound(r.Context(), identity(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"round_id": id,
		"winner":   sideName(winner),
	})
}

// ClaimWin pays out the caller's settled bet.
// POST /api/rounds/{id}/claims
func (h *RoundHandler) ClaimWin(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	payout, err := h.rounds.ClaimWin(r.Context(), identity(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id": id,
		"payout":   payout,
	})
}

// CloseRound archives and deletes an evicted, fully claimed round.
// DELETE /api/rounds/{id}
func (h *RoundHandler) CloseRound(w http.ResponseWriter, r *http.Request) {
	if err := h.rounds.CloseRound(r.Context(), identity(r), pathParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

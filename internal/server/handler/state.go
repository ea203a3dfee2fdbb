package handler

import (
	"context"
	"net/http"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// StateService defines the engine operations the state handler requires.
type StateService interface {
	State(ctx context.Context) (domain.MarketState, error)
	ChangeConfig(ctx context.Context, signer string, params domain.MarketParams) error
	WithdrawHouseFunds(ctx context.Context, signer, receiver string, amount uint64) error
	Deposit(ctx context.Context, signer, owner string, amount uint64) error
	CleanRoundRecords(ctx context.Context, signer string) error
}

// StateHandler serves the market state and admin endpoints.
type StateHandler struct {
	state StateService
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(state StateService) *StateHandler {
	return &StateHandler{state: state}
}

// paramsView is the API shape of the tunable market parameters.
type paramsView struct {
	BettingFeeBps      uint64  `json:"betting_fee_bps"`
	MaxHouseMatch      uint64  `json:"max_house_match"`
	MaxHouseBetSize    uint64  `json:"max_house_bet_size"`
	MinMultiplier      float64 `json:"min_multiplier"`
	BettingPeriod      uint64  `json:"betting_period"`
	AnticipationPeriod uint64  `json:"anticipation_period"`
	MaxUserBet         uint64  `json:"max_user_bet"`
	CrankAdmin         string  `json:"crank_admin"`
	Paused             bool    `json:"paused"`
}

func paramsViewOf(p domain.MarketParams) paramsView {
	return paramsView(p)
}

func (v paramsView) toDomain() domain.MarketParams {
	return domain.MarketParams(v)
}

// recordView is the API shape of one round ring slot.
type recordView struct {
	RoundID string `json:"round_id"`
	Status  string `json:"status"`
}

// stateView is the API shape of the market state.
type stateView struct {
	Params       paramsView   `json:"params"`
	Owner        string       `json:"owner"`
	HouseAccount string       `json:"house_account"`
	Records      []recordView `json:"records"`
	ToClose      string       `json:"to_close,omitempty"`
}

// GetState returns the market singleton.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.State(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records := make([]recordView, 0, domain.RingSize)
	for _, rec := range state.Ring.Records {
		if rec.RoundID == "" {
			continue
		}
		records = append(records, recordView{RoundID: rec.RoundID, Status: string(rec.Status)})
	}
	writeJSON(w, http.StatusOK, stateView{
		Params:       paramsViewOf(state.Params),
		Owner:        state.Owner,
		HouseAccount: state.HouseAccount,
		Records:      records,
		ToClose:      state.Ring.ToClose,
	})
}

// UpdateConfig overwrites the market parameters.
// PUT /api/config
func (h *StateHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req paramsView
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.state.ChangeConfig(r.Context(), identity(r), req.toDomain()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// transferRequest is the body of the withdraw and deposit endpoints.
type transferRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// Withdraw moves house funds to an external account.
// POST /api/house/withdrawals
func (h *StateHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.state.WithdrawHouseFunds(r.Context(), identity(r), req.Account, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Deposit credits an account, recording an off-system deposit.
// POST /api/treasury/deposits
func (h *StateHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.state.Deposit(r.Context(), identity(r), req.Account, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ResetRecords clears the round ring after operator intervention.
// DELETE /api/round-records
func (h *StateHandler) ResetRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.state.CleanRoundRecords(r.Context(), identity(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package engine

import (
	"context"
	"log/slog"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory unit of work. Do snapshots the state, runs the operation on the
// copy, and commits only on success, mirroring the transactional rollback the
// postgres implementation provides.
// ---------------------------------------------------------------------------

type memState struct {
	market   *domain.MarketState
	rounds   map[string]domain.Round
	bets     map[string][]domain.UserBet
	balances map[string]uint64
}

func newMemState() *memState {
	return &memState{
		rounds:   map[string]domain.Round{},
		bets:     map[string][]domain.UserBet{},
		balances: map[string]uint64{},
	}
}

func (m *memState) clone() *memState {
	out := newMemState()
	if m.market != nil {
		cp := *m.market
		out.market = &cp
	}
	maps.Copy(out.rounds, m.rounds)
	for k, v := range m.bets {
		out.bets[k] = append([]domain.UserBet(nil), v...)
	}
	maps.Copy(out.balances, m.balances)
	return out
}

type memUOW struct {
	state *memState
}

func (u *memUOW) Do(ctx context.Context, fn func(ctx context.Context, s domain.StoreSet) error) error {
	scratch := u.state.clone()
	set := domain.StoreSet{
		State:    (*memStateStore)(scratch),
		Rounds:   (*memRoundStore)(scratch),
		Bets:     (*memBetStore)(scratch),
		Treasury: (*memTreasury)(scratch),
	}
	if err := fn(ctx, set); err != nil {
		return err
	}
	u.state = scratch
	return nil
}

type memStateStore memState

func (s *memStateStore) Get(ctx context.Context) (domain.MarketState, error) {
	if s.market == nil {
		return domain.MarketState{}, domain.ErrNotFound
	}
	return *s.market, nil
}

func (s *memStateStore) Init(ctx context.Context, state domain.MarketState) error {
	s.market = &state
	return nil
}

func (s *memStateStore) Save(ctx context.Context, state domain.MarketState) error {
	s.market = &state
	return nil
}

type memRoundStore memState

func (s *memRoundStore) Create(ctx context.Context, r domain.Round) error {
	s.rounds[r.ID] = r
	return nil
}

func (s *memRoundStore) Get(ctx context.Context, id string) (domain.Round, error) {
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	r.Ledger = domain.Ledger{}
	return r, nil
}

func (s *memRoundStore) Save(ctx context.Context, r domain.Round) error {
	r.Ledger = domain.Ledger{}
	s.rounds[r.ID] = r
	return nil
}

func (s *memRoundStore) Delete(ctx context.Context, id string) error {
	delete(s.rounds, id)
	return nil
}

type memBetStore memState

func (s *memBetStore) List(ctx context.Context, roundID string) ([]domain.UserBet, error) {
	return append([]domain.UserBet(nil), s.bets[roundID]...), nil
}

func (s *memBetStore) Replace(ctx context.Context, roundID string, entries []domain.UserBet) error {
	s.bets[roundID] = append([]domain.UserBet(nil), entries...)
	return nil
}

func (s *memBetStore) DeleteByRound(ctx context.Context, roundID string) error {
	delete(s.bets, roundID)
	return nil
}

type memTreasury memState

func (t *memTreasury) Move(ctx context.Context, from, to string, amount uint64) error {
	if t.balances[from] < amount {
		return domain.ErrInsufficientBalance
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

func (t *memTreasury) Balance(ctx context.Context, account string) (uint64, error) {
	return t.balances[account], nil
}

func (t *memTreasury) Credit(ctx context.Context, account string, amount uint64) error {
	t.balances[account] += amount
	return nil
}

type fakeOracle struct {
	prices map[string]domain.PricePoint
	err    error
}

func (o *fakeOracle) Price(ctx context.Context, feedID string) (domain.PricePoint, error) {
	if o.err != nil {
		return domain.PricePoint{}, o.err
	}
	p, ok := o.prices[feedID]
	if !ok {
		return domain.PricePoint{}, domain.ErrInvalidOracle
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const (
	admin = "crank-admin"
	owner = "market-owner"
	house = "house"

	solFeed = "feed-sol"
	ethFeed = "feed-eth"
)

type harness struct {
	engine *Engine
	uow    *memUOW
	oracle *fakeOracle
	nowSec uint64
}

func newHarness(t *testing.T, params domain.MarketParams) *harness {
	t.Helper()
	h := &harness{
		uow: &memUOW{state: newMemState()},
		oracle: &fakeOracle{prices: map[string]domain.PricePoint{
			solFeed: {Price: 100},
			ethFeed: {Price: 200},
		}},
		nowSec: 1_700_000_000,
	}
	logger := slog.New(slog.DiscardHandler)
	h.engine = New(h.uow, h.oracle, Config{SolFeedID: solFeed, EthFeedID: ethFeed}, logger).
		WithClock(func() time.Time { return time.Unix(int64(h.nowSec), 0) })

	require.NoError(t, h.engine.Bootstrap(context.Background(), domain.MarketState{
		Params:       params,
		Owner:        owner,
		HouseAccount: house,
	}))
	return h
}

func defaultParams() domain.MarketParams {
	return domain.MarketParams{
		BettingFeeBps:      0,
		MaxHouseMatch:      50,
		MaxHouseBetSize:    500,
		MinMultiplier:      0,
		BettingPeriod:      60,
		AnticipationPeriod: 60,
		MaxUserBet:         1_000_000,
		CrankAdmin:         admin,
	}
}

func (h *harness) credit(t *testing.T, account string, amount uint64) {
	t.Helper()
	require.NoError(t, h.engine.Deposit(context.Background(), owner, account, amount))
}

func (h *harness) balance(t *testing.T, account string) uint64 {
	t.Helper()
	return h.uow.state.balances[account]
}

func (h *harness) advance(seconds uint64) {
	h.nowSec += seconds
}

func (h *harness) setPrices(sol, eth uint64) {
	h.oracle.prices[solFeed] = domain.PricePoint{Price: sol}
	h.oracle.prices[ethFeed] = domain.PricePoint{Price: eth}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEndToEndRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	// First SOL bet of 100: house matches 50 on the ETH side.
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)

	r, err := h.engine.Round(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{100, 50}, r.Pools)
	assert.Equal(t, domain.SideETH, r.HouseSide)
	assert.Equal(t, uint64(50), r.HouseAmount)
	assert.Equal(t, uint64(950), h.balance(t, house))

	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 50)
	require.NoError(t, err)

	// Pool conservation: vault holds everything staked.
	assert.Equal(t, uint64(200), h.balance(t, round.VaultRef))

	h.advance(61)
	h.setPrices(100, 200)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))

	h.advance(61)
	h.setPrices(105, 204) // SOL +5%, ETH +2%
	winner, err := h.engine.ResolveRound(ctx, admin, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SideSOL, winner)

	// Winners are owed the whole 200 pool, so nothing sweeps to the house.
	assert.Equal(t, uint64(950), h.balance(t, house))

	payout, err := h.engine.ClaimWin(ctx, "alice", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), payout)
	assert.Equal(t, uint64(1100), h.balance(t, "alice"))

	payout, err = h.engine.ClaimWin(ctx, "bob", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), payout)
	assert.Equal(t, uint64(950), h.balance(t, "bob"))

	assert.Equal(t, uint64(0), h.balance(t, round.VaultRef))
}

func TestPlaceBet_FeeRoutedToHouse(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.BettingFeeBps = 100 // 1%
	params.MaxHouseMatch = 0
	h := newHarness(t, params)
	h.credit(t, "alice", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 200)
	require.NoError(t, err)

	assert.Equal(t, uint64(200), h.balance(t, round.VaultRef))
	assert.Equal(t, uint64(2), h.balance(t, house))
	assert.Equal(t, uint64(798), h.balance(t, "alice"))
}

func TestPlaceBet_AfterWindowFailsUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	h.advance(61)
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	assert.ErrorIs(t, err, domain.ErrBettingInactive)

	assert.Equal(t, uint64(1000), h.balance(t, "alice"))
	assert.Equal(t, uint64(1000), h.balance(t, house))
	assert.Equal(t, uint64(0), h.balance(t, round.VaultRef))
}

func TestPlaceBet_Validation(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.MaxUserBet = 150
	h := newHarness(t, params)
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, 7, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSize)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 200)
	assert.ErrorIs(t, err, domain.ErrMaxUserBetExceeded)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)

	// Cumulative stake is capped too.
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	assert.ErrorIs(t, err, domain.ErrMaxUserBetExceeded)

	// Side is fixed by the first bet.
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideETH, 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyBet)
}

func TestPlaceBet_HouseBankrupt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 10) // less than the 50 match
	h.credit(t, "alice", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	assert.ErrorIs(t, err, domain.ErrHouseBankrupt)
	assert.Equal(t, uint64(1000), h.balance(t, "alice"))
}

func TestOpenRound_Guards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())

	_, err := h.engine.OpenRound(ctx, "impostor")
	assert.ErrorIs(t, err, domain.ErrInvalidAdmin)

	_, err = h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	_, err = h.engine.OpenRound(ctx, admin)
	assert.ErrorIs(t, err, domain.ErrRoundInProgress)
}

func TestStartAnticipation_TimingAndTopUp(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.MinMultiplier = 1.5
	h := newHarness(t, params)
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	err = h.engine.StartAnticipation(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrBettingTooSoon)

	// alice 100 SOL (house matches 50 ETH), bob 20 more ETH.
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 20)
	require.NoError(t, err)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))

	// Pools were (100, 70), total 170; SOL bettors' multiplier 1.7 is fine
	// but re-check the fat side: 170/100 = 1.7 >= 1.5, no top-up needed.
	r, err := h.engine.Round(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAnticipating, r.Phase)
	assert.Equal(t, [2]uint64{100, 70}, r.Pools)
	assert.Equal(t, uint64(100), r.InitialPrice[domain.SideSOL])
	assert.Equal(t, uint64(200), r.InitialPrice[domain.SideETH])

	// A second call must not re-read prices.
	err = h.engine.StartAnticipation(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrBetAlreadySettled)
}

func TestStartAnticipation_TopsUpThinSide(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.MinMultiplier = 1.5
	params.MaxHouseMatch = 10
	h := newHarness(t, params)
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)

	// alice 100 SOL, house match only 10 ETH: pools (100, 10), total 110.
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))

	// Needs 1.5*100 = 150 total: top-up of 40 on the thin ETH side.
	r, err := h.engine.Round(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{100, 50}, r.Pools)
	assert.Equal(t, uint64(50), r.HouseAmount)
	assert.Equal(t, uint64(950), h.balance(t, house))
	assert.Equal(t, uint64(150), h.balance(t, round.VaultRef))
}

func TestResolveRound_GuardsAndHouseSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 150)
	require.NoError(t, err)

	// Resolving from the betting phase is premature.
	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrAnticipationTooSoon)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))

	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrAnticipationTooSoon)

	// A stale oracle blocks resolution without mutating the round.
	h.advance(61)
	h.oracle.err = domain.ErrStaleOracle
	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrStaleOracle)
	r, err := h.engine.Round(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, r.Settled)

	// Fresh prices: ETH wins. Pools (100, 200): bob is owed
	// 150*300/200 = 225; the house's 50 match and the 25 remainder sweep
	// back on claims accounting: vault 300, owed 225, house gets 75.
	h.oracle.err = nil
	h.setPrices(100, 210) // SOL 0%, ETH +5%
	winner, err := h.engine.ResolveRound(ctx, admin, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SideETH, winner)
	assert.Equal(t, uint64(1025), h.balance(t, house))
	assert.Equal(t, uint64(225), h.balance(t, round.VaultRef))

	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrBetAlreadySettled)
}

func TestClaimWin_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 100)
	require.NoError(t, err)

	_, err = h.engine.ClaimWin(ctx, "alice", round.ID)
	assert.ErrorIs(t, err, domain.ErrBetNotSettled)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))
	h.advance(61)
	h.setPrices(110, 200) // SOL +10%, ETH -? 200->200 0%
	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	require.NoError(t, err)

	payout, err := h.engine.ClaimWin(ctx, "alice", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), payout) // 100 * 250/100

	before := h.balance(t, "alice")
	payout, err = h.engine.ClaimWin(ctx, "alice", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), payout)
	assert.Equal(t, before, h.balance(t, "alice"))

	_, err = h.engine.ClaimWin(ctx, "nobody", round.ID)
	assert.ErrorIs(t, err, domain.ErrNoBetFound)
}

func TestClaimWin_DrawRefunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 70)
	require.NoError(t, err)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))
	h.advance(61)
	h.setPrices(110, 220) // both +10%
	winner, err := h.engine.ResolveRound(ctx, admin, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerDraw, winner)

	payout, err := h.engine.ClaimWin(ctx, "alice", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), payout)

	payout, err = h.engine.ClaimWin(ctx, "bob", round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), payout)
}

func TestCloseRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 1000)
	h.credit(t, "alice", 1000)
	h.credit(t, "bob", 1000)

	round, err := h.engine.OpenRound(ctx, admin)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "alice", round.ID, domain.SideSOL, 100)
	require.NoError(t, err)
	_, err = h.engine.PlaceBet(ctx, "bob", round.ID, domain.SideETH, 100)
	require.NoError(t, err)

	h.advance(61)
	require.NoError(t, h.engine.StartAnticipation(ctx, admin, round.ID))
	h.advance(61)
	h.setPrices(110, 204)
	_, err = h.engine.ResolveRound(ctx, admin, round.ID)
	require.NoError(t, err)

	// Still tracked in the window.
	err = h.engine.CloseRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrRoundNotCloseable)

	// Once evicted, the unclaimed winning bet blocks closure.
	require.NoError(t, h.engine.CleanRoundRecords(ctx, admin))
	err = h.engine.CloseRound(ctx, admin, round.ID)
	assert.ErrorIs(t, err, domain.ErrBetsNotClaimed)

	_, err = h.engine.ClaimWin(ctx, "alice", round.ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.CloseRound(ctx, admin, round.ID))

	_, err = h.engine.Round(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangeConfigAndWithdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultParams())
	h.credit(t, house, 100)

	params := defaultParams()
	params.BettingFeeBps = 250

	err := h.engine.ChangeConfig(ctx, admin, params)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, h.engine.ChangeConfig(ctx, owner, params))
	state, err := h.engine.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), state.Params.BettingFeeBps)

	params.BettingFeeBps = 20_000
	err = h.engine.ChangeConfig(ctx, owner, params)
	assert.ErrorIs(t, err, domain.ErrInvalidSize)

	err = h.engine.WithdrawHouseFunds(ctx, owner, "treasurer", 500)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	require.NoError(t, h.engine.WithdrawHouseFunds(ctx, owner, "treasurer", 60))
	assert.Equal(t, uint64(40), h.balance(t, house))
	assert.Equal(t, uint64(60), h.balance(t, "treasurer"))
}

func TestPausedMarketBlocksOpen(t *testing.T) {
	ctx := context.Background()
	params := defaultParams()
	params.Paused = true
	h := newHarness(t, params)

	_, err := h.engine.OpenRound(ctx, admin)
	assert.ErrorIs(t, err, domain.ErrMarketPaused)
}

package domain

// RoundStatus is the lifecycle status denormalized into the global record
// ring.
type RoundStatus string

const (
	StatusBetting      RoundStatus = "betting"
	StatusAnticipating RoundStatus = "anticipating"
	StatusResolved     RoundStatus = "resolved"
)

// RoundRecord is one slot in the global rolling window of recent rounds.
type RoundRecord struct {
	RoundID string
	Status  RoundStatus
}

// RingSize is the number of recent rounds tracked globally.
const RingSize = 5

// RecordRing is a fixed window over the last RingSize rounds. Inserting
// rotates the window; the evicted round becomes the one eligible for
// closing (ToClose).
type RecordRing struct {
	Records [RingSize]RoundRecord
	ToClose string
}

// Add inserts a new round at the front of the ring with StatusBetting,
// evicting the oldest record into ToClose.
func (r *RecordRing) Add(roundID string) {
	r.ToClose = r.Records[RingSize-1].RoundID
	copy(r.Records[1:], r.Records[:RingSize-1])
	r.Records[0] = RoundRecord{RoundID: roundID, Status: StatusBetting}
}

// Modify rewrites the status of the record holding roundID. It is a no-op
// when the round is not in the window.
func (r *RecordRing) Modify(roundID string, status RoundStatus) {
	for i := range r.Records {
		if r.Records[i].RoundID == roundID {
			r.Records[i].Status = status
			return
		}
	}
}

// Contains reports whether roundID occupies a slot in the window.
func (r *RecordRing) Contains(roundID string) bool {
	for _, rec := range r.Records {
		if rec.RoundID == roundID {
			return true
		}
	}
	return false
}

// InProgress reports whether any tracked round has not resolved yet. A new
// round may only open when this is false.
func (r *RecordRing) InProgress() bool {
	for _, rec := range r.Records {
		if rec.RoundID != "" && rec.Status != StatusResolved {
			return true
		}
	}
	return false
}

// Reset clears every slot and the pending-closure pointer.
func (r *RecordRing) Reset() {
	*r = RecordRing{}
}

// Current returns the most recently opened round ID, or "" when the window
// is empty.
func (r *RecordRing) Current() string {
	return r.Records[0].RoundID
}

// MarketParams is the admin-tunable configuration of the market.
type MarketParams struct {
	// BettingFeeBps is charged on every placed bet, in hundredths of a
	// percent of the stake.
	BettingFeeBps uint64

	// MaxHouseMatch caps the house's auto-match of a first bet.
	// MaxHouseBetSize caps the house's total exposure per round including
	// the min-multiplier top-up.
	MaxHouseMatch   uint64
	MaxHouseBetSize uint64

	// MinMultiplier is the minimum implied payout multiplier the house
	// tops the pool up to before anticipation.
	MinMultiplier float64

	// Phase durations in seconds.
	BettingPeriod      uint64
	AnticipationPeriod uint64

	// MaxUserBet caps one user's cumulative stake in a round.
	MaxUserBet uint64

	// CrankAdmin is the identity allowed to drive phase transitions.
	CrankAdmin string

	// Paused stops new rounds from opening.
	Paused bool
}

// MarketState is the process-wide singleton: tunable parameters, the house
// custodial account, the super-admin owner, and the rolling round window.
type MarketState struct {
	Params MarketParams

	// Owner may change Params (including CrankAdmin) and withdraw house
	// funds.
	Owner string

	// HouseAccount names the custodial balance that receives fees and
	// funds house matches.
	HouseAccount string

	Ring RecordRing
}

// ConfirmCrankAdmin checks the signer against the configured crank admin.
func (m *MarketState) ConfirmCrankAdmin(signer string) error {
	if signer == "" || signer != m.Params.CrankAdmin {
		return ErrInvalidAdmin
	}
	return nil
}

// ConfirmOwner checks the signer against the market owner.
func (m *MarketState) ConfirmOwner(signer string) error {
	if signer == "" || signer != m.Owner {
		return ErrUnauthorized
	}
	return nil
}

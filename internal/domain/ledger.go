package domain

// LedgerCapacity bounds the number of distinct bettors per round.
const LedgerCapacity = 20

// UserBet is one bettor's entry in a round ledger. An owner has at most one
// entry; the side is fixed by the first bet.
type UserBet struct {
	Owner   string
	Amount  uint64
	Side    uint8
	Claimed bool
}

// Ledger is the bounded per-round table of user bets. The zero value is an
// empty ledger.
type Ledger struct {
	Entries []UserBet
}

// Add records a stake for owner on side, accumulating into an existing entry
// when present. It returns the owner's cumulative stake after the add.
//
// It returns ErrAlreadyBet when the owner already bet the other side and
// ErrNoSpaceLeft when the ledger is full.
func (l *Ledger) Add(owner string, amount uint64, side uint8) (uint64, error) {
	for i := range l.Entries {
		if l.Entries[i].Owner == owner {
			if l.Entries[i].Side != side {
				return 0, ErrAlreadyBet
			}
			l.Entries[i].Amount += amount
			return l.Entries[i].Amount, nil
		}
	}
	if len(l.Entries) >= LedgerCapacity {
		return 0, ErrNoSpaceLeft
	}
	l.Entries = append(l.Entries, UserBet{
		Owner:  owner,
		Amount: amount,
		Side:   side,
	})
	return amount, nil
}

// Get returns the owner's entry, if any.
func (l *Ledger) Get(owner string) (UserBet, bool) {
	for _, e := range l.Entries {
		if e.Owner == owner {
			return e, true
		}
	}
	return UserBet{}, false
}

// MarkClaimed flags the owner's entry as claimed. It returns ErrNoBetFound
// when the owner has no entry.
func (l *Ledger) MarkClaimed(owner string) error {
	for i := range l.Entries {
		if l.Entries[i].Owner == owner {
			l.Entries[i].Claimed = true
			return nil
		}
	}
	return ErrNoBetFound
}

// AllClaimed reports whether every entry on the winning side has been
// claimed. Losing-side entries are exempt; on a draw every entry counts as
// winning.
func (l *Ledger) AllClaimed(winner uint8) bool {
	for _, e := range l.Entries {
		if e.Claimed {
			continue
		}
		if winner == WinnerDraw || e.Side == winner {
			return false
		}
	}
	return true
}

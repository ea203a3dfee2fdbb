package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
)

// BlobWriter is the upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// RoundArchiver implements domain.Archiver: a closed round and its full
// ledger are serialized to JSON and uploaded before the row is deleted, so
// settled history survives the hot store's bounded retention.
type RoundArchiver struct {
	writer BlobWriter
	now    func() time.Time
}

// NewRoundArchiver creates a RoundArchiver on the given writer.
func NewRoundArchiver(writer BlobWriter) *RoundArchiver {
	return &RoundArchiver{writer: writer, now: time.Now}
}

// archivedBet mirrors a ledger entry in the archive document.
type archivedBet struct {
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	Side    uint8  `json:"side"`
	Claimed bool   `json:"claimed"`
}

// archivedRound is the JSON document written per closed round.
type archivedRound struct {
	ID                string        `json:"id"`
	Phase             string        `json:"phase"`
	InitialPrice      [2]uint64     `json:"initial_price"`
	FinalPrice        [2]uint64     `json:"final_price"`
	Pools             [2]uint64     `json:"pools"`
	HouseSide         uint8         `json:"house_side"`
	HouseAmount       uint64        `json:"house_amount"`
	BettingStart      uint64        `json:"betting_start"`
	AnticipationStart uint64        `json:"anticipation_start"`
	AnticipationEnd   uint64        `json:"anticipation_end"`
	Settled           bool          `json:"settled"`
	Bets              []archivedBet `json:"bets"`
	CreatedAt         time.Time     `json:"created_at"`
	ArchivedAt        time.Time     `json:"archived_at"`
}

// ArchiveRound uploads the round document to
// archive/rounds/YYYY-MM/{id}.json.
func (a *RoundArchiver) ArchiveRound(ctx context.Context, r domain.Round) error {
	doc := archivedRound{
		ID:                r.ID,
		Phase:             string(r.Phase),
		InitialPrice:      r.InitialPrice,
		FinalPrice:        r.FinalPrice,
		Pools:             r.Pools,
		HouseSide:         r.HouseSide,
		HouseAmount:       r.HouseAmount,
		BettingStart:      r.BettingStart,
		AnticipationStart: r.AnticipationStart,
		AnticipationEnd:   r.AnticipationEnd,
		Settled:           r.Settled,
		Bets:              make([]archivedBet, 0, len(r.Ledger.Entries)),
		CreatedAt:         r.CreatedAt,
		ArchivedAt:        a.now().UTC(),
	}
	for _, b := range r.Ledger.Entries {
		doc.Bets = append(doc.Bets, archivedBet{
			Owner:   b.Owner,
			Amount:  b.Amount,
			Side:    b.Side,
			Claimed: b.Claimed,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3blob: marshal round %s: %w", r.ID, err)
	}

	path := archivePath(r)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive round %s: %w", r.ID, err)
	}
	return nil
}

// archivePath partitions archives by the month the round was opened.
func archivePath(r domain.Round) string {
	return fmt.Sprintf("archive/rounds/%s/%s.json", r.CreatedAt.Format("2006-01"), r.ID)
}

var _ domain.Archiver = (*RoundArchiver)(nil)

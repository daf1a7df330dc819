package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decimals go out as JSON numbers; the chart keys a numeric price axis.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// PriceLevel is one resting level on one side of the book.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// NewPriceLevel builds a level from float inputs (feed adapters and tests).
func NewPriceLevel(price, qty float64) PriceLevel {
	return PriceLevel{Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

// BookSnapshot is a full replacement view of the book. Bids are expected best
// (highest) first and asks best (lowest) first, but consumers that depend on
// order must not trust it.
type BookSnapshot struct {
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ReceivedAt time.Time    `json:"-"`
}

// EmptySnapshot is the initial book state.
func EmptySnapshot() BookSnapshot {
	return BookSnapshot{Bids: []PriceLevel{}, Asks: []PriceLevel{}}
}

// DepthPoint is one point of the merged cumulative-depth curve. Exactly one of
// BidVolume / AskVolume is valid; the other marshals as null.
type DepthPoint struct {
	Price     decimal.Decimal     `json:"price"`
	BidVolume decimal.NullDecimal `json:"bidVolume"`
	AskVolume decimal.NullDecimal `json:"askVolume"`
}

// LadderRow is a display-formatted level (price 2dp, qty 4dp).
type LadderRow struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// Ladder is the top-of-book table. Asks are in display order: worst first,
// best ask last so it sits next to the best bid.
type Ladder struct {
	Asks []LadderRow `json:"asks"`
	Bids []LadderRow `json:"bids"`
	Mid  string      `json:"mid"`
}

// View is everything a renderer needs for one cycle.
type View struct {
	Seq       uint64             `json:"seq"`
	Status    ConnectivityStatus `json:"status"`
	Depth     []DepthPoint       `json:"depth"`
	Ladder    Ladder             `json:"ladder"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

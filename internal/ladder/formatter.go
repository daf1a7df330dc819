// Package ladder formats the top of book for display.
package ladder

import (
	"github.com/shopspring/decimal"

	"depthview/internal/model"
)

const (
	DefaultDepth   = 10
	pricePlaces    = 2
	quantityPlaces = 4
)

var two = decimal.NewFromInt(2)

// Format takes the first depth levels of each side as delivered by the feed
// (best first) and renders them at fixed precision. Ask rows come back in
// display order, best ask last.
func Format(bids, asks []model.PriceLevel, depth int) model.Ladder {
	if depth <= 0 {
		depth = DefaultDepth
	}

	topBids := head(bids, depth)
	topAsks := head(asks, depth)

	l := model.Ladder{
		Bids: make([]model.LadderRow, len(topBids)),
		Asks: make([]model.LadderRow, len(topAsks)),
		Mid:  Mid(bids, asks).StringFixed(pricePlaces),
	}
	for i, lvl := range topBids {
		l.Bids[i] = row(lvl)
	}
	for i, lvl := range topAsks {
		l.Asks[len(topAsks)-1-i] = row(lvl)
	}
	return l
}

// Mid is (bestBid + bestAsk) / 2 rounded to 2 places. A missing side counts as
// zero, which halves the remaining side's price.
func Mid(bids, asks []model.PriceLevel) decimal.Decimal {
	bestBid, bestAsk := decimal.Zero, decimal.Zero
	if len(bids) > 0 {
		bestBid = bids[0].Price
	}
	if len(asks) > 0 {
		bestAsk = asks[0].Price
	}
	return bestBid.Add(bestAsk).Div(two).Round(pricePlaces)
}

func head(levels []model.PriceLevel, n int) []model.PriceLevel {
	if len(levels) < n {
		return levels
	}
	return levels[:n]
}

func row(lvl model.PriceLevel) model.LadderRow {
	return model.LadderRow{
		Price: lvl.Price.StringFixed(pricePlaces),
		Qty:   lvl.Qty.StringFixed(quantityPlaces),
	}
}

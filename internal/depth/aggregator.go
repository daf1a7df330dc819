// Package depth turns bid/ask level arrays into a cumulative-depth curve.
package depth

import (
	"sort"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"depthview/internal/model"
)

// Aggregator builds the merged depth curve. The zero value keeps duplicate
// price levels as separate points.
type Aggregator struct {
	// MergeDuplicates sums levels that share a price on the same side before
	// accumulating.
	MergeDuplicates bool
}

// Aggregate returns bid points ordered worst to best (ascending price)
// followed by ask points ordered best to worst (ascending price). The inputs
// are not modified.
func Aggregate(bids, asks []model.PriceLevel) []model.DepthPoint {
	var a Aggregator
	return a.Aggregate(bids, asks)
}

func (a *Aggregator) Aggregate(bids, asks []model.PriceLevel) []model.DepthPoint {
	var sortedBids, sortedAsks []model.PriceLevel
	if a.MergeDuplicates {
		sortedBids = mergeByPrice(bids, true)
		sortedAsks = mergeByPrice(asks, false)
	} else {
		sortedBids = sortedCopy(bids, true)
		sortedAsks = sortedCopy(asks, false)
	}

	out := make([]model.DepthPoint, 0, len(sortedBids)+len(sortedAsks))

	sum := decimal.Zero
	for _, lvl := range sortedBids {
		sum = sum.Add(lvl.Qty)
		out = append(out, model.DepthPoint{
			Price:     lvl.Price,
			BidVolume: decimal.NewNullDecimal(sum),
		})
	}
	// best-first walk, chart wants ascending price
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	sum = decimal.Zero
	for _, lvl := range sortedAsks {
		sum = sum.Add(lvl.Qty)
		out = append(out, model.DepthPoint{
			Price:     lvl.Price,
			AskVolume: decimal.NewNullDecimal(sum),
		})
	}
	return out
}

// sortedCopy returns levels sorted best first: descending for bids, ascending
// for asks. Equal prices keep their input order.
func sortedCopy(levels []model.PriceLevel, desc bool) []model.PriceLevel {
	cp := make([]model.PriceLevel, len(levels))
	copy(cp, levels)
	sort.SliceStable(cp, func(i, j int) bool {
		if desc {
			return cp[i].Price.GreaterThan(cp[j].Price)
		}
		return cp[i].Price.LessThan(cp[j].Price)
	})
	return cp
}

type priceItem struct {
	level model.PriceLevel
}

func priceLess(a, b priceItem) bool {
	return a.level.Price.LessThan(b.level.Price)
}

// mergeByPrice collapses equal prices into one level and returns them best first.
func mergeByPrice(levels []model.PriceLevel, desc bool) []model.PriceLevel {
	tr := btree.NewG[priceItem](8, priceLess)
	for _, lvl := range levels {
		key := priceItem{level: model.PriceLevel{Price: lvl.Price}}
		if prev, ok := tr.Get(key); ok {
			prev.level.Qty = prev.level.Qty.Add(lvl.Qty)
			tr.ReplaceOrInsert(prev)
			continue
		}
		tr.ReplaceOrInsert(priceItem{level: lvl})
	}

	out := make([]model.PriceLevel, 0, tr.Len())
	collect := func(it priceItem) bool {
		out = append(out, it.level)
		return true
	}
	if desc {
		tr.Descend(collect)
	} else {
		tr.Ascend(collect)
	}
	return out
}

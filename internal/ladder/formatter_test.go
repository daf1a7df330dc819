package ladder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/model"
)

func TestFormat_TopTenOnly(t *testing.T) {
	bids := make([]model.PriceLevel, 15)
	for i := range bids {
		bids[i] = model.NewPriceLevel(100-float64(i), 1)
	}

	l := Format(bids, nil, DefaultDepth)

	require.Len(t, l.Bids, 10)
	assert.Equal(t, "100.00", l.Bids[0].Price)
	assert.Equal(t, "91.00", l.Bids[9].Price)
}

func TestFormat_Precision(t *testing.T) {
	bids := []model.PriceLevel{model.NewPriceLevel(99.456, 1.23456)}
	asks := []model.PriceLevel{model.NewPriceLevel(100.1, 0.5)}

	l := Format(bids, asks, DefaultDepth)

	assert.Equal(t, model.LadderRow{Price: "99.46", Qty: "1.2346"}, l.Bids[0])
	assert.Equal(t, model.LadderRow{Price: "100.10", Qty: "0.5000"}, l.Asks[0])
}

func TestFormat_AsksReversedForDisplay(t *testing.T) {
	asks := []model.PriceLevel{
		model.NewPriceLevel(101, 1),
		model.NewPriceLevel(102, 2),
		model.NewPriceLevel(103, 3),
	}

	l := Format(nil, asks, DefaultDepth)

	require.Len(t, l.Asks, 3)
	assert.Equal(t, "103.00", l.Asks[0].Price)
	assert.Equal(t, "101.00", l.Asks[2].Price, "best ask sits next to the spread")
}

func TestFormat_FeedOrderNotResorted(t *testing.T) {
	bids := []model.PriceLevel{model.NewPriceLevel(99, 1), model.NewPriceLevel(100, 1)}

	l := Format(bids, nil, DefaultDepth)

	assert.Equal(t, "99.00", l.Bids[0].Price)
}

func TestFormat_NonPositiveDepthUsesDefault(t *testing.T) {
	asks := make([]model.PriceLevel, 12)
	for i := range asks {
		asks[i] = model.NewPriceLevel(100+float64(i), 1)
	}

	l := Format(nil, asks, 0)

	assert.Len(t, l.Asks, DefaultDepth)
}

func TestMid(t *testing.T) {
	tests := []struct {
		name string
		bids []model.PriceLevel
		asks []model.PriceLevel
		want string
	}{
		{
			name: "both sides",
			bids: []model.PriceLevel{model.NewPriceLevel(100, 1)},
			asks: []model.PriceLevel{model.NewPriceLevel(101, 1)},
			want: "100.50",
		},
		{
			name: "empty bids falls back to zero",
			asks: []model.PriceLevel{model.NewPriceLevel(101, 1)},
			want: "50.50",
		},
		{
			name: "empty asks falls back to zero",
			bids: []model.PriceLevel{model.NewPriceLevel(99.99, 1)},
			want: "50.00",
		},
		{
			name: "empty book",
			want: "0.00",
		},
		{
			name: "rounds to two places",
			bids: []model.PriceLevel{model.NewPriceLevel(100.01, 1)},
			asks: []model.PriceLevel{model.NewPriceLevel(100.02, 1)},
			want: "100.02",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.bids, tt.asks, DefaultDepth).Mid)
		})
	}
}

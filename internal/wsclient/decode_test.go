package wsclient

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	snap, err := Decode([]byte(`{"bids":[{"price":100.5,"qty":1.25},{"price":99,"qty":0}],"asks":[]}`))
	require.NoError(t, err)

	require.Len(t, snap.Bids, 2)
	assert.Equal(t, "100.5", snap.Bids[0].Price.String())
	assert.Equal(t, "1.25", snap.Bids[0].Qty.String())
	assert.Equal(t, "99", snap.Bids[1].Price.String())
	assert.True(t, snap.Bids[1].Qty.IsZero())
	assert.NotNil(t, snap.Asks)
	assert.Empty(t, snap.Asks)
}

func TestDecode_KeepsFeedOrder(t *testing.T) {
	snap, err := Decode([]byte(`{"bids":[{"price":98,"qty":1},{"price":100,"qty":1}],"asks":[{"price":103,"qty":1},{"price":101,"qty":1}]}`))
	require.NoError(t, err)

	assert.Equal(t, "98", snap.Bids[0].Price.String())
	assert.Equal(t, "103", snap.Asks[0].Price.String())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"not json", `{"bids":`, ReasonInvalidJSON},
		{"wrong shape", `{"bids":"x","asks":[]}`, ReasonInvalidJSON},
		{"no sides", `{"type":"heartbeat"}`, ReasonMissingSide},
		{"one side", `{"bids":[]}`, ReasonMissingSide},
		{"null side", `{"bids":null,"asks":[]}`, ReasonMissingSide},
		{"missing qty", `{"bids":[],"asks":[{"price":101}]}`, ReasonInvalidLevel},
		{"null price", `{"bids":[{"price":null,"qty":1}],"asks":[]}`, ReasonInvalidLevel},
		{"string price", `{"bids":[{"price":"100","qty":1}],"asks":[]}`, ReasonInvalidLevel},
		{"string qty", `{"bids":[],"asks":[{"price":101,"qty":"2"}]}`, ReasonInvalidLevel},
		{"negative qty", `{"bids":[{"price":100,"qty":-5}],"asks":[]}`, ReasonInvalidLevel},
		{"bool qty", `{"bids":[{"price":100,"qty":true}],"asks":[]}`, ReasonInvalidLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
			assert.Equal(t, tt.reason, DropReason(err))
		})
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	b.Jitter = 0

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 30*time.Second)
	for i := 0; i < 200; i++ {
		if i%12 == 0 {
			b.Reset()
		}
		d := b.Next()
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestBackoff_JitterExtremes(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second)
	b.rnd = func() float64 { return 0 }
	assert.Equal(t, 800*time.Millisecond, b.Next())

	b.Reset()
	b.rnd = func() float64 { return 0.999999 }
	d := b.Next()
	assert.Greater(t, d, 1190*time.Millisecond)
	assert.LessOrEqual(t, d, 1200*time.Millisecond)
}

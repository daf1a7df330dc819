package wsclient

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"depthview/internal/model"
)

// Drop reasons, used as metric labels.
const (
	ReasonInvalidJSON  = "invalid_json"
	ReasonMissingSide  = "missing_side"
	ReasonInvalidLevel = "invalid_level"
)

// ErrMalformed marks a payload that must be dropped without touching the store.
var ErrMalformed = errors.New("malformed book message")

// MalformedError carries the drop reason.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return ErrMalformed.Error() + ": " + e.Reason + ": " + e.Err.Error()
	}
	return ErrMalformed.Error() + ": " + e.Reason
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func (e *MalformedError) Unwrap() error { return e.Err }

type wirePayload struct {
	Bids *[]wireLevel `json:"bids"`
	Asks *[]wireLevel `json:"asks"`
}

type wireLevel struct {
	Price json.RawMessage `json:"price"`
	Qty   json.RawMessage `json:"qty"`
}

// Decode parses one feed frame `{"bids":[{"price":n,"qty":n}],"asks":[...]}`
// into a fresh snapshot. Both sides must be present (possibly empty) and
// every level must carry a JSON number price and a non-negative JSON number
// qty. String-encoded numbers are rejected.
func Decode(raw []byte) (model.BookSnapshot, error) {
	var p wirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.BookSnapshot{}, &MalformedError{Reason: ReasonInvalidJSON, Err: err}
	}
	if p.Bids == nil || p.Asks == nil {
		return model.BookSnapshot{}, &MalformedError{Reason: ReasonMissingSide}
	}

	bids, err := levels(*p.Bids)
	if err != nil {
		return model.BookSnapshot{}, err
	}
	asks, err := levels(*p.Asks)
	if err != nil {
		return model.BookSnapshot{}, err
	}
	return model.BookSnapshot{Bids: bids, Asks: asks}, nil
}

func levels(in []wireLevel) ([]model.PriceLevel, error) {
	out := make([]model.PriceLevel, len(in))
	for i, l := range in {
		price, err := number(l.Price)
		if err != nil {
			return nil, &MalformedError{Reason: ReasonInvalidLevel, Err: errors.Wrapf(err, "level %d price", i)}
		}
		qty, err := number(l.Qty)
		if err != nil {
			return nil, &MalformedError{Reason: ReasonInvalidLevel, Err: errors.Wrapf(err, "level %d qty", i)}
		}
		if qty.IsNegative() {
			return nil, &MalformedError{Reason: ReasonInvalidLevel, Err: errors.Errorf("level %d negative qty %s", i, qty)}
		}
		out[i] = model.PriceLevel{Price: price, Qty: qty}
	}
	return out, nil
}

// number accepts only a bare JSON number literal.
func number(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Decimal{}, errors.New("missing")
	}
	if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return decimal.Decimal{}, errors.Errorf("not a number: %s", raw)
	}
	return decimal.NewFromString(string(raw))
}

// DropReason extracts the metric label from a Decode error.
func DropReason(err error) string {
	var me *MalformedError
	if errors.As(err, &me) {
		return me.Reason
	}
	return ReasonInvalidJSON
}

package model

import (
	"errors"
	"fmt"
	"time"
)

type Price float64
type Quantity int64
type OrderID uint64
type TradeID uint64

type Side uint8

const (
	BID Side = iota // buy
	ASK             // sell
)

// ErrValidation marks a request rejected before any state mutation.
// Callers map it to a client error with errors.Is.
var ErrValidation = errors.New("validation failed")

// ParseSide accepts the wire spelling of a side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return BID, nil
	case "SELL":
		return ASK, nil
	}
	return 0, fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrValidation, s)
}

func (s Side) String() string {
	if s == ASK {
		return "SELL"
	}
	return "BUY"
}

// Order is a resting limit order. Identity fields never change after
// creation; only the remaining quantity is mutated by fills.
type Order struct {
	id        OrderID
	trader    string
	side      Side
	price     Price
	remaining Quantity
	submitted time.Time
}

func NewOrder(id OrderID, trader string, side Side, price Price, quantity Quantity, submitted time.Time) Order {
	return Order{
		id:        id,
		trader:    trader,
		side:      side,
		price:     price,
		remaining: quantity,
		submitted: submitted,
	}
}

func (o *Order) Fill(quantity Quantity) error {
	if quantity > o.remaining {
		return fmt.Errorf("order %d cannot be filled for more than its remaining quantity", o.id)
	}
	o.remaining -= quantity
	return nil
}

func (o *Order) IsFilled() bool {
	return o.remaining == 0
}

func (o *Order) ID() OrderID {
	return o.id
}

func (o *Order) Trader() string {
	return o.trader
}

func (o *Order) Side() Side {
	return o.side
}

func (o *Order) Price() Price {
	return o.price
}

func (o *Order) Remaining() Quantity {
	return o.remaining
}

func (o *Order) SubmittedAt() time.Time {
	return o.submitted
}

package model

import "time"

// Trade is immutable once created.
type Trade struct {
	ID          TradeID
	Price       Price
	Quantity    Quantity
	BuyOrderID  OrderID
	SellOrderID OrderID
	Buyer       string
	Seller      string
	ExecutedAt  time.Time
}

package model

// OrderView is a display row for a resting order. Views are copies of
// book state taken under the book lock; mutating a view never touches
// the live book.
type OrderView struct {
	ID        OrderID  `json:"id"`
	Trader    string   `json:"trader"`
	Price     Price    `json:"price"`
	Quantity  Quantity `json:"quantity"`
	Timestamp int64    `json:"timestamp"` // unix ms
}

// TradeView is a display row for an executed trade.
type TradeView struct {
	ID          TradeID  `json:"id"`
	Price       Price    `json:"price"`
	Quantity    Quantity `json:"quantity"`
	BuyOrderID  OrderID  `json:"buyOrderId"`
	SellOrderID OrderID  `json:"sellOrderId"`
	Timestamp   int64    `json:"timestamp"` // unix ms
}

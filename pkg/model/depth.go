package model

type DepthLevel struct {
	Price      Price    `json:"price"`
	Volume     Quantity `json:"volume"`
	OrderCount int      `json:"orderCount"`
}

// MarketDepth aggregates the book per price level.
type MarketDepth struct {
	Bids      []DepthLevel `json:"bids"` // highest to lowest price
	Asks      []DepthLevel `json:"asks"` // lowest to highest price
	Timestamp int64        `json:"timestamp"`
}

// TopOfBook is the best level on each side.
type TopOfBook struct {
	BestBid *DepthLevel `json:"bestBid"`
	BestAsk *DepthLevel `json:"bestAsk"`
	Spread  Price       `json:"spread"`
}

package model

// Holdings is a trader's cash and asset position. Both balances may go
// negative: the classroom exercise deliberately applies no margin or
// short-sale check.
type Holdings struct {
	Cash   float64  `json:"cash"`
	Assets Quantity `json:"assets"`
}

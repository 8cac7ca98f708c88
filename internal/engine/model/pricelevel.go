package model

import (
	"github.com/econlab/classlob/backend/pkg/model"
	"github.com/google/btree"
)

// AskLevel sorts ascending so btree.Min is the best (lowest) ask.
type AskLevel struct {
	Price       model.Price
	Orders      []*model.Order // FIFO by submission time
	TotalVolume model.Quantity
}

func (l *AskLevel) Less(than btree.Item) bool {
	return l.Price < than.(*AskLevel).Price
}

func (l *AskLevel) RemoveOrderByID(orderID model.OrderID) *model.Order {
	for i, order := range l.Orders {
		if order.ID() == orderID {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalVolume -= order.Remaining()
			return order
		}
	}
	return nil
}

// BidLevel sorts descending so btree.Min is the best (highest) bid.
type BidLevel struct {
	Price       model.Price
	Orders      []*model.Order // FIFO by submission time
	TotalVolume model.Quantity
}

func (l *BidLevel) Less(than btree.Item) bool {
	return l.Price > than.(*BidLevel).Price
}

func (l *BidLevel) RemoveOrderByID(orderID model.OrderID) *model.Order {
	for i, order := range l.Orders {
		if order.ID() == orderID {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalVolume -= order.Remaining()
			return order
		}
	}
	return nil
}

package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	bookmodel "github.com/econlab/classlob/backend/internal/engine/model"
	"github.com/econlab/classlob/backend/pkg/model"
	"github.com/google/btree"
)

// DefaultTradeLimit is the trade-tape length returned when the caller
// does not ask for a specific one.
const DefaultTradeLimit = 30

// OrderBook is the matching engine for a single instrument. All mutating
// calls and all views run under one lock covering the resting orders,
// the trade log and the holdings ledger, so no caller ever observes a
// mid-match state.
type OrderBook interface {
	Submit(trader string, side model.Side, price model.Price, quantity model.Quantity) (model.Order, []model.Trade, error)
	Cancel(orderID model.OrderID, trader string, force bool) bool
	Reset()

	BidsView() []model.OrderView
	AsksView() []model.OrderView
	TradesView(limit int) []model.TradeView
	TradeSeries() []model.TradeView
	HoldingsSnapshot() map[string]model.Holdings
	TopOfBook() model.TopOfBook
	Depth(levels int) model.MarketDepth
	OrderCount() int
}

type orderBook struct {
	mu sync.Mutex

	bids, asks *btree.BTree                  // price-level trees
	orders     map[model.OrderID]*model.Order // lookup by ID
	trades     []model.Trade                  // chronological; views read backwards

	ledger   *ledger
	orderSeq sequence
	tradeSeq sequence

	logger *log.Logger
}

type OrderBookOpts struct {
	StartCash   float64
	StartAssets model.Quantity
	Logger      *log.Logger
}

func NewOrderBook(opts OrderBookOpts) OrderBook {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &orderBook{
		bids:   btree.New(32),
		asks:   btree.New(32),
		orders: make(map[model.OrderID]*model.Order),
		ledger: newLedger(opts.StartCash, opts.StartAssets),
		logger: logger,
	}
}

// Submit validates, rests the order, runs the matching pass to a fixed
// point and returns the order as it stands after any fills from this
// call, together with the trades it produced.
func (b *orderBook) Submit(trader string, side model.Side, price model.Price, quantity model.Quantity) (model.Order, []model.Trade, error) {
	if side != model.BID && side != model.ASK {
		return model.Order{}, nil, fmt.Errorf("%w: unknown side %d", model.ErrValidation, side)
	}
	if price < 0 {
		return model.Order{}, nil, fmt.Errorf("%w: price must be non-negative, got %v", model.ErrValidation, price)
	}
	if quantity < 1 {
		return model.Order{}, nil, fmt.Errorf("%w: quantity must be a positive integer, got %d", model.ErrValidation, quantity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order := model.NewOrder(model.OrderID(b.orderSeq.next()), trader, side, price, quantity, time.Now())
	b.ledger.ensureTrader(trader)
	b.orders[order.ID()] = &order
	b.addToSide(&order)

	trades := b.match()
	return order, trades, nil
}

func (b *orderBook) addToSide(o *model.Order) {
	switch o.Side() {
	case model.ASK:
		key := &bookmodel.AskLevel{Price: o.Price()}
		item := b.asks.Get(key)
		if item == nil {
			b.asks.ReplaceOrInsert(key)
			item = key
		}
		level := item.(*bookmodel.AskLevel)
		level.Orders = append(level.Orders, o)
		level.TotalVolume += o.Remaining()

	case model.BID:
		key := &bookmodel.BidLevel{Price: o.Price()}
		item := b.bids.Get(key)
		if item == nil {
			b.bids.ReplaceOrInsert(key)
			item = key
		}
		level := item.(*bookmodel.BidLevel)
		level.Orders = append(level.Orders, o)
		level.TotalVolume += o.Remaining()
	}
}

// match crosses the best bid against the best ask until no cross
// remains. Execution price is always the resting ask's price. Each
// trade settles through the ledger before the next crossing check, so
// the ledger and the trade log never diverge.
func (b *orderBook) match() []model.Trade {
	var trades []model.Trade
	for b.bids.Len() > 0 && b.asks.Len() > 0 {
		bidLevel := b.bids.Min().(*bookmodel.BidLevel)
		askLevel := b.asks.Min().(*bookmodel.AskLevel)
		if bidLevel.Price < askLevel.Price {
			break
		}

		// FIFO within a level: slice order is submission order.
		buy := bidLevel.Orders[0]
		sell := askLevel.Orders[0]

		qty := min(buy.Remaining(), sell.Remaining())
		price := askLevel.Price // trade at the ask

		tr := model.Trade{
			ID:          model.TradeID(b.tradeSeq.next()),
			Price:       price,
			Quantity:    qty,
			BuyOrderID:  buy.ID(),
			SellOrderID: sell.ID(),
			Buyer:       buy.Trader(),
			Seller:      sell.Trader(),
			ExecutedAt:  time.Now(),
		}
		b.trades = append(b.trades, tr)
		trades = append(trades, tr)

		b.ledger.settle(buy.Trader(), sell.Trader(), price, qty)

		if err := buy.Fill(qty); err != nil {
			panic(fmt.Sprintf("overfill on bid %d: %v", buy.ID(), err))
		}
		if err := sell.Fill(qty); err != nil {
			panic(fmt.Sprintf("overfill on ask %d: %v", sell.ID(), err))
		}
		bidLevel.TotalVolume -= qty
		askLevel.TotalVolume -= qty

		if buy.IsFilled() {
			delete(b.orders, buy.ID())
			bidLevel.Orders = bidLevel.Orders[1:]
		}
		if sell.IsFilled() {
			delete(b.orders, sell.ID())
			askLevel.Orders = askLevel.Orders[1:]
		}
		if len(bidLevel.Orders) == 0 {
			b.bids.Delete(bidLevel)
		}
		if len(askLevel.Orders) == 0 {
			b.asks.Delete(askLevel)
		}
	}
	return trades
}

// Cancel removes a resting order. It succeeds when force is set, when
// no trader is supplied, or when the supplied trader owns the order.
// A miss is a reportable outcome, never an error.
func (b *orderBook) Cancel(orderID model.OrderID, trader string, force bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[orderID]
	if !ok {
		return false
	}
	if !force && trader != "" && order.Trader() != trader {
		return false
	}

	if order.Side() == model.ASK {
		key := &bookmodel.AskLevel{Price: order.Price()}
		if item := b.asks.Get(key); item != nil {
			level := item.(*bookmodel.AskLevel)
			level.RemoveOrderByID(orderID)
			if len(level.Orders) == 0 {
				b.asks.Delete(level)
			}
		}
	} else {
		key := &bookmodel.BidLevel{Price: order.Price()}
		if item := b.bids.Get(key); item != nil {
			level := item.(*bookmodel.BidLevel)
			level.RemoveOrderByID(orderID)
			if len(level.Orders) == 0 {
				b.bids.Delete(level)
			}
		}
	}

	delete(b.orders, orderID)
	return true
}

// Reset clears the book, the trade log and all holdings in one critical
// section. Identifier sequences keep counting: ids are never reused.
func (b *orderBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = btree.New(32)
	b.asks = btree.New(32)
	b.orders = make(map[model.OrderID]*model.Order)
	b.trades = nil
	b.ledger.reset()
	b.logger.Println("order book reset")
}

func (b *orderBook) BidsView() []model.OrderView {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.OrderView, 0, len(b.orders))
	b.bids.Ascend(func(item btree.Item) bool {
		for _, o := range item.(*bookmodel.BidLevel).Orders {
			out = append(out, orderView(o))
		}
		return true
	})
	return out
}

func (b *orderBook) AsksView() []model.OrderView {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.OrderView, 0, len(b.orders))
	b.asks.Ascend(func(item btree.Item) bool {
		for _, o := range item.(*bookmodel.AskLevel).Orders {
			out = append(out, orderView(o))
		}
		return true
	})
	return out
}

// TradesView returns the most recent trades, newest first. A limit
// below 1 means DefaultTradeLimit.
func (b *orderBook) TradesView(limit int) []model.TradeView {
	if limit < 1 {
		limit = DefaultTradeLimit
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if limit > len(b.trades) {
		limit = len(b.trades)
	}
	out := make([]model.TradeView, 0, limit)
	for i := len(b.trades) - 1; i >= len(b.trades)-limit; i-- {
		out = append(out, tradeView(b.trades[i]))
	}
	return out
}

// TradeSeries returns every trade in execution order, for charting.
func (b *orderBook) TradeSeries() []model.TradeView {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.TradeView, 0, len(b.trades))
	for _, tr := range b.trades {
		out = append(out, tradeView(tr))
	}
	return out
}

func (b *orderBook) HoldingsSnapshot() map[string]model.Holdings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.snapshot()
}

func (b *orderBook) TopOfBook() model.TopOfBook {
	b.mu.Lock()
	defer b.mu.Unlock()

	tob := model.TopOfBook{}
	if b.bids.Len() > 0 {
		level := b.bids.Min().(*bookmodel.BidLevel)
		tob.BestBid = &model.DepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		}
	}
	if b.asks.Len() > 0 {
		level := b.asks.Min().(*bookmodel.AskLevel)
		tob.BestAsk = &model.DepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		}
	}
	if tob.BestBid != nil && tob.BestAsk != nil {
		tob.Spread = tob.BestAsk.Price - tob.BestBid.Price
	}
	return tob
}

func (b *orderBook) Depth(levels int) model.MarketDepth {
	b.mu.Lock()
	defer b.mu.Unlock()

	depth := model.MarketDepth{
		Bids:      make([]model.DepthLevel, 0, levels),
		Asks:      make([]model.DepthLevel, 0, levels),
		Timestamp: time.Now().UnixMilli(),
	}

	count := 0
	b.bids.Ascend(func(item btree.Item) bool {
		if count >= levels {
			return false
		}
		level := item.(*bookmodel.BidLevel)
		depth.Bids = append(depth.Bids, model.DepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		})
		count++
		return true
	})

	count = 0
	b.asks.Ascend(func(item btree.Item) bool {
		if count >= levels {
			return false
		}
		level := item.(*bookmodel.AskLevel)
		depth.Asks = append(depth.Asks, model.DepthLevel{
			Price:      level.Price,
			Volume:     level.TotalVolume,
			OrderCount: len(level.Orders),
		})
		count++
		return true
	})

	return depth
}

func (b *orderBook) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

func orderView(o *model.Order) model.OrderView {
	return model.OrderView{
		ID:        o.ID(),
		Trader:    o.Trader(),
		Price:     o.Price(),
		Quantity:  o.Remaining(),
		Timestamp: o.SubmittedAt().UnixMilli(),
	}
}

func tradeView(tr model.Trade) model.TradeView {
	return model.TradeView{
		ID:          tr.ID,
		Price:       tr.Price,
		Quantity:    tr.Quantity,
		BuyOrderID:  tr.BuyOrderID,
		SellOrderID: tr.SellOrderID,
		Timestamp:   tr.ExecutedAt.UnixMilli(),
	}
}

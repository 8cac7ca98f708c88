package market

import (
	"context"
	"log"
	"time"

	"github.com/econlab/classlob/backend/internal/engine"
	"github.com/econlab/classlob/backend/internal/mirror"
	journalRepository "github.com/econlab/classlob/backend/internal/repository/journal"
	"github.com/econlab/classlob/backend/pkg/model"
	"github.com/jmoiron/sqlx"
)

// TradeHandler receives every executed trade after the matching pass
// has released the book lock.
type TradeHandler func(model.Trade)

// BookHandler receives a depth snapshot after every mutation.
type BookHandler func(model.MarketDepth)

// MarketUseCase wraps the engine with the optional journal, the
// optional TigerBeetle mirror, and trade/book fan-out for the feed.
type MarketUseCase interface {
	SubmitOrder(ctx context.Context, trader string, side model.Side, price model.Price, quantity model.Quantity) (model.Order, []model.Trade, error)
	CancelOrder(ctx context.Context, orderID model.OrderID, trader string, force bool) bool
	ResetBook(ctx context.Context)

	Bids(ctx context.Context) []model.OrderView
	Asks(ctx context.Context) []model.OrderView
	Trades(ctx context.Context, limit int) []model.TradeView
	TradeSeries(ctx context.Context) []model.TradeView
	Holdings(ctx context.Context) map[string]model.Holdings
	TopOfBook(ctx context.Context) model.TopOfBook
	Depth(ctx context.Context, levels int) model.MarketDepth

	RegisterTradeHandler(handler TradeHandler)
	RegisterBookHandler(handler BookHandler)
}

type marketUseCaseImpl struct {
	book engine.OrderBook // hold interface by value, not pointer to interface

	journalRepo journalRepository.JournalRepository
	db          *sqlx.DB
	mirror      *mirror.Mirror

	tradeHandler TradeHandler
	bookHandler  BookHandler

	logger *log.Logger
}

type MarketUseCaseOpts struct {
	Book        engine.OrderBook
	JournalRepo journalRepository.JournalRepository // optional, with Db
	Db          *sqlx.DB                            // optional
	Mirror      *mirror.Mirror                      // optional
	Logger      *log.Logger
}

func NewMarketUseCase(opts MarketUseCaseOpts) MarketUseCase {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &marketUseCaseImpl{
		book:        opts.Book,
		journalRepo: opts.JournalRepo,
		db:          opts.Db,
		mirror:      opts.Mirror,
		logger:      logger,
	}
}

func (uc *marketUseCaseImpl) RegisterTradeHandler(handler TradeHandler) {
	uc.tradeHandler = handler
}

func (uc *marketUseCaseImpl) RegisterBookHandler(handler BookHandler) {
	uc.bookHandler = handler
}

func (uc *marketUseCaseImpl) SubmitOrder(ctx context.Context, trader string, side model.Side, price model.Price, quantity model.Quantity) (model.Order, []model.Trade, error) {
	order, trades, err := uc.book.Submit(trader, side, price, quantity)
	if err != nil {
		return model.Order{}, nil, err
	}

	uc.journalSubmit(ctx, order, quantity, trades)
	uc.mirrorTrades(trades)

	for _, tr := range trades {
		if uc.tradeHandler != nil {
			uc.tradeHandler(tr)
		}
	}
	uc.publishDepth(ctx)

	return order, trades, nil
}

func (uc *marketUseCaseImpl) CancelOrder(ctx context.Context, orderID model.OrderID, trader string, force bool) bool {
	ok := uc.book.Cancel(orderID, trader, force)
	if !ok {
		return false
	}

	if uc.db != nil {
		tx := uc.db.MustBeginTx(ctx, nil)
		defer tx.Rollback()
		if err := uc.journalRepo.MarkCancelled(ctx, tx, uint64(orderID), time.Now()); err != nil {
			uc.logger.Printf("journal cancel %d: %v", orderID, err)
		} else if err := tx.Commit(); err != nil {
			uc.logger.Printf("journal cancel commit: %v", err)
		}
	}

	uc.publishDepth(ctx)
	return true
}

func (uc *marketUseCaseImpl) ResetBook(ctx context.Context) {
	uc.book.Reset()

	if uc.db != nil {
		tx := uc.db.MustBeginTx(ctx, nil)
		defer tx.Rollback()
		if err := uc.journalRepo.RecordReset(ctx, tx, time.Now()); err != nil {
			uc.logger.Printf("journal reset: %v", err)
		} else if err := tx.Commit(); err != nil {
			uc.logger.Printf("journal reset commit: %v", err)
		}
	}

	uc.publishDepth(ctx)
}

func (uc *marketUseCaseImpl) Bids(ctx context.Context) []model.OrderView {
	return uc.book.BidsView()
}

func (uc *marketUseCaseImpl) Asks(ctx context.Context) []model.OrderView {
	return uc.book.AsksView()
}

func (uc *marketUseCaseImpl) Trades(ctx context.Context, limit int) []model.TradeView {
	return uc.book.TradesView(limit)
}

func (uc *marketUseCaseImpl) TradeSeries(ctx context.Context) []model.TradeView {
	return uc.book.TradeSeries()
}

func (uc *marketUseCaseImpl) Holdings(ctx context.Context) map[string]model.Holdings {
	return uc.book.HoldingsSnapshot()
}

func (uc *marketUseCaseImpl) TopOfBook(ctx context.Context) model.TopOfBook {
	return uc.book.TopOfBook()
}

func (uc *marketUseCaseImpl) Depth(ctx context.Context, levels int) model.MarketDepth {
	return uc.book.Depth(levels)
}

// journalSubmit appends the accepted order and its trades. Best effort:
// a journal failure is logged, never surfaced to the trader.
func (uc *marketUseCaseImpl) journalSubmit(ctx context.Context, order model.Order, submitted model.Quantity, trades []model.Trade) {
	if uc.db == nil {
		return
	}

	tx := uc.db.MustBeginTx(ctx, nil)
	defer tx.Rollback()

	err := uc.journalRepo.InsertOrder(ctx, tx, journalRepository.OrderEntry{
		ID:          uint64(order.ID()),
		Trader:      order.Trader(),
		Side:        order.Side().String(),
		Price:       float64(order.Price()),
		Quantity:    int64(submitted),
		SubmittedAt: order.SubmittedAt(),
	})
	if err != nil {
		uc.logger.Printf("journal order %d: %v", order.ID(), err)
		return
	}

	for _, tr := range trades {
		err := uc.journalRepo.InsertTrade(ctx, tx, journalRepository.TradeEntry{
			ID:          uint64(tr.ID),
			Price:       float64(tr.Price),
			Quantity:    int64(tr.Quantity),
			BuyOrderID:  uint64(tr.BuyOrderID),
			SellOrderID: uint64(tr.SellOrderID),
			Buyer:       tr.Buyer,
			Seller:      tr.Seller,
			ExecutedAt:  tr.ExecutedAt,
		})
		if err != nil {
			uc.logger.Printf("journal trade %d: %v", tr.ID, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		uc.logger.Printf("journal commit: %v", err)
	}
}

func (uc *marketUseCaseImpl) mirrorTrades(trades []model.Trade) {
	if uc.mirror == nil {
		return
	}
	for _, tr := range trades {
		if err := uc.mirror.RecordTrade(tr); err != nil {
			uc.logger.Printf("mirror trade %d: %v", tr.ID, err)
		}
	}
}

func (uc *marketUseCaseImpl) publishDepth(ctx context.Context) {
	if uc.bookHandler != nil {
		uc.bookHandler(uc.book.Depth(10))
	}
}

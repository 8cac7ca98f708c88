package journal

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// OrderEntry mirrors the session_orders table. The journal is append
// only: the engine never reads it back, it exists for post-class
// analysis by the instructor.
type OrderEntry struct {
	ID          uint64    `db:"id"`
	Trader      string    `db:"trader"`
	Side        string    `db:"side"` // BUY or SELL
	Price       float64   `db:"price"`
	Quantity    int64     `db:"quantity"`
	SubmittedAt time.Time `db:"submitted_at"`
}

// TradeEntry mirrors the session_trades table.
type TradeEntry struct {
	ID          uint64    `db:"id"`
	Price       float64   `db:"price"`
	Quantity    int64     `db:"quantity"`
	BuyOrderID  uint64    `db:"buy_order_id"`
	SellOrderID uint64    `db:"sell_order_id"`
	Buyer       string    `db:"buyer"`
	Seller      string    `db:"seller"`
	ExecutedAt  time.Time `db:"executed_at"`
}

type JournalRepository interface {
	InsertOrder(ctx context.Context, tx *sqlx.Tx, entry OrderEntry) error
	InsertTrade(ctx context.Context, tx *sqlx.Tx, entry TradeEntry) error
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, orderID uint64, at time.Time) error
	RecordReset(ctx context.Context, tx *sqlx.Tx, at time.Time) error
}

type journalRepositoryImpl struct{}

func NewJournalRepository(db *sqlx.DB) JournalRepository {
	return &journalRepositoryImpl{}
}

func (r *journalRepositoryImpl) InsertOrder(ctx context.Context, tx *sqlx.Tx, entry OrderEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_orders (id, trader, side, price, quantity, submitted_at)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.Trader, entry.Side, entry.Price, entry.Quantity, entry.SubmittedAt)
	return err
}

func (r *journalRepositoryImpl) InsertTrade(ctx context.Context, tx *sqlx.Tx, entry TradeEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_trades (id, price, quantity, buy_order_id, sell_order_id, buyer, seller, executed_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.Price, entry.Quantity, entry.BuyOrderID, entry.SellOrderID,
		entry.Buyer, entry.Seller, entry.ExecutedAt)
	return err
}

func (r *journalRepositoryImpl) MarkCancelled(ctx context.Context, tx *sqlx.Tx, orderID uint64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE session_orders SET cancelled_at=$1 WHERE id=$2`,
		at, orderID)
	return err
}

func (r *journalRepositoryImpl) RecordReset(ctx context.Context, tx *sqlx.Tx, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_resets (reset_at) VALUES ($1)`, at)
	return err
}

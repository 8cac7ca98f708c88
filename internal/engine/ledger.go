package engine

import "github.com/econlab/classlob/backend/pkg/model"

// ledger holds per-trader cash and asset balances. It carries no lock of
// its own: every call happens inside the book's critical section, so
// ledger changes and trade-log entries are always created together.
type ledger struct {
	startCash   float64
	startAssets model.Quantity
	accounts    map[string]*model.Holdings
}

func newLedger(startCash float64, startAssets model.Quantity) *ledger {
	return &ledger{
		startCash:   startCash,
		startAssets: startAssets,
		accounts:    make(map[string]*model.Holdings),
	}
}

// ensureTrader is idempotent: an unseen trader gets the starting
// endowment, a known trader is untouched.
func (l *ledger) ensureTrader(trader string) {
	if _, ok := l.accounts[trader]; !ok {
		l.accounts[trader] = &model.Holdings{
			Cash:   l.startCash,
			Assets: l.startAssets,
		}
	}
}

// settle moves price*qty cash from buyer to seller and qty assets from
// seller to buyer. No bounds check: balances may cross zero.
func (l *ledger) settle(buyer, seller string, price model.Price, qty model.Quantity) {
	l.ensureTrader(buyer)
	l.ensureTrader(seller)

	notional := float64(price) * float64(qty)

	l.accounts[buyer].Cash -= notional
	l.accounts[buyer].Assets += qty

	l.accounts[seller].Cash += notional
	l.accounts[seller].Assets -= qty
}

func (l *ledger) snapshot() map[string]model.Holdings {
	out := make(map[string]model.Holdings, len(l.accounts))
	for trader, h := range l.accounts {
		out[trader] = *h
	}
	return out
}

func (l *ledger) reset() {
	l.accounts = make(map[string]*model.Holdings)
}

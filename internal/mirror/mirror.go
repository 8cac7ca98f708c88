package mirror

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/econlab/classlob/backend/pkg/model"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

// TigerBeetle ledger identifiers for the two legs of every trade.
const (
	CashLedger  uint32 = 10
	AssetLedger uint32 = 20
)

const (
	traderAccountCode  uint16 = 2001
	cashTransferCode   uint16 = 3001
	assetTransferCode  uint16 = 3002
	cashUnitsPerDollar        = 100 // TigerBeetle amounts are integers; cash is mirrored in cents
)

type traderAccounts struct {
	cash  tbTypes.Uint128
	asset tbTypes.Uint128
}

// Mirror posts every settlement as a double-entry transfer pair into
// TigerBeetle. It runs outside the engine's critical section and is
// best effort: the in-memory ledger stays authoritative, so a failed
// mirror write is logged and dropped, never retried into the book.
type Mirror struct {
	client tb.Client

	mu       sync.Mutex
	accounts map[string]traderAccounts

	logger *log.Logger
}

func NewMirror(client tb.Client, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirror{
		client:   client,
		accounts: make(map[string]traderAccounts),
		logger:   logger,
	}
}

// RecordTrade mirrors one executed trade: a cash leg from the buyer to
// the seller and an asset leg from the seller to the buyer.
func (m *Mirror) RecordTrade(tr model.Trade) error {
	buyer, err := m.ensureAccounts(tr.Buyer)
	if err != nil {
		return fmt.Errorf("buyer accounts: %w", err)
	}
	seller, err := m.ensureAccounts(tr.Seller)
	if err != nil {
		return fmt.Errorf("seller accounts: %w", err)
	}

	transfers := []tbTypes.Transfer{
		{
			ID:              tbTypes.ID(),
			DebitAccountID:  buyer.cash,
			CreditAccountID: seller.cash,
			Amount:          cashUnits(tr.Price, tr.Quantity),
			Ledger:          CashLedger,
			Code:            cashTransferCode,
		},
		{
			ID:              tbTypes.ID(),
			DebitAccountID:  seller.asset,
			CreditAccountID: buyer.asset,
			Amount:          tbTypes.ToUint128(uint64(tr.Quantity)),
			Ledger:          AssetLedger,
			Code:            assetTransferCode,
		},
	}

	results, err := m.client.CreateTransfers(transfers)
	if err != nil {
		return fmt.Errorf("mirror transfers: %w", err)
	}
	if len(results) > 0 {
		return fmt.Errorf("mirror transfer failures: %+v", results)
	}
	return nil
}

// ensureAccounts lazily creates a cash and an asset account for a
// trader. No balance-limit flags: classroom balances may go negative,
// and the mirror must accept whatever the engine settled.
func (m *Mirror) ensureAccounts(trader string) (traderAccounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.accounts[trader]; ok {
		return acc, nil
	}

	acc := traderAccounts{
		cash:  tbTypes.ID(),
		asset: tbTypes.ID(),
	}
	created := []tbTypes.Account{
		{
			ID:     acc.cash,
			Code:   traderAccountCode,
			Ledger: CashLedger,
			Flags:  tbTypes.AccountFlags{History: true}.ToUint16(),
		},
		{
			ID:     acc.asset,
			Code:   traderAccountCode,
			Ledger: AssetLedger,
			Flags:  tbTypes.AccountFlags{History: true}.ToUint16(),
		},
	}

	errList, err := m.client.CreateAccounts(created)
	if err != nil {
		return traderAccounts{}, fmt.Errorf("create accounts for %q: %w", trader, err)
	}
	if len(errList) > 0 {
		return traderAccounts{}, fmt.Errorf("create accounts for %q: %+v", trader, errList)
	}

	m.accounts[trader] = acc
	m.logger.Printf("mirror accounts created for trader %q", trader)
	return acc, nil
}

func cashUnits(price model.Price, qty model.Quantity) tbTypes.Uint128 {
	cents := uint64(math.Round(float64(price) * cashUnitsPerDollar))
	return tbTypes.ToUint128(cents * uint64(qty))
}

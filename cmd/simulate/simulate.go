package main

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/econlab/classlob/backend/internal/engine"
	"github.com/econlab/classlob/backend/pkg/model"
)

// Drives a scripted session against the engine in-process. Useful for a
// dry run of the classroom exercise without the HTTP layer.
func main() {
	book := engine.NewOrderBook(engine.OrderBookOpts{
		StartCash:   300,
		StartAssets: 3,
	})

	order, trades, err := book.Submit("alice", model.BID, 101, 10)
	log.Printf("alice bid: order %d remaining %d, trades %d, err %v",
		order.ID(), order.Remaining(), len(trades), err)

	order, trades, err = book.Submit("bob", model.ASK, 100, 5)
	log.Printf("bob ask: order %d remaining %d, trades %d, err %v",
		order.ID(), order.Remaining(), len(trades), err)

	// A few noise traders around the fundamental value.
	aliases := []string{"carol", "dave", "erin", "frank"}
	for i := 0; i < 40; i++ {
		trader := aliases[rand.Intn(len(aliases))]
		side := model.BID
		if rand.Intn(2) == 1 {
			side = model.ASK
		}
		price := model.Price(95 + rand.Intn(11))
		if _, _, err := book.Submit(trader, side, price, 1); err != nil {
			log.Fatalf("simulated submit: %v", err)
		}
	}

	top := book.TopOfBook()
	if top.BestBid != nil && top.BestAsk != nil {
		log.Printf("top of book: bid %.2f / ask %.2f (spread %.2f)",
			top.BestBid.Price, top.BestAsk.Price, top.Spread)
	}

	fmt.Println("--- tape (newest first) ---")
	for _, tr := range book.TradesView(10) {
		fmt.Printf("trade %d: %d @ %.2f (buy %d / sell %d)\n",
			tr.ID, tr.Quantity, tr.Price, tr.BuyOrderID, tr.SellOrderID)
	}

	fmt.Println("--- holdings ---")
	for trader, h := range book.HoldingsSnapshot() {
		fmt.Printf("%-8s cash %8.2f assets %3d\n", trader, h.Cash, h.Assets)
	}
}

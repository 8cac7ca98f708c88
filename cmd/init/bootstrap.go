package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/econlab/classlob/backend/internal/mirror"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_orders (
    id            BIGINT PRIMARY KEY,
    trader        TEXT NOT NULL,
    side          TEXT NOT NULL,
    price         DOUBLE PRECISION NOT NULL,
    quantity      BIGINT NOT NULL,
    submitted_at  TIMESTAMPTZ NOT NULL,
    cancelled_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_trades (
    id             BIGINT PRIMARY KEY,
    price          DOUBLE PRECISION NOT NULL,
    quantity       BIGINT NOT NULL,
    buy_order_id   BIGINT NOT NULL,
    sell_order_id  BIGINT NOT NULL,
    buyer          TEXT NOT NULL,
    seller         TEXT NOT NULL,
    executed_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_resets (
    id        BIGSERIAL PRIMARY KEY,
    reset_at  TIMESTAMPTZ NOT NULL
);
`

// Bootstrap tool: creates the journal schema and the TigerBeetle house
// accounts for the cash and asset ledgers. Run once before class.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		pgInfo := fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), dbHost,
			os.Getenv("DB_PORT"), os.Getenv("DB_NAME"),
		)
		db, err := sqlx.Connect("postgres", pgInfo)
		if err != nil {
			log.Fatalf("error connecting postgres: %v", err)
		}
		if _, err := db.Exec(schema); err != nil {
			log.Fatalf("error creating journal schema: %v", err)
		}
		log.Println("journal schema ready")
	}

	tbAddress := os.Getenv("TB_ADDRESS")
	if tbAddress == "" {
		log.Println("TB_ADDRESS unset, skipping TigerBeetle bootstrap")
		return
	}

	tbClusterID, err := strconv.ParseUint(os.Getenv("TB_CLUSTER_ID"), 0, 64)
	if err != nil {
		tbClusterID = 1
	}
	client, err := tb.NewClient(tbTypes.ToUint128(tbClusterID), []string{tbAddress})
	if err != nil {
		log.Fatalf("error connecting tigerbeetle: %v", err)
	}

	// One house account per ledger, linked so creation is atomic.
	houseAccounts := []tbTypes.Account{
		{
			ID:     tbTypes.ID(),
			Code:   1001,
			Ledger: mirror.CashLedger,
			Flags: tbTypes.AccountFlags{
				Linked:  true,
				History: true,
			}.ToUint16(),
		},
		{
			ID:     tbTypes.ID(),
			Code:   1001,
			Ledger: mirror.AssetLedger,
			Flags: tbTypes.AccountFlags{
				History: true,
			}.ToUint16(),
		},
	}

	errList, err := client.CreateAccounts(houseAccounts)
	if err != nil {
		log.Fatalf("error creating house accounts: %v", err)
	}
	if len(errList) > 0 {
		for i, accountError := range errList {
			log.Printf("on index %d, we got this error: %v", i, accountError)
		}
		log.Fatalf("house account creation failed")
	}

	existing, err := client.QueryAccounts(tbTypes.QueryFilter{
		Code:  1001,
		Limit: 1000,
	})
	if err != nil {
		log.Fatalf("error fetching accounts: %v", err)
	}
	log.Printf("tigerbeetle ready, %d house accounts", len(existing))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/econlab/classlob/backend/internal/engine"
	"github.com/econlab/classlob/backend/internal/mirror"
	journalRepository "github.com/econlab/classlob/backend/internal/repository/journal"
	"github.com/econlab/classlob/backend/internal/router"
	"github.com/econlab/classlob/backend/internal/router/middleware"
	"github.com/econlab/classlob/backend/internal/usecase/market"
	"github.com/econlab/classlob/backend/internal/websocket"
	"github.com/econlab/classlob/backend/pkg/model"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbTypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	_ "github.com/lib/pq"
)

// Classroom defaults, overridable via the environment.
const (
	defaultStartCash   = 300.0
	defaultStartAssets = 3
	defaultFundamental = 100.0
	defaultPin         = "010308"
	defaultListenAddr  = ":8080"
)

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func mapToFeedTrade(tr model.Trade) model.TradeView {
	return model.TradeView{
		ID:          tr.ID,
		Price:       tr.Price,
		Quantity:    tr.Quantity,
		BuyOrderID:  tr.BuyOrderID,
		SellOrderID: tr.SellOrderID,
		Timestamp:   tr.ExecutedAt.UnixMilli(),
	}
}

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file, using process environment")
	}

	startCash := envFloat("START_CASH", defaultStartCash)
	startAssets := model.Quantity(envInt("START_ASSETS", defaultStartAssets))
	fundamental := envFloat("FUNDAMENTAL_DEFAULT", defaultFundamental)

	pin := os.Getenv("INSTRUCTOR_PIN")
	if pin == "" {
		pin = defaultPin
	}
	pins, err := middleware.NewPinChecker(pin)
	if err != nil {
		logger.Fatalf("instructor pin: %v", err)
	}

	book := engine.NewOrderBook(engine.OrderBookOpts{
		StartCash:   startCash,
		StartAssets: startAssets,
		Logger:      logger,
	})

	// Optional append-only journal: enabled when DB_HOST is set.
	var db *sqlx.DB
	var journalRepo journalRepository.JournalRepository
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		pgInfo := fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), dbHost,
			os.Getenv("DB_PORT"), os.Getenv("DB_NAME"),
		)
		db, err = sqlx.Connect("postgres", pgInfo)
		if err != nil {
			logger.Fatalf("error connecting postgres: %v", err)
		}
		journalRepo = journalRepository.NewJournalRepository(db)
		logger.Println("session journal enabled")
	}

	// Optional TigerBeetle settlement mirror: enabled when TB_ADDRESS
	// is set.
	var settlementMirror *mirror.Mirror
	if tbAddress := os.Getenv("TB_ADDRESS"); tbAddress != "" {
		tbClusterID, err := strconv.ParseUint(os.Getenv("TB_CLUSTER_ID"), 0, 64)
		if err != nil {
			tbClusterID = 1
		}
		tbClient, err := tb.NewClient(tbTypes.ToUint128(tbClusterID), []string{tbAddress})
		if err != nil {
			logger.Fatalf("tigerbeetle client init: %v", err)
		}
		settlementMirror = mirror.NewMirror(tbClient, logger)
		logger.Println("settlement mirror enabled")
	}

	marketUseCase := market.NewMarketUseCase(market.MarketUseCaseOpts{
		Book:        book,
		JournalRepo: journalRepo,
		Db:          db,
		Mirror:      settlementMirror,
		Logger:      logger,
	})

	hub := websocket.NewHub(logger)
	go hub.Run(rootCtx)

	marketUseCase.RegisterTradeHandler(func(tr model.Trade) {
		hub.PublishTrade(mapToFeedTrade(tr))
	})
	marketUseCase.RegisterBookHandler(func(depth model.MarketDepth) {
		hub.PublishBook(depth)
	})

	serveMux := http.NewServeMux()
	serveMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(hub, w, r)
	})

	router.BindRouter(router.BindRouterOpts{
		ServerRouter:       serveMux,
		UseCase:            marketUseCase,
		Pins:               pins,
		StartCash:          startCash,
		StartAssets:        startAssets,
		DefaultFundamental: fundamental,
	})
	logger.Println("finished binding router")

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = defaultListenAddr
	}
	server := http.Server{
		Addr:    addr,
		Handler: router.Cors(serveMux),
	}

	// Start server in background.
	go func() {
		logger.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen error: %v", err)
		}
	}()

	// Block until we get a signal (or parent context canceled).
	<-rootCtx.Done()
	logger.Println("shutdown signal received")

	// Give in-flight requests up to 10s to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v; forcing close", err)
		_ = server.Close()
	}

	logger.Println("server stopped")
}

package router

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/econlab/classlob/backend/internal/router/middleware"
	"github.com/econlab/classlob/backend/internal/usecase/market"
	"github.com/econlab/classlob/backend/pkg/model"
)

type MarketRouter interface {
	Submit(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	Reset(w http.ResponseWriter, r *http.Request)
	Bids(w http.ResponseWriter, r *http.Request)
	Asks(w http.ResponseWriter, r *http.Request)
	Trades(w http.ResponseWriter, r *http.Request)
	Top(w http.ResponseWriter, r *http.Request)
	Depth(w http.ResponseWriter, r *http.Request)
	Holdings(w http.ResponseWriter, r *http.Request)
	Leaderboard(w http.ResponseWriter, r *http.Request)
}

type marketRouterImpl struct {
	usecase market.MarketUseCase
	pins    *middleware.PinChecker

	startCash          float64
	startAssets        model.Quantity
	defaultFundamental float64
}

type MarketRouterOpts struct {
	UseCase            market.MarketUseCase
	Pins               *middleware.PinChecker
	StartCash          float64
	StartAssets        model.Quantity
	DefaultFundamental float64
}

func NewMarketRouter(opts MarketRouterOpts) MarketRouter {
	return &marketRouterImpl{
		usecase:            opts.UseCase,
		pins:               opts.Pins,
		startCash:          opts.StartCash,
		startAssets:        opts.StartAssets,
		defaultFundamental: opts.DefaultFundamental,
	}
}

func (mr *marketRouterImpl) Submit(w http.ResponseWriter, r *http.Request) {
	type SubmitOrderRequest struct {
		Trader   string  `json:"trader"`
		Side     string  `json:"side"` // "BUY" or "SELL"
		Price    float64 `json:"price"`
		Quantity int64   `json:"quantity"`
	}
	type SubmitOrderResponse struct {
		OrderID   model.OrderID     `json:"orderId"`
		Remaining model.Quantity    `json:"remaining"`
		Trades    []model.TradeView `json:"trades,omitempty"`
		Status    string            `json:"status"` // "accepted", "rejected"
		Message   string            `json:"message,omitempty"`
	}

	req, err := decodeJSON[SubmitOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	// Blank aliases trade as "Anon", matching the classroom form.
	trader := strings.TrimSpace(req.Trader)
	if trader == "" {
		trader = "Anon"
	}

	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	order, trades, err := mr.usecase.SubmitOrder(r.Context(), trader, side, model.Price(req.Price), model.Quantity(req.Quantity))
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, model.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, SubmitOrderResponse{
			Status:  "rejected",
			Message: err.Error(),
		})
		return
	}

	views := make([]model.TradeView, 0, len(trades))
	for _, tr := range trades {
		views = append(views, model.TradeView{
			ID:          tr.ID,
			Price:       tr.Price,
			Quantity:    tr.Quantity,
			BuyOrderID:  tr.BuyOrderID,
			SellOrderID: tr.SellOrderID,
			Timestamp:   tr.ExecutedAt.UnixMilli(),
		})
	}

	writeJSON(w, http.StatusOK, SubmitOrderResponse{
		OrderID:   order.ID(),
		Remaining: order.Remaining(),
		Trades:    views,
		Status:    "accepted",
	})
}

func (mr *marketRouterImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	type CancelOrderRequest struct {
		ID     model.OrderID `json:"id"`
		Trader string        `json:"trader,omitempty"`
		Force  bool          `json:"force,omitempty"`
	}
	type CancelOrderResponse struct {
		OrderID model.OrderID `json:"orderId"`
		Status  string        `json:"status"`
		Message string        `json:"message,omitempty"`
	}

	req, err := decodeJSON[CancelOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	// A forced cancel overrides ownership, so it needs the
	// instructor PIN.
	if req.Force && !mr.pins.Check(r.Header.Get(middleware.PinHeader)) {
		http.Error(w, "wrong instructor PIN", http.StatusForbidden)
		return
	}

	if !mr.usecase.CancelOrder(r.Context(), req.ID, req.Trader, req.Force) {
		writeJSON(w, http.StatusOK, CancelOrderResponse{
			OrderID: req.ID,
			Status:  "rejected",
			Message: "order not found or not owned by trader",
		})
		return
	}

	writeJSON(w, http.StatusOK, CancelOrderResponse{
		OrderID: req.ID,
		Status:  "cancelled",
	})
}

func (mr *marketRouterImpl) Reset(w http.ResponseWriter, r *http.Request) {
	mr.usecase.ResetBook(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (mr *marketRouterImpl) Bids(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mr.usecase.Bids(r.Context()))
}

func (mr *marketRouterImpl) Asks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mr.usecase.Asks(r.Context()))
}

// Trades serves the tape, newest first. ?limit=N trims it and
// ?order=asc returns the full chronological series for charting.
func (mr *marketRouterImpl) Trades(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("order") == "asc" {
		writeJSON(w, http.StatusOK, mr.usecase.TradeSeries(r.Context()))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, mr.usecase.Trades(r.Context(), limit))
}

func (mr *marketRouterImpl) Top(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mr.usecase.TopOfBook(r.Context()))
}

func (mr *marketRouterImpl) Depth(w http.ResponseWriter, r *http.Request) {
	levels := 10
	if raw := r.URL.Query().Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, errors.New("levels must be a positive integer"))
			return
		}
		levels = n
	}
	writeJSON(w, http.StatusOK, mr.usecase.Depth(r.Context(), levels))
}

func (mr *marketRouterImpl) Holdings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mr.usecase.Holdings(r.Context()))
}

// Leaderboard computes final wealth per trader at a revealed
// fundamental value. The arithmetic lives here, outside the engine: the
// holdings snapshot is the engine's only contribution.
func (mr *marketRouterImpl) Leaderboard(w http.ResponseWriter, r *http.Request) {
	type LeaderboardRequest struct {
		Fundamental float64 `json:"fundamental"`
	}
	type LeaderboardRow struct {
		Trader      string         `json:"trader"`
		Cash        float64        `json:"cash"`
		Assets      model.Quantity `json:"assets"`
		FinalWealth float64        `json:"finalWealth"`
		Profit      float64        `json:"profit"`
	}

	req, err := decodeJSON[LeaderboardRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	fundamental := req.Fundamental
	if fundamental <= 0 {
		fundamental = mr.defaultFundamental
	}
	initialWealth := mr.startCash + float64(mr.startAssets)*fundamental

	holdings := mr.usecase.Holdings(r.Context())
	rows := make([]LeaderboardRow, 0, len(holdings))
	for trader, h := range holdings {
		wealth := h.Cash + float64(h.Assets)*fundamental
		rows = append(rows, LeaderboardRow{
			Trader:      trader,
			Cash:        h.Cash,
			Assets:      h.Assets,
			FinalWealth: wealth,
			Profit:      wealth - initialWealth,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FinalWealth != rows[j].FinalWealth {
			return rows[i].FinalWealth > rows[j].FinalWealth
		}
		return rows[i].Trader < rows[j].Trader
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"fundamental": fundamental,
		"rows":        rows,
	})
}

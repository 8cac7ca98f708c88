package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/econlab/classlob/backend/internal/engine"
	"github.com/econlab/classlob/backend/internal/router/middleware"
	"github.com/econlab/classlob/backend/internal/usecase/market"
	"github.com/econlab/classlob/backend/pkg/model"
)

const testPin = "010308"

func newTestRouter(t *testing.T) *http.ServeMux {
	t.Helper()

	pins, err := middleware.NewPinChecker(testPin)
	require.NoError(t, err)

	book := engine.NewOrderBook(engine.OrderBookOpts{
		StartCash:   300,
		StartAssets: 3,
	})
	uc := market.NewMarketUseCase(market.MarketUseCaseOpts{Book: book})

	mux := http.NewServeMux()
	BindRouter(BindRouterOpts{
		ServerRouter:       mux,
		UseCase:            uc,
		Pins:               pins,
		StartCash:          300,
		StartAssets:        3,
		DefaultFundamental: 100,
	})
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func submitOrder(t *testing.T, mux *http.ServeMux, trader, side string, price float64, qty int64) map[string]any {
	t.Helper()

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/order/add", map[string]any{
		"trader":   trader,
		"side":     side,
		"price":    price,
		"quantity": qty,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "accepted", resp["status"])
	return resp
}

func TestSubmitAndMatch(t *testing.T) {
	mux := newTestRouter(t)

	resp := submitOrder(t, mux, "alice", "BUY", 101, 10)
	assert.EqualValues(t, 1, resp["orderId"])
	assert.EqualValues(t, 10, resp["remaining"])
	assert.Nil(t, resp["trades"])

	resp = submitOrder(t, mux, "bob", "SELL", 100, 5)
	assert.EqualValues(t, 0, resp["remaining"])
	trades := resp["trades"].([]any)
	require.Len(t, trades, 1)
	tr := trades[0].(map[string]any)
	assert.EqualValues(t, 100, tr["price"])
	assert.EqualValues(t, 5, tr["quantity"])

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/book/bids", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []model.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	require.Len(t, bids, 1)
	assert.EqualValues(t, 5, bids[0].Quantity)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/asks", nil, nil)
	var asks []model.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asks))
	assert.Empty(t, asks)
}

func TestSubmitRejections(t *testing.T) {
	mux := newTestRouter(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/order/add", map[string]any{
		"trader": "alice", "side": "HOLD", "price": 100, "quantity": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/order/add", map[string]any{
		"trader": "alice", "side": "BUY", "price": 100, "quantity": 0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/order/add", map[string]any{
		"trader": "alice", "side": "BUY", "price": -5, "quantity": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/order/add", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlankTraderBecomesAnon(t *testing.T) {
	mux := newTestRouter(t)
	submitOrder(t, mux, "   ", "BUY", 100, 1)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/holdings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings map[string]model.Holdings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	assert.Contains(t, holdings, "Anon")
}

func TestCancelFlow(t *testing.T) {
	mux := newTestRouter(t)
	resp := submitOrder(t, mux, "alice", "BUY", 100, 3)
	id := resp["orderId"]

	// Wrong owner: the request succeeds, the cancel does not.
	rec := doJSON(t, mux, http.MethodDelete, "/api/v1/order/cancel", map[string]any{
		"id": id, "trader": "mallory",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "rejected", out["status"])

	// Forced cancel needs the instructor PIN.
	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/order/cancel", map[string]any{
		"id": id, "trader": "mallory", "force": true,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/order/cancel", map[string]any{
		"id": id, "trader": "alice",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "cancelled", out["status"])

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/order/cancel", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForcedCancelOverridesOwnership(t *testing.T) {
	mux := newTestRouter(t)
	resp := submitOrder(t, mux, "alice", "BUY", 100, 3)

	rec := doJSON(t, mux, http.MethodDelete, "/api/v1/order/cancel", map[string]any{
		"id": resp["orderId"], "trader": "instructor", "force": true,
	}, map[string]string{middleware.PinHeader: testPin})
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "cancelled", out["status"])
}

func TestResetRequiresPin(t *testing.T) {
	mux := newTestRouter(t)
	submitOrder(t, mux, "alice", "BUY", 100, 1)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/book/reset", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/book/reset", nil, map[string]string{
		middleware.PinHeader: "wrong",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/book/reset", nil, map[string]string{
		middleware.PinHeader: testPin,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/bids", nil, nil)
	var bids []model.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	assert.Empty(t, bids)
}

func TestTradesQueryParams(t *testing.T) {
	mux := newTestRouter(t)
	for i := 0; i < 3; i++ {
		submitOrder(t, mux, "s", "SELL", 100, 1)
		submitOrder(t, mux, "b", "BUY", 100, 1)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/book/trades?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tape []model.TradeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tape))
	require.Len(t, tape, 2)
	assert.Greater(t, tape[0].ID, tape[1].ID, "tape should be newest first")

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/trades?order=asc", nil, nil)
	var series []model.TradeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 3)
	assert.Less(t, series[0].ID, series[2].ID, "series should be chronological")

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/trades?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepthAndTop(t *testing.T) {
	mux := newTestRouter(t)
	submitOrder(t, mux, "a", "BUY", 99, 2)
	submitOrder(t, mux, "b", "BUY", 98, 1)
	submitOrder(t, mux, "c", "SELL", 101, 4)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/book/depth?levels=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var depth model.MarketDepth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	require.Len(t, depth.Bids, 1)
	assert.EqualValues(t, 99, depth.Bids[0].Price)
	require.Len(t, depth.Asks, 1)
	assert.EqualValues(t, 101, depth.Asks[0].Price)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/top", nil, nil)
	var top model.TopOfBook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.NotNil(t, top.BestBid)
	require.NotNil(t, top.BestAsk)
	assert.EqualValues(t, 2, top.Spread)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/book/depth?levels=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	mux := newTestRouter(t)
	submitOrder(t, mux, "buyer", "BUY", 101, 10)
	submitOrder(t, mux, "seller", "SELL", 100, 5)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/leaderboard", map[string]any{
		"fundamental": 110,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/leaderboard", map[string]any{
		"fundamental": 110,
	}, map[string]string{middleware.PinHeader: testPin})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Fundamental float64 `json:"fundamental"`
		Rows        []struct {
			Trader      string  `json:"trader"`
			FinalWealth float64 `json:"finalWealth"`
			Profit      float64 `json:"profit"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 110.0, out.Fundamental)
	require.Len(t, out.Rows, 2)

	// buyer: cash -200, assets +8 at 110 -> wealth 680; seller: 800 - 2*110 = 580.
	assert.Equal(t, "buyer", out.Rows[0].Trader)
	assert.Equal(t, 680.0, out.Rows[0].FinalWealth)
	assert.Equal(t, "seller", out.Rows[1].Trader)
	assert.Equal(t, 580.0, out.Rows[1].FinalWealth)
	assert.Equal(t, out.Rows[0].FinalWealth-630.0, out.Rows[0].Profit)
}

func TestLeaderboardDefaultsFundamental(t *testing.T) {
	mux := newTestRouter(t)
	submitOrder(t, mux, "alice", "BUY", 100, 1)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/leaderboard", map[string]any{}, map[string]string{
		middleware.PinHeader: testPin,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 100, out["fundamental"])
}

func TestHealthz(t *testing.T) {
	mux := newTestRouter(t)
	rec := doJSON(t, mux, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

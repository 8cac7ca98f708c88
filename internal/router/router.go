package router

import (
	"log"
	"net/http"
	"time"

	"github.com/econlab/classlob/backend/internal/router/middleware"
	"github.com/econlab/classlob/backend/internal/usecase/market"
	"github.com/econlab/classlob/backend/pkg/model"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Printf("%s %s %d %dB %s", r.Method, r.URL.Path, sw.status, sw.n, time.Since(start))
	})
}

// Cors wraps the mux when starting the server:
// http.ListenAndServe(":8080", Cors(mux))
func Cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			reqHdrs := r.Header.Get("Access-Control-Request-Headers")
			if reqHdrs == "" {
				reqHdrs = "Content-Type, " + middleware.PinHeader
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHdrs)

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if reqMethod == "" {
				reqMethod = "GET, POST, PUT, DELETE, OPTIONS"
			}
			w.Header().Set("Access-Control-Allow-Methods", reqMethod)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Short-circuit preflight so it never hits the route table.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type BindRouterOpts struct {
	ServerRouter       *http.ServeMux
	UseCase            market.MarketUseCase
	Pins               *middleware.PinChecker
	StartCash          float64
	StartAssets        model.Quantity
	DefaultFundamental float64
}

func BindRouter(opts BindRouterOpts) {
	mr := NewMarketRouter(MarketRouterOpts{
		UseCase:            opts.UseCase,
		Pins:               opts.Pins,
		StartCash:          opts.StartCash,
		StartAssets:        opts.StartAssets,
		DefaultFundamental: opts.DefaultFundamental,
	})
	guard := middleware.InstructorGuard(opts.Pins)
	mux := opts.ServerRouter

	mux.Handle("POST /api/v1/order/add", logging(http.HandlerFunc(mr.Submit)))
	mux.Handle("DELETE /api/v1/order/cancel", logging(http.HandlerFunc(mr.Cancel)))

	mux.Handle("POST /api/v1/book/reset", logging(guard(http.HandlerFunc(mr.Reset))))
	mux.Handle("GET /api/v1/book/bids", logging(http.HandlerFunc(mr.Bids)))
	mux.Handle("GET /api/v1/book/asks", logging(http.HandlerFunc(mr.Asks)))
	mux.Handle("GET /api/v1/book/trades", logging(http.HandlerFunc(mr.Trades)))
	mux.Handle("GET /api/v1/book/top", logging(http.HandlerFunc(mr.Top)))
	mux.Handle("GET /api/v1/book/depth", logging(http.HandlerFunc(mr.Depth)))

	mux.Handle("GET /api/v1/holdings", logging(http.HandlerFunc(mr.Holdings)))
	mux.Handle("POST /api/v1/leaderboard", logging(guard(http.HandlerFunc(mr.Leaderboard))))

	mux.Handle("GET /healthz", logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": 200,
			"health": "healthy",
		})
	})))
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stocksim/internal/auth"
	"stocksim/internal/service"
)

// NewRouter creates the exchange's chi router: public market data,
// API-key trader endpoints and token-gated admin endpoints.
func NewRouter(
	marketSvc *service.MarketService,
	traderSvc *service.TraderService,
	adminSvc *service.AdminService,
	keychain *auth.Keychain,
	adminToken string,
	limiter *auth.RateLimiter,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestLogging(logger))
	r.Use(auth.RateLimit(limiter, WriteRateLimited))
	r.Use(contentTypeJSON)

	publicH := NewPublicHandler(marketSvc)
	traderH := NewTraderHandler(traderSvc)
	adminH := NewAdminHandler(adminSvc, marketSvc)

	// Public.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/companies", publicH.ListCompanies)
	r.Get("/companies/{ticker}", publicH.GetCompany)
	r.Get("/orderbook/{ticker}", publicH.GetOrderBook)
	r.Get("/trades/{ticker}", publicH.GetTrades)
	r.Get("/market-data", publicH.GetAllMarketData)
	r.Get("/market-data/{ticker}", publicH.GetMarketData)

	// Trader (X-API-Key).
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(keychain, WriteUnauthorized))
		r.Get("/account", traderH.GetAccount)
		r.Get("/holdings", traderH.GetHoldings)
		r.Get("/orders", traderH.ListOrders)
		r.Get("/orders/{order_id}", traderH.GetOrder)
		r.Post("/orders", traderH.PlaceOrder)
		r.Delete("/orders/{order_id}", traderH.CancelOrder)
	})

	// Admin (X-Admin-Token).
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdminToken(adminToken, WriteUnauthorized))
		r.Post("/admin/companies", adminH.CreateCompany)
		r.Post("/admin/accounts", adminH.CreateAccount)
		r.Get("/admin/accounts", adminH.ListAccounts)
		r.Get("/admin/accounts/{account_id}", adminH.GetAccount)
		r.Get("/admin/stats", adminH.GetStats)
		r.Get("/admin/orderbook/{ticker}", adminH.GetOrderBook)
	})

	return r
}

// RequestLogging returns middleware that logs each request's method,
// path, status code, and duration.
func RequestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON validates Content-Type on POST, PUT and PATCH
// requests before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, CodeInvalidParameters,
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

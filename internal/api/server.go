// Package api exposes the operator control surface: health, state
// inspection, trade history, Prometheus metrics, a manual tick trigger
// and the breaker reset.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polyTradeBot/internal/app"
	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ledger"
	"polyTradeBot/internal/ports"
	"polyTradeBot/internal/risk"
	"polyTradeBot/internal/tracker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the dependencies for the HTTP server.
type Config struct {
	Addr    string
	Logger  ports.Logger
	Service *app.TradingService
	Ledger  ledger.Ledger
	Tracker *tracker.Tracker
	Risk    *risk.Engine
	Trades  ports.TradeRepository
	Mode    domain.ExecMode
}

// Server is the operator-facing HTTP server.
type Server struct {
	logger  ports.Logger
	service *app.TradingService
	ledger  ledger.Ledger
	tracker *tracker.Tracker
	risk    *risk.Engine
	trades  ports.TradeRepository
	mode    domain.ExecMode

	httpSrv   *http.Server
	startedAt time.Time
}

// NewServer validates the configuration and builds the routed server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.Service == nil || cfg.Ledger == nil || cfg.Tracker == nil || cfg.Risk == nil || cfg.Trades == nil {
		return nil, fmt.Errorf("%w: service, ledger, tracker, risk engine and trade repository are required", ports.ErrConfigurationError)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: listen address is required", ports.ErrConfigurationError)
	}

	s := &Server{
		logger:    cfg.Logger,
		service:   cfg.Service,
		ledger:    cfg.Ledger,
		tracker:   cfg.Tracker,
		risk:      cfg.Risk,
		trades:    cfg.Trades,
		mode:      cfg.Mode,
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
	r.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/stats", s.handleOrderStats).Methods(http.MethodGet)
	r.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	r.HandleFunc("/tick", s.handleTick).Methods(http.MethodPost)
	r.HandleFunc("/risk/breaker/reset", s.handleBreakerReset).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Start serves until Shutdown is called. Blocks.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "API server listening", map[string]interface{}{"addr": s.httpSrv.Addr})
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	riskStatus := s.risk.RiskStatus()
	snap := s.ledger.Snapshot(nil)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":            s.mode,
		"uptime_s":        time.Since(s.startedAt).Seconds(),
		"orders":          s.tracker.Stats(),
		"breaker":         riskStatus.Breaker,
		"portfolio_value": snap.PortfolioValue,
		"cash":            snap.Cash,
		"open_positions":  len(snap.Positions),
		"total_pnl":       snap.TotalPnL,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Snapshot(nil))
}

func (s *Server) handleOrders(w http.ResponseWriter, _ *http.Request) {
	orders := s.tracker.GetOpenOrders()
	if orders == nil {
		orders = []domain.TrackedOrder{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleOrderStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Stats())
}

// handleTrades returns the most recent completed round trips, newest
// first. An optional limit query parameter caps the count; the
// repository default applies otherwise.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	trades, err := s.trades.RecentTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to load recent trades")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load trade history"})
		return
	}
	if trades == nil {
		trades = []*domain.TradeRecord{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.risk.RiskStatus())
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	ran, err := s.service.RunTick(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Manual tick failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ran {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "tick already in progress"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	s.risk.ResetBreaker(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "breaker reset"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode response")
	}
}

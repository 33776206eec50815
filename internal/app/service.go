// Package app wires the execution core together and drives the trading
// loop. One tick fetches quotes, advances pending orders, settles fills,
// forces exits and routes new decisions through the risk gate.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"polyTradeBot/config"
	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ledger"
	"polyTradeBot/internal/metrics"
	"polyTradeBot/internal/ports"
	"polyTradeBot/internal/position"
	"polyTradeBot/internal/risk"
	"polyTradeBot/internal/tracker"
)

const (
	quoteWorkers = 4
	quoteTimeout = 5 * time.Second
)

// reconciler is implemented by the live ledger variant.
type reconciler interface {
	Reconcile(ctx context.Context) error
}

// Deps bundles the components the service orchestrates.
type Deps struct {
	Ledger    ledger.Ledger
	Tracker   *tracker.Tracker
	Positions *position.Manager
	Risk      *risk.Engine
	Quotes    ports.QuoteSource
	Venue     ports.VenueClient // required in live mode
	Decisions ports.DecisionSource
	Trades    ports.TradeRepository
}

// TradingService orchestrates the trading loop.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	ledger    ledger.Ledger
	tracker   *tracker.Tracker
	positions *position.Manager
	risk      *risk.Engine
	quotes    ports.QuoteSource
	venue     ports.VenueClient
	decisions ports.DecisionSource
	trades    ports.TradeRepository

	// tickMu guarantees at most one tick runs at a time; an overlapping
	// tick is skipped, never queued.
	tickMu sync.Mutex

	// exitMu protects exitReasons, which remembers why each pending sell
	// order was placed so the eventual fill is recorded correctly.
	exitMu      sync.Mutex
	exitReasons map[string]domain.ExitReason

	lastPurge time.Time
	now       func() time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg *config.Config, logger ports.Logger, deps Deps) (*TradingService, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("%w: config and logger are required", ports.ErrConfigurationError)
	}
	if deps.Ledger == nil || deps.Tracker == nil || deps.Positions == nil || deps.Risk == nil {
		return nil, fmt.Errorf("%w: ledger, tracker, position manager and risk engine are required", ports.ErrConfigurationError)
	}
	if deps.Quotes == nil || deps.Decisions == nil || deps.Trades == nil {
		return nil, fmt.Errorf("%w: quote source, decision source and trade repository are required", ports.ErrConfigurationError)
	}
	if cfg.Mode == domain.ModeLive && deps.Venue == nil {
		return nil, fmt.Errorf("%w: venue client is required in live mode", ports.ErrConfigurationError)
	}
	if cfg.TickIntv <= 0 {
		return nil, fmt.Errorf("%w: tick interval must be positive", ports.ErrConfigurationError)
	}

	return &TradingService{
		cfg:         cfg,
		logger:      logger,
		ledger:      deps.Ledger,
		tracker:     deps.Tracker,
		positions:   deps.Positions,
		risk:        deps.Risk,
		quotes:      deps.Quotes,
		venue:       deps.Venue,
		decisions:   deps.Decisions,
		trades:      deps.Trades,
		exitReasons: make(map[string]domain.ExitReason),
		lastPurge:   time.Now(),
		now:         time.Now,
	}, nil
}

// Start runs the trading loop until the context is cancelled or a
// termination signal arrives. The first tick runs immediately.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"mode":    s.cfg.Mode,
		"tick_s":  s.cfg.TickIntv.Seconds(),
		"venue":   s.cfg.VenueBaseURL,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if r, ok := s.ledger.(reconciler); ok {
		if err := r.Reconcile(ctx); err != nil {
			s.logger.Warn(ctx, "Initial ledger reconcile failed", map[string]interface{}{"error": err.Error()})
		}
	}

	ticker := time.NewTicker(s.cfg.TickIntv)
	defer ticker.Stop()

	if _, err := s.RunTick(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial tick failed")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading service stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunTick(ctx); err != nil {
				s.logger.Error(ctx, err, "Tick failed")
			}
		}
	}
}

// RunTick executes one full trading cycle. Returns false without error
// when a previous tick is still running.
func (s *TradingService) RunTick(ctx context.Context) (bool, error) {
	if !s.tickMu.TryLock() {
		metrics.TicksSkipped.Inc()
		s.logger.Warn(ctx, "Tick still in progress, skipping this cycle")
		return false, nil
	}
	defer s.tickMu.Unlock()

	start := s.now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if s.cfg.Mode == domain.ModeLive {
		if r, ok := s.ledger.(reconciler); ok {
			if err := r.Reconcile(ctx); err != nil {
				s.logger.Warn(ctx, "Ledger reconcile failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	books, prices := s.fetchQuotes(ctx, s.collectTokens(ctx))

	var fills []*domain.FillResult
	if s.cfg.Mode == domain.ModeLive {
		var venueErrors int
		fills, venueErrors = s.tracker.CheckFillsReal(ctx, s.cfg.MaxOrderAge)
		s.risk.RecordVenueErrors(ctx, venueErrors)
	} else {
		fills = s.tracker.CheckFillsSimulated(ctx, prices, s.cfg.MaxOrderAge)
	}

	s.settleFills(ctx, fills, prices)
	s.sweepTerminalOrders(ctx)

	signals := s.positions.CheckExitConditions(ctx, s.ledger.OpenPositions(), prices)
	for _, sig := range signals {
		s.placeExitOrder(ctx, sig)
	}

	decs, err := s.decisions.NextDecisions(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Decision source failed this tick", map[string]interface{}{"error": err.Error()})
	}
	for _, dec := range decs {
		s.processDecision(ctx, dec, books[dec.TokenID], prices)
	}

	if s.cfg.PurgeInterval > 0 && s.now().Sub(s.lastPurge) >= s.cfg.PurgeInterval {
		if removed := s.tracker.PurgeCompleted(ctx, s.cfg.TrackerTTL); removed > 0 {
			s.logger.Info(ctx, "Purged completed orders", map[string]interface{}{"count": removed})
		}
		s.lastPurge = s.now()
	}

	s.updateGauges(prices)

	s.logger.Debug(ctx, "Tick complete", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
		"fills":       len(fills),
		"exits":       len(signals),
		"decisions":   len(decs),
	})
	return true, nil
}

// collectTokens gathers every token this tick needs a quote for: the
// watchlist, open positions and open orders.
func (s *TradingService) collectTokens(ctx context.Context) []string {
	seen := make(map[string]struct{})

	watched, err := s.decisions.WatchedTokens(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Watchlist fetch failed this tick", map[string]interface{}{"error": err.Error()})
	}
	for _, id := range watched {
		seen[id] = struct{}{}
	}
	for id := range s.ledger.OpenPositions() {
		seen[id] = struct{}{}
	}
	for _, order := range s.tracker.GetOpenOrders() {
		seen[order.TokenID] = struct{}{}
	}

	tokens := make([]string, 0, len(seen))
	for id := range seen {
		tokens = append(tokens, id)
	}
	return tokens
}

// fetchQuotes pulls order books concurrently under a worker bound and
// derives mid prices. Tokens whose fetch fails are simply absent.
func (s *TradingService) fetchQuotes(ctx context.Context, tokens []string) (map[string]*domain.Quote, map[string]float64) {
	books := make(map[string]*domain.Quote, len(tokens))
	prices := make(map[string]float64, len(tokens))
	if len(tokens) == 0 {
		return books, prices
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, quoteWorkers)
	)
	for _, tokenID := range tokens {
		wg.Add(1)
		sem <- struct{}{}
		go func(tokenID string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, quoteTimeout)
			defer cancel()

			quote, err := s.quotes.GetQuote(fetchCtx, tokenID)
			if err != nil {
				s.logger.Warn(ctx, "Quote fetch failed", map[string]interface{}{
					"token_id": tokenID,
					"error":    err.Error(),
				})
				return
			}

			mu.Lock()
			books[tokenID] = quote
			if mid := quote.Mid(); mid > 0 {
				prices[tokenID] = mid
			}
			mu.Unlock()
		}(tokenID)
	}
	wg.Wait()

	return books, prices
}

// settleFills applies fill results to the ledger. Buy fills consume
// their reservation; sell fills realize PnL and complete a round trip.
func (s *TradingService) settleFills(ctx context.Context, fills []*domain.FillResult, prices map[string]float64) {
	for _, fill := range fills {
		switch fill.Side {
		case domain.Buy:
			if !s.ledger.SettleBuyFill(ctx, fill.OrderID, fill.TokenID, fill.Quantity, fill.FillPrice) {
				s.logger.Warn(ctx, "Buy fill could not be settled", map[string]interface{}{
					"order_id": fill.OrderID,
					"token_id": fill.TokenID,
				})
				continue
			}
			metrics.OrderFills.WithLabelValues(string(domain.Buy)).Inc()

		case domain.Sell:
			s.settleSellFill(ctx, fill, prices)
		}
	}
}

func (s *TradingService) settleSellFill(ctx context.Context, fill *domain.FillResult, prices map[string]float64) {
	pos, exists := s.ledger.Position(fill.TokenID)
	if !exists {
		s.logger.Warn(ctx, "Sell fill for unknown position", map[string]interface{}{
			"order_id": fill.OrderID,
			"token_id": fill.TokenID,
		})
		return
	}

	pnl, ok := s.ledger.ReducePosition(ctx, fill.TokenID, fill.Quantity, fill.FillPrice)
	if !ok {
		s.logger.Warn(ctx, "Sell fill could not reduce position", map[string]interface{}{
			"order_id": fill.OrderID,
			"token_id": fill.TokenID,
		})
		return
	}
	metrics.OrderFills.WithLabelValues(string(domain.Sell)).Inc()

	reason := s.takeExitReason(fill.OrderID)
	record := &domain.TradeRecord{
		TokenID:    fill.TokenID,
		EntryPrice: pos.AvgPrice,
		ExitPrice:  fill.FillPrice,
		Quantity:   fill.Quantity,
		PnL:        pnl,
		ExitReason: reason,
		EntryTime:  pos.OpenedAt,
		ExitTime:   s.now(),
	}
	if _, err := s.trades.CreateTrade(ctx, record); err != nil {
		s.logger.Error(ctx, err, "Failed to record completed trade", map[string]interface{}{
			"token_id": fill.TokenID,
			"pnl":      pnl,
		})
	}

	s.risk.PostTradeUpdate(ctx, record, s.ledger.PortfolioValue(prices))
	metrics.TradesClosed.WithLabelValues(string(reason)).Inc()

	s.logger.Info(ctx, "Round trip completed", map[string]interface{}{
		"token_id":    fill.TokenID,
		"entry_price": pos.AvgPrice,
		"exit_price":  fill.FillPrice,
		"qty":         fill.Quantity,
		"pnl":         pnl,
		"reason":      reason,
	})
}

// sweepTerminalOrders cleans up after orders that reached a terminal
// state. Expired and cancelled buys give their reserved cash back
// (CancelReserved is idempotent, so orders already handled return
// zero); terminal sells drop their remembered exit reason so re-placed
// exits do not accumulate entries.
func (s *TradingService) sweepTerminalOrders(ctx context.Context) {
	for _, order := range s.tracker.TerminalOrders() {
		// Filled sells consumed their reason during settlement earlier
		// this tick; anything left behind is stale.
		if order.Side == domain.Sell {
			s.dropExitReason(order.ID)
			continue
		}

		if order.Status != domain.OrderExpired && order.Status != domain.OrderCancelled {
			continue
		}
		if amount := s.ledger.CancelReserved(ctx, order.ID); amount > 0 {
			if order.Status == domain.OrderExpired {
				metrics.OrdersExpired.Inc()
			}
			s.logger.Info(ctx, "Released reservation for dead order", map[string]interface{}{
				"order_id": order.ID,
				"status":   order.Status,
				"amount":   amount,
			})
		}
	}
}

// placeExitOrder submits a sell for a forced exit. Tokens that already
// have an open sell are left alone so overlapping ticks cannot double
// exit.
func (s *TradingService) placeExitOrder(ctx context.Context, sig *domain.ExitSignal) {
	if s.hasOpenSell(sig.TokenID) {
		s.logger.Debug(ctx, "Exit already pending for token", map[string]interface{}{"token_id": sig.TokenID})
		return
	}

	pos, exists := s.ledger.Position(sig.TokenID)
	if !exists {
		return
	}
	qty := sig.Quantity
	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	s.logger.Info(ctx, "Forcing position exit", map[string]interface{}{
		"token_id": sig.TokenID,
		"reason":   sig.Reason,
		"price":    sig.CurrentPrice,
		"qty":      qty,
		"held_s":   sig.HeldFor.Seconds(),
	})

	s.placeSell(ctx, sig.TokenID, sig.CurrentPrice, qty, sig.Reason)
}

// processDecision routes one recommendation through the risk gate and,
// when allowed, places the order.
func (s *TradingService) processDecision(ctx context.Context, dec *domain.TradeDecision, quote *domain.Quote, prices map[string]float64) {
	if dec == nil || dec.Action == domain.ActionHold {
		return
	}

	snap := s.ledger.Snapshot(prices)
	verdict := s.risk.PreTradeChecks(ctx, dec, snap, quote)
	if !verdict.Allowed {
		metrics.TradesDenied.Inc()
		s.logger.Info(ctx, "Trade denied by risk gate", map[string]interface{}{
			"token_id": dec.TokenID,
			"action":   dec.Action,
			"reason":   verdict.Reason,
		})
		return
	}

	switch dec.Action {
	case domain.ActionBuy:
		s.placeBuy(ctx, dec, verdict.SizeUSD)
	case domain.ActionSell:
		pos, exists := s.ledger.Position(dec.TokenID)
		if !exists {
			s.logger.Warn(ctx, "Sell decision for token without a position", map[string]interface{}{"token_id": dec.TokenID})
			return
		}
		qty := pos.Quantity
		if dec.SizeUSD > 0 && dec.LimitPrice > 0 {
			if want := dec.SizeUSD / dec.LimitPrice; want < qty {
				qty = want
			}
		}
		s.placeSell(ctx, dec.TokenID, dec.LimitPrice, qty, domain.ExitDecision)
	}
}

// placeBuy reserves cash for the order before it is tracked. In live
// mode the venue submission happens between the two; a rejected
// submission returns the reservation.
func (s *TradingService) placeBuy(ctx context.Context, dec *domain.TradeDecision, sizeUSD float64) {
	qty := sizeUSD / dec.LimitPrice

	order := domain.TrackedOrder{
		ID:         uuid.NewString(),
		TokenID:    dec.TokenID,
		Side:       domain.Buy,
		LimitPrice: dec.LimitPrice,
		Quantity:   qty,
	}

	if !s.ledger.ReserveCash(ctx, order.ID, qty*dec.LimitPrice) {
		s.logger.Warn(ctx, "Insufficient cash to reserve for buy", map[string]interface{}{
			"token_id": dec.TokenID,
			"size_usd": sizeUSD,
		})
		return
	}

	if s.cfg.Mode == domain.ModeLive {
		venueID, err := s.venue.SubmitOrder(ctx, dec.TokenID, domain.Buy, dec.LimitPrice, qty)
		if err != nil {
			s.ledger.CancelReserved(ctx, order.ID)
			s.logger.Error(ctx, err, "Buy order rejected by venue", map[string]interface{}{"token_id": dec.TokenID})
			return
		}
		order.VenueID = venueID
	}

	if _, err := s.tracker.AddOrder(ctx, order); err != nil {
		s.ledger.CancelReserved(ctx, order.ID)
		if s.cfg.Mode == domain.ModeLive && order.VenueID != "" {
			if cancelErr := s.venue.CancelOrder(ctx, order.VenueID); cancelErr != nil {
				s.logger.Error(ctx, cancelErr, "Failed to cancel untracked venue order", map[string]interface{}{"venue_id": order.VenueID})
			}
		}
		s.logger.Error(ctx, err, "Could not track buy order", map[string]interface{}{"token_id": dec.TokenID})
		return
	}

	metrics.OrdersPlaced.WithLabelValues(string(domain.Buy)).Inc()
	s.logger.Info(ctx, "Buy order placed", map[string]interface{}{
		"order_id": order.ID,
		"token_id": dec.TokenID,
		"limit":    dec.LimitPrice,
		"qty":      qty,
		"size_usd": sizeUSD,
	})
}

func (s *TradingService) placeSell(ctx context.Context, tokenID string, price, qty float64, reason domain.ExitReason) {
	if qty <= 0 || price <= 0 || price >= 1 {
		s.logger.Warn(ctx, "Skipping sell with unusable parameters", map[string]interface{}{
			"token_id": tokenID,
			"price":    price,
			"qty":      qty,
		})
		return
	}

	order := domain.TrackedOrder{
		ID:         uuid.NewString(),
		TokenID:    tokenID,
		Side:       domain.Sell,
		LimitPrice: price,
		Quantity:   qty,
	}

	if s.cfg.Mode == domain.ModeLive {
		venueID, err := s.venue.SubmitOrder(ctx, tokenID, domain.Sell, price, qty)
		if err != nil {
			s.logger.Error(ctx, err, "Sell order rejected by venue", map[string]interface{}{"token_id": tokenID})
			return
		}
		order.VenueID = venueID
	}

	id, err := s.tracker.AddOrder(ctx, order)
	if err != nil {
		if s.cfg.Mode == domain.ModeLive && order.VenueID != "" {
			if cancelErr := s.venue.CancelOrder(ctx, order.VenueID); cancelErr != nil {
				s.logger.Error(ctx, cancelErr, "Failed to cancel untracked venue order", map[string]interface{}{"venue_id": order.VenueID})
			}
		}
		s.logger.Error(ctx, err, "Could not track sell order", map[string]interface{}{"token_id": tokenID})
		return
	}

	s.exitMu.Lock()
	s.exitReasons[id] = reason
	s.exitMu.Unlock()

	metrics.OrdersPlaced.WithLabelValues(string(domain.Sell)).Inc()
}

func (s *TradingService) hasOpenSell(tokenID string) bool {
	for _, order := range s.tracker.GetOpenOrders() {
		if order.TokenID == tokenID && order.Side == domain.Sell {
			return true
		}
	}
	return false
}

// takeExitReason consumes the remembered reason for a sell order,
// defaulting to a decision-driven exit.
func (s *TradingService) takeExitReason(orderID string) domain.ExitReason {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()

	reason, ok := s.exitReasons[orderID]
	if !ok {
		return domain.ExitDecision
	}
	delete(s.exitReasons, orderID)
	return reason
}

func (s *TradingService) dropExitReason(orderID string) {
	s.exitMu.Lock()
	delete(s.exitReasons, orderID)
	s.exitMu.Unlock()
}

// pendingExitReasons reports how many sell orders currently have a
// remembered exit reason.
func (s *TradingService) pendingExitReasons() int {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	return len(s.exitReasons)
}

func (s *TradingService) updateGauges(prices map[string]float64) {
	snap := s.ledger.Snapshot(prices)
	metrics.PortfolioValue.Set(snap.PortfolioValue)
	metrics.CashAvailable.Set(snap.Cash)
	metrics.OpenPositions.Set(float64(len(snap.Positions)))
	metrics.DrawdownPct.Set(s.risk.RiskStatus().Drawdown.CurrentPct)
}

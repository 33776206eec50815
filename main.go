package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"polyTradeBot/config"
	"polyTradeBot/internal/adapters/decisionfeed"
	"polyTradeBot/internal/adapters/logger"
	"polyTradeBot/internal/adapters/memstore"
	"polyTradeBot/internal/adapters/redisstore"
	"polyTradeBot/internal/adapters/sqlite"
	"polyTradeBot/internal/adapters/venueclient"
	"polyTradeBot/internal/api"
	"polyTradeBot/internal/app"
	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ledger"
	"polyTradeBot/internal/ports"
	"polyTradeBot/internal/position"
	"polyTradeBot/internal/risk"
	"polyTradeBot/internal/tracker"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize logger: %v", err)
		}
		defer func() { _ = zl.Sync() }()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize State Store
	var store ports.StateStore
	if cfg.RedisURL != "" {
		redisStore, err := redisstore.New(ctx, redisstore.Config{
			URL:    cfg.RedisURL,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to connect to Redis")
			log.Fatalf("FATAL: Failed to connect to Redis: %v", err)
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing Redis connection")
			}
		}()
		store = redisStore
		appLogger.Info(ctx, "Redis state store initialized")
	} else {
		store = memstore.New()
		appLogger.Warn(ctx, "No REDIS_URL set, state will not survive restarts")
	}

	// 4. Initialize Trade History Repository
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade history repository")
		log.Fatalf("FATAL: Failed to initialize trade history repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing trade history repository")
		}
	}()
	appLogger.Info(ctx, "Trade history repository initialized")

	// 5. Initialize Venue Client
	venue, err := venueclient.New(venueclient.Config{
		BaseURL:     cfg.VenueBaseURL,
		APIKey:      cfg.VenueAPIKey,
		HTTPTimeout: cfg.HTTPTimeout,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize venue client")
		log.Fatalf("FATAL: Failed to initialize venue client: %v", err)
	}
	appLogger.Info(ctx, "Venue client initialized", map[string]interface{}{"base_url": cfg.VenueBaseURL})

	// 6. Initialize Ledger
	var ldg ledger.Ledger
	if cfg.Mode == domain.ModeLive {
		ldg, err = ledger.NewLiveLedger(ctx, ledger.LiveConfig{
			Store:    store,
			Venue:    venue,
			Logger:   appLogger,
			StoreKey: cfg.LedgerKey,
			StateTTL: cfg.LiveTTL,
		})
	} else {
		ldg, err = ledger.NewPaperLedger(ctx, ledger.PaperConfig{
			Store:       store,
			Logger:      appLogger,
			InitialCash: cfg.InitialCash,
			StoreKey:    cfg.LedgerKey,
		})
	}
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize ledger")
		log.Fatalf("FATAL: Failed to initialize ledger: %v", err)
	}
	appLogger.Info(ctx, "Ledger initialized", map[string]interface{}{"mode": cfg.Mode})

	// 7. Initialize Order Tracker
	trk, err := tracker.New(ctx, tracker.Config{
		Store:    store,
		Logger:   appLogger,
		Venue:    venue,
		StoreKey: cfg.TrackerKey,
		StateTTL: cfg.TrackerTTL,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order tracker")
		log.Fatalf("FATAL: Failed to initialize order tracker: %v", err)
	}
	appLogger.Info(ctx, "Order tracker initialized")

	// 8. Initialize Position Manager
	posMgr, err := position.NewManager(position.Config{
		Quotes:        venue,
		Logger:        appLogger,
		TPThreshold:   cfg.TPPct,
		SLThreshold:   cfg.SLPct,
		MaxHold:       cfg.MaxHold,
		ExitOnTimeout: cfg.ExitOnTimeout,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position manager")
		log.Fatalf("FATAL: Failed to initialize position manager: %v", err)
	}
	appLogger.Info(ctx, "Position manager initialized")

	// 9. Initialize Risk Engine
	riskEngine, err := risk.NewEngine(ctx, risk.EngineConfig{
		Store:  store,
		Trades: repo,
		Logger: appLogger,
		Limits: risk.Limits{
			MaxDailyLoss:       cfg.MaxDailyLoss,
			MaxWeeklyLoss:      cfg.MaxWeeklyLoss,
			MaxPositionSizeUSD: cfg.MaxPositionSizeUSD,
			MaxPositionPct:     cfg.MaxPositionPct,
			MaxOpenPositions:   cfg.MaxOpenPositions,
			MaxDrawdownPct:     cfg.MaxDrawdownPct,
		},
		Quote: risk.QuoteChecks{
			MaxSpread:      cfg.MaxSpread,
			MinDepthUSD:    cfg.MinBandDepth,
			PriceTolerance: cfg.PriceTolerance,
		},
		Kelly: risk.KellySizer{
			Fraction:      cfg.KellyFraction,
			MinSizeUSD:    cfg.MinPositionSizeUSD,
			MaxSizeUSD:    cfg.MaxPositionSizeUSD,
			FixedOrderUSD: cfg.OrderUSD,
		},
		BreakerCooldown:      cfg.BreakerCooldown,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		MaxVenueErrors:       cfg.MaxVenueErrors,
		TradeCooldown:        cfg.TradeCooldown,
		FixedOrderUSD:        cfg.OrderUSD,
		StateKey:             cfg.RiskKey,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk engine")
		log.Fatalf("FATAL: Failed to initialize risk engine: %v", err)
	}
	appLogger.Info(ctx, "Risk engine initialized")

	// 10. Initialize Decision Feed
	feed, err := decisionfeed.New(decisionfeed.Config{
		Store:        store,
		Logger:       appLogger,
		QueueKey:     cfg.DecisionKey,
		WatchlistKey: cfg.WatchlistKey,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize decision feed")
		log.Fatalf("FATAL: Failed to initialize decision feed: %v", err)
	}
	appLogger.Info(ctx, "Decision feed initialized")

	// 11. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, app.Deps{
		Ledger:    ldg,
		Tracker:   trk,
		Positions: posMgr,
		Risk:      riskEngine,
		Quotes:    venue,
		Venue:     venue,
		Decisions: feed,
		Trades:    repo,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 12. Start the API Server
	apiServer, err := api.NewServer(api.Config{
		Addr:    cfg.APIAddr,
		Logger:  appLogger,
		Service: tradingService,
		Ledger:  ldg,
		Tracker: trk,
		Risk:    riskEngine,
		Trades:  repo,
		Mode:    cfg.Mode,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize API server")
		log.Fatalf("FATAL: Failed to initialize API server: %v", err)
	}
	go func() {
		if err := apiServer.Start(); err != nil {
			appLogger.Error(ctx, err, "API server exited with error")
		}
	}()

	// 13. Run the Trading Loop
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "API server shutdown failed")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

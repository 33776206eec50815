package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_history.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_id TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_exit_time ON trade_history (exit_time);
	CREATE INDEX IF NOT EXISTS idx_trade_history_token_exit_time ON trade_history (token_id, exit_time);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("%w: schema creation: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateTrade appends a completed trade and returns its id.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.TradeRecord) (int64, error) {
	if trade == nil {
		return 0, fmt.Errorf("%w: trade record is nil", ports.ErrInvalidRequest)
	}

	const query = `
	INSERT INTO trade_history (token_id, entry_price, exit_price, quantity, pnl, exit_reason, entry_time, exit_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		trade.TokenID,
		trade.EntryPrice,
		trade.ExitPrice,
		trade.Quantity,
		trade.PnL,
		string(trade.ExitReason),
		trade.EntryTime,
		trade.ExitTime,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert trade: %v", ports.ErrQueryFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %v", ports.ErrQueryFailed, err)
	}
	trade.ID = id
	return id, nil
}

// PnLSince sums realized PnL for trades exited at or after the cutoff.
func (r *Repository) PnLSince(ctx context.Context, since time.Time) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trade_history WHERE exit_time >= ?`

	var pnl float64
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("%w: pnl window: %v", ports.ErrQueryFailed, err)
	}
	return pnl, nil
}

// Stats aggregates win/loss statistics over the whole history.
func (r *Repository) Stats(ctx context.Context) (*domain.TradeStats, error) {
	const query = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(CASE WHEN pnl > 0 THEN pnl END), 0),
		COALESCE(AVG(CASE WHEN pnl <= 0 THEN -pnl END), 0)
	FROM trade_history`

	stats := &domain.TradeStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Wins, &stats.AvgWin, &stats.AvgLoss)
	if err != nil {
		return nil, fmt.Errorf("%w: trade stats: %v", ports.ErrQueryFailed, err)
	}

	stats.Losses = stats.Total - stats.Wins
	if stats.Total > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Total)
	}
	return stats, nil
}

// RecentTrades returns up to limit most recent trades, newest first.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
	SELECT id, token_id, entry_price, exit_price, quantity, pnl, exit_reason, entry_time, exit_time
	FROM trade_history ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var trades []*domain.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent trades rows: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.TradeRecord, error) {
	trade := &domain.TradeRecord{}
	var reason string
	err := s.Scan(
		&trade.ID,
		&trade.TokenID,
		&trade.EntryPrice,
		&trade.ExitPrice,
		&trade.Quantity,
		&trade.PnL,
		&reason,
		&trade.EntryTime,
		&trade.ExitTime,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan trade: %v", ports.ErrQueryFailed, err)
	}
	trade.ExitReason = domain.ExitReason(reason)
	return trade, nil
}

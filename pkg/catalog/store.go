// Package catalog provides the PostgreSQL-backed stock catalogue and the
// analysis history: symbol metadata for lookups and one row per finished
// session.
package catalog

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/tickermind/tickermind/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrStockNotFound indicates the symbol is not in the catalogue.
var ErrStockNotFound = errors.New("stock not found")

// StockInfo is one catalogue row.
type StockInfo struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"`
	Sector    string    `json:"sector,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one finished session.
type HistoryEntry struct {
	SessionID string    `json:"session_id"`
	Symbol    string    `json:"symbol"`
	Status    string    `json:"status"`
	Decision  string    `json:"decision,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Store wraps the database connection. Migrations run on open.
type Store struct {
	db  *stdsql.DB
	log *slog.Logger
}

// Open connects, configures the pool, and applies pending migrations.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, log: logger.With("component", "catalog.store")}, nil
}

// runMigrations applies the embedded SQL migrations.
func runMigrations(db *stdsql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "catalog", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	// Close only the source driver; closing m would also close the shared
	// *sql.DB via the database driver.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying pool for health checks.
func (s *Store) DB() *stdsql.DB {
	return s.db
}

// UpsertStock inserts or refreshes one catalogue row.
func (s *Store) UpsertStock(ctx context.Context, info StockInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, name, exchange, sector, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (symbol) DO UPDATE
		SET name = EXCLUDED.name,
		    exchange = EXCLUDED.exchange,
		    sector = EXCLUDED.sector,
		    updated_at = now()`,
		info.Symbol, info.Name, info.Exchange, info.Sector)
	if err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", info.Symbol, err)
	}
	return nil
}

// Lookup returns the catalogue row for one symbol.
func (s *Store) Lookup(ctx context.Context, symbol string) (*StockInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, exchange, COALESCE(sector, ''), updated_at
		FROM stocks WHERE symbol = $1`, symbol)

	var info StockInfo
	if err := row.Scan(&info.Symbol, &info.Name, &info.Exchange, &info.Sector, &info.UpdatedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrStockNotFound, symbol)
		}
		return nil, fmt.Errorf("failed to look up stock %s: %w", symbol, err)
	}
	return &info, nil
}

// Search returns catalogue rows whose symbol or name starts with the query,
// ordered by symbol.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]StockInfo, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, exchange, COALESCE(sector, ''), updated_at
		FROM stocks
		WHERE symbol LIKE $1 || '%' OR name LIKE $1 || '%'
		ORDER BY symbol
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search stocks: %w", err)
	}
	defer rows.Close()

	var out []StockInfo
	for rows.Next() {
		var info StockInfo
		if err := rows.Scan(&info.Symbol, &info.Name, &info.Exchange, &info.Sector, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordSession persists one finished session into the analysis history.
// The decision column carries the final stage's output when present.
func (s *Store) RecordSession(ctx context.Context, snap *models.SessionSnapshot) error {
	if snap.EndedAt == nil {
		return fmt.Errorf("session %s has not ended", snap.ID)
	}

	decision := ""
	for _, rec := range snap.Records {
		if rec.Stage == 4 && rec.Status == models.AgentStatusCompleted {
			decision = rec.Output
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_history (session_id, symbol, status, decision, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING`,
		snap.ID, snap.Symbol, string(snap.Status), decision, snap.CreatedAt, *snap.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", snap.ID, err)
	}
	return nil
}

// Archive stores everything a finished session contributes to the catalog:
// the resolved stock metadata and the history row.
func (s *Store) Archive(ctx context.Context, snap *models.SessionSnapshot) error {
	if snap.Stock != nil {
		info := StockInfo{
			Symbol:   snap.Stock.Symbol,
			Name:     snap.Stock.Name,
			Exchange: exchangeFor(snap.Stock.Symbol),
		}
		if err := s.UpsertStock(ctx, info); err != nil {
			return err
		}
	}
	return s.RecordSession(ctx, snap)
}

// exchangeFor maps a mainland symbol to its exchange code. Shanghai listings
// start with 6 or 9, everything else trades in Shenzhen.
func exchangeFor(symbol string) string {
	if symbol != "" && (symbol[0] == '6' || symbol[0] == '9') {
		return "SSE"
	}
	return "SZSE"
}

// History returns the most recent entries for a symbol (all symbols when
// empty), newest first.
func (s *Store) History(ctx context.Context, symbol string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, symbol, status, decision, created_at, ended_at
		FROM analysis_history
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY ended_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.SessionID, &entry.Symbol, &entry.Status, &entry.Decision, &entry.CreatedAt, &entry.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

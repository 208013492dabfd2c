// Package postgres implements the relational repository over a single
// connection pool. It is the only writer of catalog rows; the queue
// package shares the pool but owns the jobs table.
package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
)

// Manager owns the database handle and the per-entity storages.
type Manager struct {
	db     *sqlx.DB
	logger arbor.ILogger

	navigation *NavigationStorage
	categories *CategoryStorage
	products   *ProductStorage
}

// NewManager opens the connection pool, runs migrations, and wires the
// entity storages.
func NewManager(cfg *common.Config, logger arbor.ILogger) (*Manager, error) {
	db, err := sqlx.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db.DB, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.navigation = NewNavigationStorage(db, logger)
	m.categories = NewCategoryStorage(db, logger)
	m.products = NewProductStorage(db, logger)

	logger.Info().Msg("Database connection established")
	return m, nil
}

// NewManagerWithDB wires the storages over an existing handle. Used by
// tests with sqlmock.
func NewManagerWithDB(db *sqlx.DB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:         db,
		logger:     logger,
		navigation: NewNavigationStorage(db, logger),
		categories: NewCategoryStorage(db, logger),
		products:   NewProductStorage(db, logger),
	}
}

// DB exposes the underlying handle for the queue manager, which shares
// the pool but owns its own table.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

func (m *Manager) Navigation() interfaces.NavigationStorage {
	return m.navigation
}

func (m *Manager) Categories() interfaces.CategoryStorage {
	return m.categories
}

func (m *Manager) Products() interfaces.ProductStorage {
	return m.products
}

// Ping verifies database connectivity for health reporting.
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing database connection")
	return m.db.Close()
}

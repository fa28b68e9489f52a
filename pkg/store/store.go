// Package store is the PostgreSQL persistence layer: weather forecasts,
// power predictions, readings and error metrics.
//
// Writes follow two disciplines. Forecast and prediction rows are write-once:
// conflict-ignore upserts keyed on their natural primary keys, executed by an
// asynchronous batch writer the pipeline does not wait for. Metric rows are
// upserted synchronously inside the metric-calculation flow, so a
// recomputation overwrites the previous value.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds connection pool parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MinConns int
	MaxConns int
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// Store wraps the shared connection pool. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB

	// opTimeout bounds every individual statement.
	opTimeout time.Duration
}

// defaultOpTimeout bounds a single statement; batch writes multiply it out
// per execution, not per row.
const defaultOpTimeout = 10 * time.Second

// Open connects to PostgreSQL, configures the pool and applies embedded
// schema migrations. A failure here is the only unrecoverable startup error
// of the service.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db, opTimeout: defaultOpTimeout}, nil
}

// NewWithDB wraps an existing pool. Used in tests with sqlmock.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, opTimeout: defaultOpTimeout}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity. Used by the health probe.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func runMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"gateway-reconciler/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health(ctx context.Context) map[string]string

	DB() *sql.DB
	Dialect() Dialect

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
}

type service struct {
	db      *sql.DB
	dialect Dialect
	name    string
	maxOpen int
	logger  *zap.Logger
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.Database, logger *zap.Logger) (Service, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	logger.Info("Connected to database",
		zap.String("driver", cfg.Driver),
		zap.String("database", cfg.Name),
	)
	return Wrap(db, Dialect{Driver: cfg.Driver}, cfg.Name, cfg.MaxOpen, logger), nil
}

// Wrap adapts an existing connection pool, e.g. one opened by a test.
func Wrap(db *sql.DB, dialect Dialect, name string, maxOpen int, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{db: db, dialect: dialect, name: name, maxOpen: maxOpen, logger: logger}
}

func (s *service) DB() *sql.DB { return s.db }

func (s *service) Dialect() Dialect { return s.dialect }

// Health pings the database and reports pool statistics.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("Database health check failed", zap.Error(err))
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	switch {
	case s.maxOpen > 0 && dbStats.OpenConnections > s.maxOpen*4/5:
		stats["message"] = "The database is experiencing heavy load."
	case dbStats.WaitCount > 1000:
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}
	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	s.logger.Info("Disconnected from database", zap.String("database", s.name))
	return s.db.Close()
}

package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Beefybananas/mega-scraper/internal/utils"
)

// SQLite pragmas tuned for a single-writer state database.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=NORMAL;
PRAGMA temp_store=MEMORY;
`

type config struct {
	path         string
	pragmas      string
	maxOpenConns int
}

// SqliteOption configures the database connection.
type SqliteOption func(*config)

// WithPath sets the database file path. ":memory:" gives an in-memory db.
func WithPath(path string) SqliteOption {
	return func(c *config) {
		c.path = path
	}
}

// WithPragmas replaces the default pragma block.
func WithPragmas(pragmas string) SqliteOption {
	return func(c *config) {
		c.pragmas = pragmas
	}
}

// WithMaxOpenConns caps the connection pool. Use 1 to serialize writers.
func WithMaxOpenConns(n int) SqliteOption {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// NewSqliteDB opens an SQLite database with the configured options,
// creating the parent directory for file-backed paths.
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	cfg := &config{
		path:    ":memory:",
		pragmas: defaultPragma,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := cfg.path
	if cfg.path != ":memory:" {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	slog.Debug("db open", "driver", driverID, "path", cfg.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.maxOpenConns)
	}

	if _, err := conn.Exec(cfg.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return conn, nil
}

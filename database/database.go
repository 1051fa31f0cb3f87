package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"sptrace/logging"
)

// Config holds database configuration
type Config struct {
	Path              string        `env:"DB_PATH" default:"./sptrace.db"`
	MaxOpenConns      int           `env:"DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns      int           `env:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" default:"1h"`
	BusyTimeoutMs     int           `env:"DB_BUSY_TIMEOUT_MS" default:"5000"`
	EnableForeignKeys bool          `env:"DB_ENABLE_FOREIGN_KEYS" default:"true"`
	EnableWAL         bool          `env:"DB_ENABLE_WAL" default:"true"`
}

// Database wraps the SQL connections and provides managed access. Writes go
// through a single serialized connection: the scan pipeline is sequential
// and checkpoint durability matters more than write throughput.
type Database struct {
	readDB  *sql.DB // connection pool for reads
	writeDB *sql.DB // serialized connection for writes
	config  Config
	logger  *logging.Logger
}

// New creates a new Database instance with separate read/write connections
func New(config Config, logger *logging.Logger) (*Database, error) {
	dsn := buildDSN(config)
	dbExists := checkDatabaseExists(config.Path)

	logger.Database("Opening database connections",
		"path", config.Path,
		"exists", dbExists,
		"read_max_open_conns", config.MaxOpenConns,
		"write_max_open_conns", 1)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(config.MaxOpenConns)
	readDB.SetMaxIdleConns(config.MaxIdleConns)
	readDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		readDB.Close()
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	// Single connection forces write serialization
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	database := &Database{
		readDB:  readDB,
		writeDB: writeDB,
		config:  config,
		logger:  logger,
	}

	if err := database.initialize(); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.runMigrations(); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	logger.Database("Database initialized",
		"path", config.Path,
		"existed", dbExists,
		"wal_mode", config.EnableWAL)

	return database, nil
}

// buildDSN constructs the SQLite Data Source Name with proper parameters
func buildDSN(config Config) string {
	dsn := fmt.Sprintf("file:%s?", config.Path)
	dsn += fmt.Sprintf("_busy_timeout=%d", config.BusyTimeoutMs)

	if config.EnableWAL {
		dsn += "&_journal_mode=WAL"
	}
	if config.EnableForeignKeys {
		dsn += "&_foreign_keys=on"
	}

	dsn += "&_temp_store=memory"
	dsn += "&_synchronous=normal"

	return dsn
}

func checkDatabaseExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// initialize verifies both connections after creation
func (d *Database) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.readDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping read connection: %w", err)
	}
	if err := d.writeDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping write connection: %w", err)
	}
	return nil
}

// Read returns the read connection pool.
func (d *Database) Read() *sql.DB {
	return d.readDB
}

// Write returns the serialized write connection.
func (d *Database) Write() *sql.DB {
	return d.writeDB
}

// WithTx runs fn inside a transaction on the write connection.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Database("Rollback failed", "error", rbErr.Error())
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Health reports basic connection statistics.
func (d *Database) Health() (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.readDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	stats := d.readDB.Stats()
	return map[string]any{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"path":             d.config.Path,
	}, nil
}

// Close closes both database connections
func (d *Database) Close() error {
	var firstErr error
	if err := d.writeDB.Close(); err != nil {
		firstErr = err
	}
	if err := d.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

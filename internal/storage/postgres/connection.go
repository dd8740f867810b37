package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
)

// serializationFailure is the SQLSTATE postgres returns when a serializable tx must be retried
const serializationFailure = "40001"

// maxTxAttempts bounds retries of serializable transactions
const maxTxAttempts = 3

// DB manages the PostgreSQL connection pool
type DB struct {
	conn   *sql.DB
	logger arbor.ILogger
	qb     squirrel.StatementBuilderType
}

// NewDB opens a PostgreSQL connection using the configured credentials
func NewDB(logger arbor.ILogger, config *common.PostgresConfig) (*DB, error) {
	logger.Info().
		Str("host", config.Host).
		Int("port", config.Port).
		Str("database", config.Database).
		Msg("Connecting to PostgreSQL database")

	return open(logger, config.DSN(), config.MaxOpenConns, config.MaxIdleConns)
}

func open(logger arbor.ILogger, dsn string, maxOpen, maxIdle int) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logger,
		qb:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info().Msg("PostgreSQL database initialized")
	return db, nil
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, schemaSQL)
	return err
}

// Conn returns the underlying connection pool
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Serializable runs fn in a serializable transaction, retrying on serialization failures
func (d *DB) Serializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = d.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		d.logger.Debug().Int("attempt", attempt).Msg("Serialization failure, retrying transaction")
	}
	return err
}

func (d *DB) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Warn().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == serializationFailure
}

// Close closes the connection pool
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Package sqlite runs repository work inside SQLite transactions carried by context.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
)

type txKey struct{}

// DB implements port.TransactionManager. Nested WithTransaction calls join the
// outermost transaction, so a case write and its history commit together.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB wraps an open database
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

// WithTransaction runs fn with a transaction in its context. It commits when fn
// returns nil and rolls back on error or panic. A busy or locked database at
// begin or commit is reported as port.ErrVersionConflict.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return classify("begin", err)
	}
	started := time.Now()

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		db.logger.Debug("Transaction rolled back",
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction",
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return classify("commit", err)
	}
	return nil
}

// classify turns SQLITE_BUSY and SQLITE_LOCKED into a version conflict:
// another writer held the database and the caller should re-read and retry.
func classify(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %s: %v", port.ErrVersionConflict, op, err)
	}
	return fmt.Errorf("failed to %s transaction: %w", op, err)
}

// TxFromContext returns the transaction opened by WithTransaction, if any
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFor returns the transaction carried by ctx, or db outside one
func ExecutorFor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)

// internal/common/database/warehouse.go
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"loan-underwriting/internal/common/config"
	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"

	_ "github.com/lib/pq"
)

// Opener opens a new handle to the warehouse.
type Opener func(ctx context.Context) (*sql.DB, error)

// Warehouse holds one logical connection to the SQL warehouse. The connection
// is opened on first use and replaced at most once per operation when the
// server reports a stale session.
type Warehouse struct {
	mu             sync.Mutex
	db             *sql.DB
	open           Opener
	connectTimeout time.Duration
	logger         logger.Logger
}

type WarehouseOption func(*Warehouse)

// WithOpener replaces the lib/pq opener, mainly for tests.
func WithOpener(open Opener) WarehouseOption {
	return func(w *Warehouse) { w.open = open }
}

func WithConnectTimeout(d time.Duration) WarehouseOption {
	return func(w *Warehouse) { w.connectTimeout = d }
}

// NewWarehouse does not connect; the first operation does.
func NewWarehouse(cfg config.WarehouseConfig, log logger.Logger, opts ...WarehouseOption) *Warehouse {
	dsn := cfg.GetDSN()
	w := &Warehouse{
		connectTimeout: config.GetDuration(cfg.ConnectTimeout),
		logger:         log.WithFields(map[string]interface{}{"component": "warehouse"}),
		open: func(ctx context.Context) (*sql.DB, error) {
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return nil, err
			}
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxIdleTime(30 * time.Minute)
			return db, nil
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.connectTimeout <= 0 {
		w.connectTimeout = 10 * time.Second
	}
	return w
}

// Do runs fn against the connection. A stale-session error closes the
// connection, reconnects and runs fn exactly once more.
func (w *Warehouse) Do(ctx context.Context, operation string, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := w.conn(ctx, nil)
	if err != nil {
		return err
	}

	err = fn(ctx, db)
	if err == nil {
		return nil
	}
	if !IsStaleSession(err) {
		return apperrors.NewQueryExecutionFailedError(operation, err)
	}

	w.logger.Warn("session expired, reconnecting", map[string]interface{}{
		"operation": operation,
		"error":     err,
	})

	db, err = w.conn(ctx, db)
	if err != nil {
		return err
	}
	if err := fn(ctx, db); err != nil {
		if IsStaleSession(err) {
			return apperrors.NewStorageUnavailableError(err)
		}
		return apperrors.NewQueryExecutionFailedError(operation, err)
	}
	return nil
}

// Ping establishes the connection if needed and checks it.
func (w *Warehouse) Ping(ctx context.Context) error {
	return w.Do(ctx, "ping", func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	})
}

// Close releases the connection. A later operation reconnects.
func (w *Warehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

// conn returns the shared connection, opening it if absent. When stale is
// the current connection it is closed and replaced; if another caller already
// replaced it, the fresh one is returned.
func (w *Warehouse) conn(ctx context.Context, stale *sql.DB) (*sql.DB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db != nil && w.db != stale {
		return w.db, nil
	}
	if w.db != nil {
		_ = w.db.Close()
		w.db = nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	defer cancel()

	db, err := w.open(connectCtx)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		return nil, apperrors.NewStorageUnavailableError(err)
	}

	w.db = db
	w.logger.Info("warehouse connection established", map[string]interface{}{
		"reconnect": stale != nil,
	})
	return db, nil
}

var staleSessionMarkers = []string{
	"INVALID_STATE",
	"SessionHandle",
	"bad connection",
	"server closed the connection unexpectedly",
}

// IsStaleSession reports whether err means the session must be reopened.
func IsStaleSession(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	for _, marker := range staleSessionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

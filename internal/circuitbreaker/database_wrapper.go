package circuitbreaker

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// DatabaseWrapper guards *sql.DB calls with a circuit breaker. The
// acceptance memory store is append-only plus reads, so only the plain
// query/exec surface is wrapped.
type DatabaseWrapper struct {
	db      *sql.DB
	cb      *Breaker
	name    string
	service string
	logger  *zap.Logger
}

// NewDatabaseWrapper wraps db with a breaker registered for metrics.
func NewDatabaseWrapper(db *sql.DB, name, service string, logger *zap.Logger) *DatabaseWrapper {
	cb := New(name, DatabaseConfig().ToConfig(), logger)
	GlobalMetricsCollector.Register(name, service, cb)
	return &DatabaseWrapper{
		db:      db,
		cb:      cb,
		name:    name,
		service: service,
		logger:  logger,
	}
}

func (dw *DatabaseWrapper) execute(ctx context.Context, fn func() error) error {
	err := dw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(dw.name, dw.service, dw.cb.State(), err == nil)
	return err
}

// PingContext checks connectivity through the breaker.
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})
}

// QueryContext runs a query through the breaker.
func (dw *DatabaseWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := dw.execute(ctx, func() error {
		var err error
		rows, err = dw.db.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// ExecContext runs a statement through the breaker.
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := dw.execute(ctx, func() error {
		var err error
		result, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// Stats returns the pool statistics of the underlying database.
func (dw *DatabaseWrapper) Stats() sql.DBStats {
	return dw.db.Stats()
}

// IsOpen reports whether the breaker currently rejects requests.
func (dw *DatabaseWrapper) IsOpen() bool {
	return dw.cb.State() == StateOpen
}

// DB exposes the underlying handle for sqlx binding and shutdown.
func (dw *DatabaseWrapper) DB() *sql.DB {
	return dw.db
}

// Close closes the underlying database.
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

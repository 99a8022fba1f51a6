package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"gitea.jw6.us/james/bookingcal/internal/metrics"
)

// PgxPool is the subset of pgxpool.Pool used by the store, so tests can
// supply a lightweight mock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store aggregates the booking repositories backed by PostgreSQL.
type Store struct {
	pool PgxPool

	Bookings     BookingRepository
	Options      OptionRepository
	SessionDates SessionDateRepository
	Users        UserRepository
}

// New wires concrete repository implementations with a shared connection pool.
func New(pool PgxPool) *Store {
	return &Store{
		pool:         pool,
		Bookings:     &bookingRepo{pool: pool},
		Options:      &optionRepo{pool: pool},
		SessionDates: &sessionDateRepo{pool: pool},
		Users:        &userRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}

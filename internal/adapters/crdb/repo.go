package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

const (
	SerializationFailureCode = "40001"

	// serializationRetries bounds how often WithTx re-runs a transaction
	// aborted with 40001. One retry is normally enough: once the winning
	// writer has committed, the re-run's own reads report the conflict
	// through the domain error taxonomy instead.
	serializationRetries = 5
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a SERIALIZABLE transaction. CockroachDB aborts
// one of two conflicting transactions with code 40001; WithTx retries
// those aborts so that the re-run observes the winner's committed state
// and fails with the proper domain error (NumbersUnavailableError,
// ErrAlreadyDrawn) rather than a bare serialization failure. fn must
// therefore be safe to re-run from scratch. Only a loser that exhausts
// every retry still under contention sees ErrSerializationFailure.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		err = r.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return mapSerializationFailure(err)
	}
	// Commit itself can lose the serialization race; map it the same way
	// so the retry loop catches it.
	return mapSerializationFailure(tx.Commit(ctx))
}

func mapSerializationFailure(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return domain.ErrSerializationFailure
	}
	return err
}

const raffleColumns = `id, owner_id, max_tickets, ticket_price, sold_tickets, is_active, end_date, winner_id`

func scanRaffle(row pgx.Row) (*domain.Raffle, error) {
	var raffle domain.Raffle
	var winnerID uuid.NullUUID
	err := row.Scan(
		&raffle.ID,
		&raffle.OwnerID,
		&raffle.MaxTickets,
		&raffle.TicketPrice,
		&raffle.SoldTickets,
		&raffle.IsActive,
		&raffle.EndDate,
		&winnerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if winnerID.Valid {
		raffle.WinnerID = &winnerID.UUID
	}
	return &raffle, nil
}

func (r *Repository) GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	return scanRaffle(r.pool.QueryRow(ctx, `
		SELECT `+raffleColumns+` FROM raffles WHERE id = $1
	`, raffleID))
}

func (r *Repository) CreateRaffle(ctx context.Context, raffle *domain.Raffle) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO raffles (id, owner_id, max_tickets, ticket_price, sold_tickets, is_active, end_date)
		VALUES ($1, $2, $3, $4, 0, true, $5)
	`, raffle.ID, raffle.OwnerID, raffle.MaxTickets, raffle.TicketPrice, raffle.EndDate)
	return errors.Wrap(err, "insert raffle")
}

// ListActiveRaffleIDs feeds the expiry sweeper. Raffles closed by a draw
// drop out; raffles past their end date stay until their reservations
// have all settled.
func (r *Repository) ListActiveRaffleIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM raffles WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

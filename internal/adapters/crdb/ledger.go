package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rifalabs/raffle-engine/internal/domain"
)

// Allocate claims every requested number for the buyer, or none of them.
// The ticket inserts and the sold_tickets bump commit as one unit; a
// partial outcome is never observable.
func (r *Repository) Allocate(ctx context.Context, alloc domain.Allocation) (*domain.AllocationResult, error) {
	var result *domain.AllocationResult
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		result, err = r.allocate(ctx, tx, alloc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) allocate(ctx context.Context, tx pgx.Tx, alloc domain.Allocation) (*domain.AllocationResult, error) {
	// Re-validate availability inside the same transaction as the
	// insert. Display reads are not trusted here: a read-validate-write
	// split is exactly the race that oversells raffles.
	rows, err := tx.Query(ctx, `
		SELECT number FROM tickets
		WHERE raffle_id = $1 AND number = ANY($2) AND status != $3
		ORDER BY number
	`, alloc.RaffleID, alloc.Numbers, string(domain.TicketRefunded))
	if err != nil {
		return nil, err
	}
	var conflicting []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		conflicting = append(conflicting, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(conflicting) > 0 {
		return nil, &domain.NumbersUnavailableError{Conflicting: conflicting}
	}

	ids := make([]uuid.UUID, 0, len(alloc.Numbers))
	for _, number := range alloc.Numbers {
		id := uuid.New()
		ct, err := tx.Exec(ctx, `
			INSERT INTO tickets (id, raffle_id, number, owner_id, status, purchased_at, buyer_document, buyer_phone)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (raffle_id, number) WHERE status != 'REFUNDED' DO NOTHING
		`, id, alloc.RaffleID, number, alloc.BuyerID, string(alloc.Status), alloc.PurchasedAt,
			alloc.Contact.Document, alloc.Contact.Phone)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			// lost the race between our scan and this insert
			return nil, &domain.NumbersUnavailableError{Conflicting: []int{number}}
		}
		ids = append(ids, id)
	}

	// The counter moves with the inserts or not at all. The guard on
	// max_tickets backstops the service-level capacity check.
	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE raffles SET sold_tickets = sold_tickets + $2
		WHERE id = $1 AND sold_tickets + $2 <= max_tickets
		RETURNING max_tickets - sold_tickets
	`, alloc.RaffleID, len(alloc.Numbers)).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		available, aerr := r.availableTx(ctx, tx, alloc.RaffleID)
		if aerr != nil {
			return nil, aerr
		}
		return nil, &domain.InsufficientCapacityError{Available: available, Requested: len(alloc.Numbers)}
	}
	if err != nil {
		return nil, err
	}

	// The purchase notification rides the allocation commit; the outbox
	// publisher delivers it after the fact.
	payload, err := json.Marshal(map[string]interface{}{
		"raffle_id": alloc.RaffleID,
		"buyer_id":  alloc.BuyerID,
		"numbers":   alloc.Numbers,
		"status":    string(alloc.Status),
	})
	if err != nil {
		return nil, err
	}
	err = r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "raffle",
		AggregateID:   alloc.RaffleID,
		EventType:     "raffle.purchase.completed",
		Payload:       payload,
		DedupeKey:     ids[0].String(),
	})
	if err != nil {
		return nil, err
	}

	return &domain.AllocationResult{TicketIDs: ids, TicketsRemaining: remaining}, nil
}

func (r *Repository) availableTx(ctx context.Context, tx pgx.Tx, raffleID uuid.UUID) (int, error) {
	var available int
	err := tx.QueryRow(ctx, `
		SELECT max_tickets - sold_tickets FROM raffles WHERE id = $1
	`, raffleID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return available, err
}

// ListSoldNumbers is a display read. It must not be used as the sole
// check before an allocation; Allocate re-validates under its own
// transaction.
func (r *Repository) ListSoldNumbers(ctx context.Context, raffleID uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT number FROM tickets
		WHERE raffle_id = $1 AND status != $2
		ORDER BY number
	`, raffleID, string(domain.TicketRefunded))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// ReleaseExpiredReservations refunds RESERVED tickets purchased at or
// before olderThan and gives their numbers back to the pool. Idempotent;
// redundant calls release nothing and succeed.
func (r *Repository) ReleaseExpiredReservations(ctx context.Context, raffleID uuid.UUID, olderThan time.Time) (int, error) {
	var released int
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE tickets SET status = $3
			WHERE raffle_id = $1 AND status = $4 AND purchased_at <= $2
		`, raffleID, olderThan, string(domain.TicketRefunded), string(domain.TicketReserved))
		if err != nil {
			return err
		}
		released = int(ct.RowsAffected())
		if released == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE raffles SET sold_tickets = sold_tickets - $2 WHERE id = $1
		`, raffleID, released)
		return err
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ConfirmReserved flips every RESERVED ticket the buyer holds on the
// raffle to SOLD. The numbers were already counted when reserved, so the
// raffle counter does not move.
func (r *Repository) ConfirmReserved(ctx context.Context, raffleID, buyerID uuid.UUID) (int, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE tickets SET status = $3
		WHERE raffle_id = $1 AND owner_id = $2 AND status = $4
	`, raffleID, buyerID, string(domain.TicketSold), string(domain.TicketReserved))
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

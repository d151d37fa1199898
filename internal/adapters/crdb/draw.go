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

// RunDraw reads the eligible tickets, lets pick choose the winners and
// commits the whole draw as one unit. The compare-and-set on winner_id
// linearizes concurrent draw attempts: exactly one commits, the rest see
// ErrAlreadyDrawn.
func (r *Repository) RunDraw(ctx context.Context, raffleID uuid.UUID, drawnAt time.Time, pick domain.WinnerPicker) (*domain.DrawResult, error) {
	var result *domain.DrawResult
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		eligible, err := listEligibleTickets(ctx, tx, raffleID)
		if err != nil {
			return err
		}

		winners, err := pick(eligible)
		if err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE raffles SET winner_id = $2, is_active = false
			WHERE id = $1 AND winner_id IS NULL
		`, raffleID, winners[0].BuyerID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrAlreadyDrawn
		}

		result = &domain.DrawResult{
			RaffleID:          raffleID,
			DrawnAt:           drawnAt,
			Winners:           winners,
			TotalParticipants: len(eligible),
			DrawNumber:        domain.NewDrawNumber(drawnAt),
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO draws (raffle_id, drawn_at, total_participants, draw_number)
			VALUES ($1, $2, $3, $4)
		`, raffleID, drawnAt, len(eligible), result.DrawNumber)
		if err != nil {
			return err
		}

		for _, w := range winners {
			ct, err := tx.Exec(ctx, `
				UPDATE tickets SET status = $2 WHERE id = $1 AND status = $3
			`, w.TicketID, string(domain.TicketWinner), string(domain.TicketSold))
			if err != nil {
				return err
			}
			if ct.RowsAffected() == 0 {
				// the picked ticket changed under us; abort the whole draw
				return errors.Newf("winner ticket %s no longer eligible", w.TicketID)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO draw_winners (raffle_id, position, ticket_id, ticket_number, buyer_id)
				VALUES ($1, $2, $3, $4, $5)
			`, raffleID, w.Position, w.TicketID, w.TicketNumber, w.BuyerID)
			if err != nil {
				return err
			}
		}

		// The notification payload rides the same commit; delivery is
		// the outbox publisher's job, never this transaction's.
		payload, err := json.Marshal(map[string]interface{}{
			"raffle_id":          raffleID,
			"winner_id":          winners[0].BuyerID,
			"winning_number":     winners[0].TicketNumber,
			"total_participants": len(eligible),
			"draw_number":        result.DrawNumber,
		})
		if err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "raffle",
			AggregateID:   raffleID,
			EventType:     "raffle.draw.completed",
			Payload:       payload,
			DedupeKey:     result.DrawNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func listEligibleTickets(ctx context.Context, tx pgx.Tx, raffleID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, number, owner_id FROM tickets
		WHERE raffle_id = $1 AND status = $2
		ORDER BY number
	`, raffleID, string(domain.TicketSold))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t := domain.Ticket{RaffleID: raffleID, Status: domain.TicketSold}
		if err := rows.Scan(&t.ID, &t.Number, &t.OwnerID); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// GetDrawResult replays the committed draw for dispute resolution.
// Returns domain.ErrNoDraw when the raffle has not been drawn.
func (r *Repository) GetDrawResult(ctx context.Context, raffleID uuid.UUID) (*domain.DrawResult, error) {
	result := &domain.DrawResult{RaffleID: raffleID}
	err := r.pool.QueryRow(ctx, `
		SELECT drawn_at, total_participants, draw_number
		FROM draws WHERE raffle_id = $1
	`, raffleID).Scan(&result.DrawnAt, &result.TotalParticipants, &result.DrawNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoDraw
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT position, ticket_id, ticket_number, buyer_id
		FROM draw_winners WHERE raffle_id = $1
		ORDER BY position
	`, raffleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var w domain.DrawWinner
		if err := rows.Scan(&w.Position, &w.TicketID, &w.TicketNumber, &w.BuyerID); err != nil {
			return nil, err
		}
		result.Winners = append(result.Winners, w)
	}
	return result, rows.Err()
}

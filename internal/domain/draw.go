package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DrawWinner is one winning position in a committed draw. Position 1 is
// the winner recorded on the raffle itself.
type DrawWinner struct {
	Position     int
	TicketID     uuid.UUID
	TicketNumber int
	BuyerID      uuid.UUID
}

// DrawResult is the append-only audit record of a raffle's draw. Once
// committed it never changes and must be retrievable for dispute
// resolution.
type DrawResult struct {
	RaffleID          uuid.UUID
	DrawnAt           time.Time
	Winners           []DrawWinner
	TotalParticipants int
	DrawNumber        string
}

// NewDrawNumber is the human-readable receipt id printed on draw results.
// Not a security token.
func NewDrawNumber(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

// WinnerPicker selects winners from the eligible tickets. Implementations
// must be pure so the store can run them inside the draw transaction.
type WinnerPicker func(eligible []Ticket) ([]DrawWinner, error)

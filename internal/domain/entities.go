package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the closed set of ticket lifecycle states. REFUNDED is
// terminal and frees the ticket's number; every other status keeps the
// number claimed.
type TicketStatus string

const (
	TicketReserved TicketStatus = "RESERVED"
	TicketSold     TicketStatus = "SOLD"
	TicketWinner   TicketStatus = "WINNER"
	TicketRefunded TicketStatus = "REFUNDED"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketReserved, TicketSold, TicketWinner, TicketRefunded:
		return true
	}
	return false
}

// CanTransitionTo encodes the only legal status moves:
// RESERVED→SOLD (payment confirmed), RESERVED→REFUNDED (expiry),
// SOLD→WINNER (draw), SOLD→REFUNDED (refund).
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	switch s {
	case TicketReserved:
		return next == TicketSold || next == TicketRefunded
	case TicketSold:
		return next == TicketWinner || next == TicketRefunded
	}
	return false
}

// Claimed reports whether the status holds its number against other buyers.
func (s TicketStatus) Claimed() bool {
	return s != TicketRefunded
}

type Raffle struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	MaxTickets  int
	TicketPrice float64
	SoldTickets int
	IsActive    bool
	EndDate     time.Time
	WinnerID    *uuid.UUID
}

// Open reports whether the raffle still accepts purchases. Passing the
// end date closes the raffle for buyers without requiring a write.
func (r *Raffle) Open(now time.Time) bool {
	return r.IsActive && now.Before(r.EndDate)
}

// Available is the number of tickets not yet claimed.
func (r *Raffle) Available() int {
	return r.MaxTickets - r.SoldTickets
}

// ContactSnapshot is the buyer's contact data frozen at purchase time.
// It is copied onto each ticket and never updated afterwards, even if
// the buyer later edits their profile.
type ContactSnapshot struct {
	Document string
	Phone    string
}

type Ticket struct {
	ID            uuid.UUID
	RaffleID      uuid.UUID
	Number        int
	OwnerID       uuid.UUID
	Status        TicketStatus
	PurchasedAt   time.Time
	BuyerDocument string
	BuyerPhone    string
}

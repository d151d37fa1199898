package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod tags how the buyer intends to pay. Instant methods
// produce SOLD tickets immediately; deferred methods produce RESERVED
// tickets that hold their numbers until confirmed or expired.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// Deferred reports whether payment settles out of band.
func (m PaymentMethod) Deferred() bool {
	return m == PaymentBankTransfer
}

// InitialStatus is the status tickets are created with for this method.
func (m PaymentMethod) InitialStatus() TicketStatus {
	if m.Deferred() {
		return TicketReserved
	}
	return TicketSold
}

type PurchaseReceipt struct {
	PurchasedNumbers []int
	TotalCost        float64
	TransactionID    string
	TicketsRemaining int
}

// NewPurchaseReceipt builds the receipt for a committed allocation.
// Numbers are reported sorted ascending regardless of request order.
func NewPurchaseReceipt(numbers []int, price float64, buyerID uuid.UUID, remaining int, at time.Time) PurchaseReceipt {
	sorted := make([]int, len(numbers))
	copy(sorted, numbers)
	sort.Ints(sorted)
	return PurchaseReceipt{
		PurchasedNumbers: sorted,
		TotalCost:        float64(len(numbers)) * price,
		TransactionID:    NewTransactionID(buyerID, at),
		TicketsRemaining: remaining,
	}
}

// NewTransactionID produces the opaque receipt token. It only needs to be
// unique and traceable, not unpredictable. The random suffix keeps two
// purchases by the same buyer in the same millisecond distinct.
func NewTransactionID(buyerID uuid.UUID, at time.Time) string {
	short := strings.ReplaceAll(buyerID.String(), "-", "")[:8]
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("tx_%d_%s_%s", at.UnixMilli(), short, nonce)
}

// Allocation is one atomic claim of ticket numbers for a buyer. Either
// every number is inserted and the raffle counter moves with it, or
// nothing is.
type Allocation struct {
	RaffleID    uuid.UUID
	BuyerID     uuid.UUID
	Numbers     []int
	Status      TicketStatus
	Contact     ContactSnapshot
	PurchasedAt time.Time
}

type AllocationResult struct {
	TicketIDs        []uuid.UUID
	TicketsRemaining int
}

package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		allowed  bool
	}{
		{TicketReserved, TicketSold, true},
		{TicketReserved, TicketRefunded, true},
		{TicketReserved, TicketWinner, false},
		{TicketSold, TicketWinner, true},
		{TicketSold, TicketRefunded, true},
		{TicketSold, TicketReserved, false},
		{TicketWinner, TicketRefunded, false},
		{TicketWinner, TicketSold, false},
		{TicketRefunded, TicketReserved, false},
		{TicketRefunded, TicketSold, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTicketStatusClaimed(t *testing.T) {
	assert.True(t, TicketReserved.Claimed())
	assert.True(t, TicketSold.Claimed())
	assert.True(t, TicketWinner.Claimed())
	assert.False(t, TicketRefunded.Claimed())
}

func TestRaffleOpen(t *testing.T) {
	now := time.Now()
	r := &Raffle{IsActive: true, EndDate: now.Add(time.Hour)}
	assert.True(t, r.Open(now))

	r.IsActive = false
	assert.False(t, r.Open(now))

	r.IsActive = true
	assert.False(t, r.Open(now.Add(2*time.Hour)), "past end date closes purchases without a write")
}

func TestPaymentMethodInitialStatus(t *testing.T) {
	assert.Equal(t, TicketSold, PaymentCard.InitialStatus())
	assert.Equal(t, TicketSold, PaymentCash.InitialStatus())
	assert.Equal(t, TicketReserved, PaymentBankTransfer.InitialStatus())

	assert.False(t, PaymentCard.Deferred())
	assert.True(t, PaymentBankTransfer.Deferred())
}

func TestNewPurchaseReceipt(t *testing.T) {
	buyerID := uuid.New()
	at := time.UnixMilli(1718000000000)

	receipt := NewPurchaseReceipt([]int{47, 5, 23}, 10.5, buyerID, 97, at)

	assert.Equal(t, []int{5, 23, 47}, receipt.PurchasedNumbers, "receipt reports numbers sorted")
	assert.InDelta(t, 31.5, receipt.TotalCost, 1e-9)
	assert.Equal(t, 97, receipt.TicketsRemaining)

	short := buyerID.String()[:8]
	assert.True(t, strings.HasPrefix(receipt.TransactionID, "tx_1718000000000_"+short+"_"), receipt.TransactionID)
}

func TestNewTransactionIDUnique(t *testing.T) {
	buyerID := uuid.New()
	at := time.UnixMilli(1718000000000)

	// Same buyer, same millisecond: the tokens must still differ.
	first := NewTransactionID(buyerID, at)
	second := NewTransactionID(buyerID, at)
	require.NotEqual(t, first, second)
}

func TestNewDrawNumber(t *testing.T) {
	at := time.UnixMilli(1718000000123)
	assert.Equal(t, "1718000000123", NewDrawNumber(at))
}

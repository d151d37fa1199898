package allocation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger mirrors the real repository's guarantees in memory: one
// live claim per number, counter moves with the rows, all under a lock
// so concurrent tests exercise the same exclusion the database gives.
type fakeLedger struct {
	mu      sync.Mutex
	raffles map[uuid.UUID]*domain.Raffle
	tickets map[uuid.UUID][]domain.Ticket
}

func newFakeLedger(raffles ...*domain.Raffle) *fakeLedger {
	l := &fakeLedger{
		raffles: make(map[uuid.UUID]*domain.Raffle),
		tickets: make(map[uuid.UUID][]domain.Ticket),
	}
	for _, r := range raffles {
		l.raffles[r.ID] = r
	}
	return l
}

func (l *fakeLedger) GetRaffle(_ context.Context, raffleID uuid.UUID) (*domain.Raffle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.raffles[raffleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (l *fakeLedger) Allocate(_ context.Context, alloc domain.Allocation) (*domain.AllocationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.raffles[alloc.RaffleID]

	var conflicting []int
	for _, n := range alloc.Numbers {
		for _, t := range l.tickets[alloc.RaffleID] {
			if t.Number == n && t.Status.Claimed() {
				conflicting = append(conflicting, n)
				break
			}
		}
	}
	if len(conflicting) > 0 {
		return nil, &domain.NumbersUnavailableError{Conflicting: conflicting}
	}
	if r.SoldTickets+len(alloc.Numbers) > r.MaxTickets {
		return nil, &domain.InsufficientCapacityError{
			Available: r.MaxTickets - r.SoldTickets,
			Requested: len(alloc.Numbers),
		}
	}

	result := &domain.AllocationResult{}
	for _, n := range alloc.Numbers {
		t := domain.Ticket{
			ID:          uuid.New(),
			RaffleID:    alloc.RaffleID,
			Number:      n,
			OwnerID:     alloc.BuyerID,
			Status:      alloc.Status,
			PurchasedAt: alloc.PurchasedAt,
		}
		l.tickets[alloc.RaffleID] = append(l.tickets[alloc.RaffleID], t)
		result.TicketIDs = append(result.TicketIDs, t.ID)
	}
	r.SoldTickets += len(alloc.Numbers)
	result.TicketsRemaining = r.MaxTickets - r.SoldTickets
	return result, nil
}

func (l *fakeLedger) ListSoldNumbers(_ context.Context, raffleID uuid.UUID) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var numbers []int
	for _, t := range l.tickets[raffleID] {
		if t.Status.Claimed() {
			numbers = append(numbers, t.Number)
		}
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (l *fakeLedger) ReleaseExpiredReservations(_ context.Context, raffleID uuid.UUID, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	released := 0
	for i, t := range l.tickets[raffleID] {
		if t.Status == domain.TicketReserved && t.PurchasedAt.Before(olderThan) {
			l.tickets[raffleID][i].Status = domain.TicketRefunded
			released++
		}
	}
	l.raffles[raffleID].SoldTickets -= released
	return released, nil
}

func (l *fakeLedger) ConfirmReserved(_ context.Context, raffleID, buyerID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	confirmed := 0
	for i, t := range l.tickets[raffleID] {
		if t.OwnerID == buyerID && t.Status == domain.TicketReserved {
			l.tickets[raffleID][i].Status = domain.TicketSold
			confirmed++
		}
	}
	return confirmed, nil
}

func newTestService(ledger Ledger) *Service {
	return NewService(ledger, nil, nil, Config{
		MaxNumbersPerPurchase: 1000,
		ReservationTTL:        24 * time.Hour,
		SoldNumbersCacheTTL:   5 * time.Second,
	}, observability.NewLogger())
}

func activeRaffle(maxTickets int) *domain.Raffle {
	return &domain.Raffle{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		MaxTickets:  maxTickets,
		TicketPrice: 10,
		IsActive:    true,
		EndDate:     time.Now().Add(24 * time.Hour),
	}
}

func TestPurchaseHappyPath(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)
	buyer := uuid.New()

	receipt, err := svc.Purchase(context.Background(), raffle.ID, buyer, []int{5, 23, 47}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err)

	assert.Equal(t, []int{5, 23, 47}, receipt.PurchasedNumbers)
	assert.InDelta(t, 30, receipt.TotalCost, 1e-9)
	assert.Equal(t, 97, receipt.TicketsRemaining)
	assert.NotEmpty(t, receipt.TransactionID)
}

func TestPurchaseConflictReportsAllContestedNumbers(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	_, err := svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{23}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{5, 23, 47}, domain.PaymentCard, domain.ContactSnapshot{})
	var unavailable *domain.NumbersUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int{23}, unavailable.Conflicting)

	// Nothing from the failed request leaked into the pool.
	sold, err := ledger.ListSoldNumbers(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{23}, sold)
}

func TestPurchasePreconditionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown raffle", func(t *testing.T) {
		svc := newTestService(newFakeLedger())
		_, err := svc.Purchase(ctx, uuid.New(), uuid.New(), []int{1}, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("closed raffle wins over self purchase", func(t *testing.T) {
		raffle := activeRaffle(10)
		raffle.IsActive = false
		svc := newTestService(newFakeLedger(raffle))
		_, err := svc.Purchase(ctx, raffle.ID, raffle.OwnerID, []int{1}, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrRaffleClosed)
	})

	t.Run("expired raffle", func(t *testing.T) {
		raffle := activeRaffle(10)
		raffle.EndDate = time.Now().Add(-time.Minute)
		svc := newTestService(newFakeLedger(raffle))
		_, err := svc.Purchase(ctx, raffle.ID, uuid.New(), []int{1}, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrRaffleClosed)
	})

	t.Run("self purchase", func(t *testing.T) {
		raffle := activeRaffle(10)
		svc := newTestService(newFakeLedger(raffle))
		_, err := svc.Purchase(ctx, raffle.ID, raffle.OwnerID, []int{1}, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrSelfPurchaseForbidden)
	})

	t.Run("empty request", func(t *testing.T) {
		raffle := activeRaffle(10)
		svc := newTestService(newFakeLedger(raffle))
		_, err := svc.Purchase(ctx, raffle.ID, uuid.New(), nil, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrNoNumbers)
	})

	t.Run("out of range and duplicates", func(t *testing.T) {
		raffle := activeRaffle(10)
		svc := newTestService(newFakeLedger(raffle))
		_, err := svc.Purchase(ctx, raffle.ID, uuid.New(), []int{0, 3, 3, 11}, domain.PaymentCard, domain.ContactSnapshot{})
		var invalid *domain.InvalidNumbersError
		require.ErrorAs(t, err, &invalid)
		assert.ElementsMatch(t, []int{0, 3, 11}, invalid.Offending)
	})

	t.Run("request cap", func(t *testing.T) {
		raffle := activeRaffle(5000)
		svc := NewService(newFakeLedger(raffle), nil, nil, Config{
			MaxNumbersPerPurchase: 2,
			ReservationTTL:        24 * time.Hour,
		}, observability.NewLogger())
		_, err := svc.Purchase(ctx, raffle.ID, uuid.New(), []int{1, 2, 3}, domain.PaymentCard, domain.ContactSnapshot{})
		assert.ErrorIs(t, err, domain.ErrRequestTooLarge)
	})
}

func TestPurchaseInsufficientCapacity(t *testing.T) {
	raffle := activeRaffle(5)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	_, err := svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{1, 2, 3, 4}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{5}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{1}, domain.PaymentCard, domain.ContactSnapshot{})
	var insufficient *domain.InsufficientCapacityError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, insufficient.Available)
}

func TestPurchaseConcurrentSameNumber(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	const buyers = 16
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{42}, domain.PaymentCard, domain.ContactSnapshot{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var unavailable *domain.NumbersUnavailableError
		assert.ErrorAs(t, err, &unavailable)
	}
	assert.Equal(t, 1, succeeded, "exactly one buyer gets the number")

	sold, err := ledger.ListSoldNumbers(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, sold, "no duplicate rows for the contested number")
}

func TestPurchaseRetriesAfterExpiredReservation(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	holder := uuid.New()
	_, err := svc.Purchase(context.Background(), raffle.ID, holder, []int{7}, domain.PaymentBankTransfer, domain.ContactSnapshot{})
	require.NoError(t, err)

	// Age the reservation past the window.
	ledger.mu.Lock()
	ledger.tickets[raffle.ID][0].PurchasedAt = time.Now().Add(-48 * time.Hour)
	ledger.mu.Unlock()

	receipt, err := svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{7}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err, "expired hold is released and the number reallocated")
	assert.Equal(t, []int{7}, receipt.PurchasedNumbers)
}

func TestPurchaseFreshReservationBlocks(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	_, err := svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{7}, domain.PaymentBankTransfer, domain.ContactSnapshot{})
	require.NoError(t, err)

	_, err = svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{7}, domain.PaymentCard, domain.ContactSnapshot{})
	var unavailable *domain.NumbersUnavailableError
	require.ErrorAs(t, err, &unavailable, "a live reservation holds its number")
}

func TestConfirmPayment(t *testing.T) {
	raffle := activeRaffle(100)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)
	buyer := uuid.New()

	_, err := svc.Purchase(context.Background(), raffle.ID, buyer, []int{1, 2}, domain.PaymentBankTransfer, domain.ContactSnapshot{})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(context.Background(), raffle.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, 2, confirmed)

	// Second confirm has nothing left to settle.
	_, err = svc.ConfirmPayment(context.Background(), raffle.ID, buyer)
	assert.ErrorIs(t, err, domain.ErrNothingToConfirm)
}

func TestListSoldNumbers(t *testing.T) {
	raffle := activeRaffle(10)
	ledger := newFakeLedger(raffle)
	svc := newTestService(ledger)

	_, err := svc.Purchase(context.Background(), raffle.ID, uuid.New(), []int{9, 2}, domain.PaymentCard, domain.ContactSnapshot{})
	require.NoError(t, err)

	avail, err := svc.ListSoldNumbers(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 9}, avail.SoldNumbers)
	assert.Equal(t, 2, avail.TotalSold)
	assert.Equal(t, 10, avail.MaxTickets)
	assert.Equal(t, 8, avail.Available)
}

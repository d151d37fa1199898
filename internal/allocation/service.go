package allocation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

// Ledger is the durable, uniqueness-enforcing ticket store. Allocate is
// a single atomic unit: rows and counter together, all or nothing.
type Ledger interface {
	GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error)
	Allocate(ctx context.Context, alloc domain.Allocation) (*domain.AllocationResult, error)
	ListSoldNumbers(ctx context.Context, raffleID uuid.UUID) ([]int, error)
	ReleaseExpiredReservations(ctx context.Context, raffleID uuid.UUID, olderThan time.Time) (int, error)
	ConfirmReserved(ctx context.Context, raffleID, buyerID uuid.UUID) (int, error)
}

// Cache serves display reads only. Nil disables caching.
type Cache interface {
	GetSoldNumbers(ctx context.Context, raffleID string) ([]int, bool, error)
	SetSoldNumbers(ctx context.Context, raffleID string, numbers []int, ttl time.Duration) error
	InvalidateSoldNumbers(ctx context.Context, raffleID string) error
}

// Auditor records committed purchases. Nil disables auditing; failures
// are the auditor's to log, never the purchase's to inherit.
type Auditor interface {
	LogPurchase(ctx context.Context, raffleID, buyerID uuid.UUID, receipt domain.PurchaseReceipt, status domain.TicketStatus) error
}

type Config struct {
	MaxNumbersPerPurchase int
	ReservationTTL        time.Duration
	SoldNumbersCacheTTL   time.Duration
}

type Service struct {
	ledger Ledger
	cache  Cache
	audit  Auditor
	cfg    Config
	logger observability.Logger
	now    func() time.Time
}

func NewService(ledger Ledger, cache Cache, audit Auditor, cfg Config, logger observability.Logger) *Service {
	return &Service{
		ledger: ledger,
		cache:  cache,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Availability is the display view of a raffle's number pool.
type Availability struct {
	SoldNumbers []int
	TotalSold   int
	MaxTickets  int
	Available   int
}

// Purchase validates and commits a ticket allocation. Precondition order
// is fixed: closed raffle, self purchase, invalid numbers, capacity,
// then the ledger's own conflict check — first failure wins.
func (s *Service) Purchase(ctx context.Context, raffleID, buyerID uuid.UUID, numbers []int, method domain.PaymentMethod, contact domain.ContactSnapshot) (*domain.PurchaseReceipt, error) {
	raffle, err := s.ledger.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !raffle.Open(now) {
		return nil, domain.ErrRaffleClosed
	}
	if buyerID == raffle.OwnerID {
		return nil, domain.ErrSelfPurchaseForbidden
	}
	if err := s.validateNumbers(numbers, raffle.MaxTickets); err != nil {
		return nil, err
	}
	if len(numbers) > raffle.Available() {
		return nil, &domain.InsufficientCapacityError{Available: raffle.Available(), Requested: len(numbers)}
	}

	alloc := domain.Allocation{
		RaffleID:    raffleID,
		BuyerID:     buyerID,
		Numbers:     numbers,
		Status:      method.InitialStatus(),
		Contact:     contact,
		PurchasedAt: now,
	}

	result, err := s.ledger.Allocate(ctx, alloc)
	var unavailable *domain.NumbersUnavailableError
	if errors.As(err, &unavailable) {
		observability.AllocationConflicts.Inc()
		// An abandoned reservation may be squatting on a requested
		// number. Release anything past the window and retry once.
		released, rerr := s.ledger.ReleaseExpiredReservations(ctx, raffleID, now.Add(-s.cfg.ReservationTTL))
		if rerr != nil {
			s.logger.WithError(rerr).Warn("failed to release expired reservations")
			return nil, err
		}
		if released == 0 {
			return nil, err
		}
		observability.ReservationsReleased.Add(float64(released))
		result, err = s.ledger.Allocate(ctx, alloc)
	}
	if err != nil {
		return nil, err
	}

	observability.TicketsAllocated.WithLabelValues(string(alloc.Status)).Add(float64(len(numbers)))

	receipt := domain.NewPurchaseReceipt(numbers, raffle.TicketPrice, buyerID, result.TicketsRemaining, now)

	// Post-commit side effects. None of these can unwind the purchase.
	s.invalidateCache(ctx, raffleID)
	if s.audit != nil {
		_ = s.audit.LogPurchase(ctx, raffleID, buyerID, receipt, alloc.Status)
	}

	return &receipt, nil
}

// ConfirmPayment settles every RESERVED ticket the buyer holds on the
// raffle. Confirming when nothing is reserved is reported as
// ErrNothingToConfirm, a recoverable condition.
func (s *Service) ConfirmPayment(ctx context.Context, raffleID, buyerID uuid.UUID) (int, error) {
	if _, err := s.ledger.GetRaffle(ctx, raffleID); err != nil {
		return 0, err
	}
	confirmed, err := s.ledger.ConfirmReserved(ctx, raffleID, buyerID)
	if err != nil {
		return 0, err
	}
	if confirmed == 0 {
		return 0, domain.ErrNothingToConfirm
	}
	return confirmed, nil
}

// ListSoldNumbers serves availability for display. Reads may come from
// the cache and lag the ledger slightly; allocation never trusts them.
func (s *Service) ListSoldNumbers(ctx context.Context, raffleID uuid.UUID) (*Availability, error) {
	raffle, err := s.ledger.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	var numbers []int
	cached := false
	if s.cache != nil {
		var cerr error
		numbers, cached, cerr = s.cache.GetSoldNumbers(ctx, raffleID.String())
		if cerr != nil {
			s.logger.WithError(cerr).Warn("sold-numbers cache read failed")
			cached = false
		}
	}
	if !cached {
		numbers, err = s.ledger.ListSoldNumbers(ctx, raffleID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if cerr := s.cache.SetSoldNumbers(ctx, raffleID.String(), numbers, s.cfg.SoldNumbersCacheTTL); cerr != nil {
				s.logger.WithError(cerr).Warn("sold-numbers cache write failed")
			}
		}
	}

	return &Availability{
		SoldNumbers: numbers,
		TotalSold:   len(numbers),
		MaxTickets:  raffle.MaxTickets,
		Available:   raffle.MaxTickets - len(numbers),
	}, nil
}

func (s *Service) validateNumbers(numbers []int, maxTickets int) error {
	if len(numbers) == 0 {
		return domain.ErrNoNumbers
	}
	if len(numbers) > s.cfg.MaxNumbersPerPurchase {
		return domain.ErrRequestTooLarge
	}

	seen := make(map[int]bool, len(numbers))
	var offending []int
	for _, n := range numbers {
		if n < 1 || n > maxTickets || seen[n] {
			offending = append(offending, n)
		}
		seen[n] = true
	}
	if len(offending) > 0 {
		return &domain.InvalidNumbersError{Offending: offending}
	}
	return nil
}

func (s *Service) invalidateCache(ctx context.Context, raffleID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSoldNumbers(ctx, raffleID.String()); err != nil {
		s.logger.WithError(err).Warn("sold-numbers cache invalidation failed")
	}
}

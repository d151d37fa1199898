package draw

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

// Store runs the draw transaction. RunDraw must call pick inside the
// same atomic unit that commits the winners, and must linearize
// concurrent draws so exactly one succeeds.
type Store interface {
	GetRaffle(ctx context.Context, raffleID uuid.UUID) (*domain.Raffle, error)
	RunDraw(ctx context.Context, raffleID uuid.UUID, drawnAt time.Time, pick domain.WinnerPicker) (*domain.DrawResult, error)
	GetDrawResult(ctx context.Context, raffleID uuid.UUID) (*domain.DrawResult, error)
}

// Auditor records committed draws, best-effort.
type Auditor interface {
	LogDraw(ctx context.Context, requesterID uuid.UUID, result domain.DrawResult) error
}

type Config struct {
	// WinnerCount is how many positions a draw fills. 1 is the
	// single-winner policy; 3 reproduces the podium mode.
	WinnerCount int
	// MinParticipants is the smallest eligible-ticket count a draw
	// will run with.
	MinParticipants int
}

type Service struct {
	store  Store
	audit  Auditor
	cfg    Config
	logger observability.Logger
	intn   func(n int) (int, error)
	now    func() time.Time
}

func NewService(store Store, audit Auditor, cfg Config, logger observability.Logger) *Service {
	return &Service{
		store:  store,
		audit:  audit,
		cfg:    cfg,
		logger: logger,
		intn:   cryptoIntn,
		now:    time.Now,
	}
}

// Draw selects and commits the raffle's winners. Only the owner may
// draw, a raffle is drawn at most once, and RESERVED tickets never win:
// unpaid holds are not participants.
func (s *Service) Draw(ctx context.Context, raffleID, requesterID uuid.UUID) (*domain.DrawResult, error) {
	raffle, err := s.store.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if requesterID != raffle.OwnerID {
		return nil, domain.ErrForbidden
	}
	if raffle.WinnerID != nil {
		return nil, domain.ErrAlreadyDrawn
	}

	result, err := s.store.RunDraw(ctx, raffleID, s.now().UTC(), s.pickWinners)
	if err != nil {
		return nil, err
	}

	observability.DrawsCommitted.Inc()
	s.logger.WithField("raffle_id", raffleID).
		WithField("draw_number", result.DrawNumber).
		WithField("participants", result.TotalParticipants).
		Info("draw committed")

	if s.audit != nil {
		_ = s.audit.LogDraw(ctx, requesterID, *result)
	}

	return result, nil
}

func (s *Service) pickWinners(eligible []domain.Ticket) ([]domain.DrawWinner, error) {
	if len(eligible) == 0 || len(eligible) < s.cfg.MinParticipants {
		return nil, domain.ErrInsufficientParticipants
	}

	shuffled := make([]domain.Ticket, len(eligible))
	copy(shuffled, eligible)
	if err := shuffleTickets(shuffled, s.intn); err != nil {
		return nil, err
	}

	count := s.cfg.WinnerCount
	if count > len(shuffled) {
		count = len(shuffled)
	}
	winners := make([]domain.DrawWinner, 0, count)
	for i := 0; i < count; i++ {
		winners = append(winners, domain.DrawWinner{
			Position:     i + 1,
			TicketID:     shuffled[i].ID,
			TicketNumber: shuffled[i].Number,
			BuyerID:      shuffled[i].OwnerID,
		})
	}
	return winners, nil
}

// GetDrawResult replays a committed draw for the owner. Returns
// domain.ErrNoDraw before any draw has happened.
func (s *Service) GetDrawResult(ctx context.Context, raffleID, requesterID uuid.UUID) (*domain.DrawResult, error) {
	raffle, err := s.store.GetRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if requesterID != raffle.OwnerID {
		return nil, domain.ErrForbidden
	}
	return s.store.GetDrawResult(ctx, raffleID)
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/rifalabs/raffle-engine/internal/adapters/mongo"
	"github.com/rifalabs/raffle-engine/internal/allocation"
	"github.com/rifalabs/raffle-engine/internal/config"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/draw"
	"github.com/rifalabs/raffle-engine/internal/idempotency"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

// RaffleCreator is the slice of the ledger repository the handlers use
// directly. Everything else goes through the services.
type RaffleCreator interface {
	CreateRaffle(ctx context.Context, raffle *domain.Raffle) error
}

type Handlers struct {
	cfg       *config.Config
	allocator *allocation.Service
	drawer    *draw.Service
	raffles   RaffleCreator
	catalog   *mongoadapter.CatalogRepository
	idemp     *idempotency.Idempotency
	logger    observability.Logger
}

func NewHandlers(cfg *config.Config, allocator *allocation.Service, drawer *draw.Service, raffles RaffleCreator, catalog *mongoadapter.CatalogRepository, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		allocator: allocator,
		drawer:    drawer,
		raffles:   raffles,
		catalog:   catalog,
		idemp:     idemp,
		logger:    logger,
	}
}

func (h *Handlers) CreateRaffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID     uuid.UUID `json:"owner_id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Prize       string    `json:"prize"`
		ImageURL    string    `json:"image_url"`
		MaxTickets  int       `json:"max_tickets"`
		TicketPrice float64   `json:"ticket_price"`
		EndDate     time.Time `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.MaxTickets < 1 || req.MaxTickets > 10000 {
		http.Error(w, "max_tickets must be between 1 and 10000", http.StatusBadRequest)
		return
	}
	if req.TicketPrice <= 0 {
		http.Error(w, "ticket_price must be greater than 0", http.StatusBadRequest)
		return
	}
	if req.EndDate.Before(time.Now().Add(time.Hour)) {
		http.Error(w, "end_date must be at least 1 hour from now", http.StatusBadRequest)
		return
	}

	raffle := &domain.Raffle{
		ID:          uuid.New(),
		OwnerID:     req.OwnerID,
		MaxTickets:  req.MaxTickets,
		TicketPrice: req.TicketPrice,
		IsActive:    true,
		EndDate:     req.EndDate,
	}
	if err := h.raffles.CreateRaffle(r.Context(), raffle); err != nil {
		h.writeError(w, r, err)
		return
	}

	// Metadata lives with the catalog collaborator; the engine never
	// decides anything from it, so a failure here only degrades display.
	if h.catalog != nil {
		doc := mongoadapter.RaffleDoc{
			ID:          raffle.ID,
			Title:       req.Title,
			Description: req.Description,
			Prize:       req.Prize,
			ImageURL:    req.ImageURL,
		}
		if err := h.catalog.CreateRaffle(r.Context(), doc); err != nil {
			requestLogger(r.Context(), h.logger).WithError(err).Warn("raffle metadata write failed")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"raffle_id":   raffle.ID,
		"max_tickets": raffle.MaxTickets,
		"end_date":    raffle.EndDate.Format(time.RFC3339),
	})
}

func (h *Handlers) PurchaseTickets(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	} else if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	raffleID, ok := parseRaffleID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID        uuid.UUID `json:"user_id"`
		Numbers       []int     `json:"numbers"`
		PaymentMethod string    `json:"payment_method"`
		BuyerDocument string    `json:"buyer_document"`
		BuyerPhone    string    `json:"buyer_phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method := domain.PaymentMethod(req.PaymentMethod)
	if req.PaymentMethod == "" {
		method = domain.PaymentCard
	}
	contact := domain.ContactSnapshot{Document: req.BuyerDocument, Phone: req.BuyerPhone}

	receipt, err := h.allocator.Purchase(r.Context(), raffleID, req.UserID, req.Numbers, method, contact)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	data, _ := json.Marshal(map[string]interface{}{
		"purchased_numbers": receipt.PurchasedNumbers,
		"total_cost":        receipt.TotalCost,
		"transaction_id":    receipt.TransactionID,
		"tickets_remaining": receipt.TicketsRemaining,
		"reserved":          method.Deferred(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data}); err != nil {
		requestLogger(r.Context(), h.logger).WithError(err).Warn("idempotency store failed")
	}
}

func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := parseRaffleID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	confirmed, err := h.allocator.ConfirmPayment(r.Context(), raffleID, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"confirmed": confirmed,
	})
}

func (h *Handlers) ListSoldNumbers(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := parseRaffleID(w, r)
	if !ok {
		return
	}

	availability, err := h.allocator.ListSoldNumbers(r.Context(), raffleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"raffle_id":    raffleID,
		"sold_numbers": availability.SoldNumbers,
		"total_sold":   availability.TotalSold,
		"max_tickets":  availability.MaxTickets,
		"available":    availability.Available,
	})
}

func (h *Handlers) DrawWinners(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := parseRaffleID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.drawer.Draw(r.Context(), raffleID, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, drawResultBody(result))
}

func (h *Handlers) GetDrawResult(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := parseRaffleID(w, r)
	if !ok {
		return
	}

	requesterID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	result, err := h.drawer.GetDrawResult(r.Context(), raffleID, requesterID)
	if errors.Is(err, domain.ErrNoDraw) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"raffle_id":  raffleID,
			"has_winner": false,
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body := drawResultBody(result)
	body["has_winner"] = true
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func drawResultBody(result *domain.DrawResult) map[string]interface{} {
	winners := make([]map[string]interface{}, 0, len(result.Winners))
	for _, win := range result.Winners {
		winners = append(winners, map[string]interface{}{
			"position":      win.Position,
			"ticket_number": win.TicketNumber,
			"buyer_id":      win.BuyerID,
		})
	}
	return map[string]interface{}{
		"raffle_id":          result.RaffleID,
		"draw_date":          result.DrawnAt.Format(time.RFC3339),
		"draw_number":        result.DrawNumber,
		"total_participants": result.TotalParticipants,
		"winners":            winners,
	}
}

func parseRaffleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid raffle id", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's error taxonomy onto HTTP. Conflict errors
// carry their number sets so clients can re-offer the remainder of a
// request.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.InvalidNumbersError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":     invalid.Error(),
			"offending": invalid.Offending,
		})
		return
	}
	var unavailable *domain.NumbersUnavailableError
	if errors.As(err, &unavailable) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":       unavailable.Error(),
			"conflicting": unavailable.Conflicting,
		})
		return
	}
	var capacity *domain.InsufficientCapacityError
	if errors.As(err, &capacity) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     capacity.Error(),
			"available": capacity.Available,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "raffle not found"})
	case errors.Is(err, domain.ErrNoNumbers),
		errors.Is(err, domain.ErrRequestTooLarge),
		errors.Is(err, domain.ErrRaffleClosed),
		errors.Is(err, domain.ErrSelfPurchaseForbidden),
		errors.Is(err, domain.ErrInsufficientParticipants):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyDrawn),
		errors.Is(err, domain.ErrNothingToConfirm):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, domain.ErrSerializationFailure):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "conflict, try again"})
	default:
		requestLogger(r.Context(), h.logger).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal server error"})
	}
}

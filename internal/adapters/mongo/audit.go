package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rifalabs/raffle-engine/internal/domain"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends purchase and draw events for dispute resolution.
// Every write is best-effort: a failure here never rolls back the
// committed ledger state.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   uuid.UUID `bson:"actor_id"`
	RaffleID  uuid.UUID `bson:"raffle_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, actorID, raffleID uuid.UUID, data map[string]interface{}) error {
	entry := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   actorID,
		RaffleID:  raffleID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, entry)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogPurchase(ctx context.Context, raffleID, buyerID uuid.UUID, receipt domain.PurchaseReceipt, status domain.TicketStatus) error {
	data := map[string]interface{}{
		"numbers":           receipt.PurchasedNumbers,
		"total_cost":        receipt.TotalCost,
		"transaction_id":    receipt.TransactionID,
		"tickets_remaining": receipt.TicketsRemaining,
		"status":            string(status),
	}
	return a.LogEvent(ctx, "ticket.purchased", buyerID, raffleID, data)
}

func (a *AuditLogger) LogDraw(ctx context.Context, requesterID uuid.UUID, result domain.DrawResult) error {
	winners := make([]bson.M, 0, len(result.Winners))
	for _, w := range result.Winners {
		winners = append(winners, bson.M{
			"position":      w.Position,
			"ticket_number": w.TicketNumber,
			"buyer_id":      w.BuyerID,
		})
	}
	data := map[string]interface{}{
		"draw_number":        result.DrawNumber,
		"total_participants": result.TotalParticipants,
		"winners":            winners,
	}
	return a.LogEvent(ctx, "raffle.drawn", requesterID, result.RaffleID, data)
}

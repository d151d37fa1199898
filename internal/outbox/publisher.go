package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rifalabs/raffle-engine/internal/adapters/crdb"
	"github.com/rifalabs/raffle-engine/internal/adapters/rabbit"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

const (
	pollInterval = time.Second
	batchSize    = 100
)

// Publisher drains NEW outbox records to the broker. It runs as its own
// process so broker outages never back-pressure the API: records pile up
// in the outbox and the lag gauge climbs instead.
type Publisher struct {
	repo   *crdb.Repository
	broker *rabbit.Publisher
	logger observability.Logger
}

func NewPublisher(repo *crdb.Repository, broker *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, broker: broker, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.WithError(err).Error("outbox drain failed")
			}
			p.reportLag(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	records, err := p.repo.GetUnpublishedOutbox(ctx, batchSize)
	if err != nil {
		return err
	}

	for _, rec := range records {
		msg := amqp.Publishing{
			ContentType: "application/json",
			MessageId:   rec.ID.String(),
			Timestamp:   rec.CreatedAt,
			Body:        rec.Payload,
			Headers:     amqp.Table{"dedupe_key": rec.DedupeKey},
		}
		if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
			// Leave the record NEW; the next tick retries it.
			p.logger.WithError(err).
				WithField("event_type", rec.EventType).
				Warn("publish failed, will retry")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			// At-least-once: an unmarked published record is re-sent
			// and consumers dedupe on the key.
			p.logger.WithError(err).Warn("mark published failed")
			continue
		}
		p.logger.WithField("event_type", rec.EventType).
			WithField("aggregate_id", rec.AggregateID).
			Info("event published")
	}
	return nil
}

func (p *Publisher) reportLag(ctx context.Context) {
	age, err := p.repo.OldestUnpublishedAge(ctx, time.Now().UTC())
	if err != nil {
		return
	}
	observability.OutboxLag.Set(age.Seconds())
}

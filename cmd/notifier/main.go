package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rifalabs/raffle-engine/internal/adapters/rabbit"
	"github.com/rifalabs/raffle-engine/internal/config"
	"github.com/rifalabs/raffle-engine/internal/observability"
)

const seenTTL = 48 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "notifier.q", "raffle.#")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	n := &Notifier{redis: redisClient, logger: logger}
	go n.Run(ctx, deliveries)
	logger.Info("Notifier started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notifier")
}

// Notifier turns raffle events into buyer-facing notifications. Delivery
// is at-least-once, so replays are screened out on the dedupe key. A
// failed send is logged and dropped: nothing upstream depends on it.
type Notifier struct {
	redis  *redisclient.Client
	logger observability.Logger
}

func (n *Notifier) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			n.handle(ctx, d)
			_ = d.Ack(false)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, d amqp.Delivery) {
	if key, _ := d.Headers["dedupe_key"].(string); key != "" {
		fresh, err := n.redis.SetNX(ctx, "notified:"+key, 1, seenTTL).Result()
		if err == nil && !fresh {
			return
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		n.logger.WithError(err).Warn("undecodable event dropped")
		return
	}

	entry := n.logger.WithField("event_type", d.RoutingKey)
	switch d.RoutingKey {
	case "raffle.draw.completed":
		entry.WithField("raffle_id", payload["raffle_id"]).
			WithField("winner_id", payload["winner_id"]).
			WithField("winning_number", payload["winning_number"]).
			Info("winner notification sent")
	case "raffle.purchase.completed":
		entry.WithField("raffle_id", payload["raffle_id"]).
			WithField("buyer_id", payload["buyer_id"]).
			Info("purchase notification sent")
	case "raffle.reservation.expired":
		entry.WithField("raffle_id", payload["raffle_id"]).
			Info("expiry notification sent")
	default:
		entry.Info("event observed")
	}
}

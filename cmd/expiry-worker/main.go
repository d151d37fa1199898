package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rifalabs/raffle-engine/internal/adapters/crdb"
	"github.com/rifalabs/raffle-engine/internal/adapters/rabbit"
	redisadapter "github.com/rifalabs/raffle-engine/internal/adapters/redis"
	"github.com/rifalabs/raffle-engine/internal/config"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"golang.org/x/sync/errgroup"
)

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

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	worker := NewExpiryWorker(repo, cache, rabbitPub, cfg.ReservationTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

// ExpiryWorker sweeps RESERVED tickets past the reservation window back
// to the pool. The sweep is a safety net: the allocation path also
// releases lazily on conflict, so a stalled worker only delays reuse.
type ExpiryWorker struct {
	repo   *crdb.Repository
	cache  *redisadapter.Cache
	broker *rabbit.Publisher
	ttl    time.Duration
	logger observability.Logger
}

func NewExpiryWorker(repo *crdb.Repository, cache *redisadapter.Cache, broker *rabbit.Publisher, ttl time.Duration, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{repo: repo, cache: cache, broker: broker, ttl: ttl, logger: logger}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.sweep(ctx, now.UTC()); err != nil {
				w.logger.WithError(err).Error("expiry sweep failed")
			}
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context, now time.Time) error {
	raffleIDs, err := w.repo.ListActiveRaffleIDs(ctx)
	if err != nil {
		return err
	}

	cutoff := now.Add(-w.ttl)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, raffleID := range raffleIDs {
		raffleID := raffleID
		g.Go(func() error {
			released, err := w.repo.ReleaseExpiredReservations(ctx, raffleID, cutoff)
			if err != nil {
				w.logger.WithError(err).WithField("raffle_id", raffleID).Error("release failed")
				return nil
			}
			if released == 0 {
				return nil
			}
			observability.ReservationsReleased.Add(float64(released))
			w.logger.WithField("raffle_id", raffleID).
				WithField("released", released).
				Info("expired reservations released")

			if err := w.cache.InvalidateSoldNumbers(ctx, raffleID.String()); err != nil {
				w.logger.WithError(err).Warn("cache invalidation failed")
			}
			w.announce(ctx, raffleID, released)
			return nil
		})
	}
	return g.Wait()
}

// announce is best-effort: the release already committed, and numbers
// returning to the pool is visible through the ledger regardless.
func (w *ExpiryWorker) announce(ctx context.Context, raffleID uuid.UUID, released int) {
	body, _ := json.Marshal(map[string]interface{}{
		"raffle_id": raffleID,
		"released":  released,
	})
	msg := amqp.Publishing{ContentType: "application/json", Body: body}
	if err := w.broker.Publish(ctx, "raffle.reservation.expired", msg); err != nil {
		w.logger.WithError(err).Warn("expiry event publish failed")
	}
}

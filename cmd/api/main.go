package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rifalabs/raffle-engine/internal/adapters/crdb"
	mongoadapter "github.com/rifalabs/raffle-engine/internal/adapters/mongo"
	"github.com/rifalabs/raffle-engine/internal/adapters/rabbit"
	redisadapter "github.com/rifalabs/raffle-engine/internal/adapters/redis"
	"github.com/rifalabs/raffle-engine/internal/allocation"
	"github.com/rifalabs/raffle-engine/internal/config"
	"github.com/rifalabs/raffle-engine/internal/draw"
	httphandler "github.com/rifalabs/raffle-engine/internal/http"
	"github.com/rifalabs/raffle-engine/internal/idempotency"
	"github.com/rifalabs/raffle-engine/internal/observability"
	"github.com/rifalabs/raffle-engine/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("raffle")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditor := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	if _, err := rabbit.NewPublisher(rabbitConn); err != nil {
		// The API only stages outbox rows; declaring the exchange here
		// just surfaces broker misconfiguration at startup.
		log.Fatalf("failed to declare exchange: %v", err)
	}

	allocator := allocation.NewService(repo, cache, auditor, allocation.Config{
		MaxNumbersPerPurchase: cfg.MaxNumbersPerPurchase,
		ReservationTTL:        cfg.ReservationTTL,
		SoldNumbersCacheTTL:   cfg.SoldNumbersCacheTTL,
	}, logger)
	drawer := draw.NewService(repo, auditor, draw.Config{
		WinnerCount:     cfg.DrawWinnerCount,
		MinParticipants: cfg.DrawMinParticipants,
	}, logger)

	handlers := httphandler.NewHandlers(cfg, allocator, drawer, repo, catalog, idemp, logger)
	r := httphandler.NewRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("api listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr   string
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// ReservationTTL is how long a RESERVED ticket holds its number
	// before it can be released back to the pool. Business policy, not
	// engine law.
	ReservationTTL time.Duration

	// DrawWinnerCount and DrawMinParticipants configure the draw. The
	// defaults are single-winner with a minimum of one sold ticket;
	// the 3-winner/3-minimum mode is reachable without code changes.
	DrawWinnerCount     int
	DrawMinParticipants int

	// MaxNumbersPerPurchase caps a single allocation request.
	MaxNumbersPerPurchase int

	SoldNumbersCacheTTL time.Duration
	IdempotencyTTL      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:   getString("LISTEN_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		ReservationTTL:        getDuration("RESERVATION_TTL", 24*time.Hour),
		DrawWinnerCount:       getInt("DRAW_WINNER_COUNT", 1),
		DrawMinParticipants:   getInt("DRAW_MIN_PARTICIPANTS", 1),
		MaxNumbersPerPurchase: getInt("MAX_NUMBERS_PER_PURCHASE", 1000),
		SoldNumbersCacheTTL:   getDuration("SOLD_NUMBERS_CACHE_TTL", 5*time.Second),
		IdempotencyTTL:        getDuration("IDEMPOTENCY_TTL", time.Hour),
	}, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightres/api"
	"github.com/Domenick1991/flightres/config"
	"github.com/Domenick1991/flightres/internal/bootstrap"
	"github.com/Domenick1991/flightres/internal/cache"
	"github.com/Domenick1991/flightres/internal/kafka"
	"github.com/Domenick1991/flightres/internal/repository"
	"github.com/Domenick1991/flightres/internal/service/search"
	"github.com/Domenick1991/flightres/internal/service/trip"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Search.CacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	userRepo := repository.NewUserRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)

	searchService := search.NewSearchService(catalogRepo, redisCache)
	engine := trip.NewEngine(
		userRepo,
		reservationRepo,
		searchService,
		producer,
		cfg.Kafka.ReservationsTopic,
		trip.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		trip.WithRetryPolicy(cfg.Booking.MaxAttempts, time.Duration(cfg.Booking.RetryBackoffMS)*time.Millisecond),
	)

	router := api.NewRouter(api.NewTripHandler(engine))

	if err := bootstrap.Run(ctx, cfg, router); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

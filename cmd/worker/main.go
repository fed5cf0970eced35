package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"istory-server/internal/config"
	"istory-server/internal/messaging"
	"istory-server/internal/oracle"
	"istory-server/internal/repository"
	"istory-server/internal/worker"
	"istory-server/pkg/database"
	"istory-server/pkg/logger"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(false)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	cfg.LogSummary(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()

	db, err := database.New(connectCtx, database.Config{
		DSN:         cfg.GetDSN(),
		MaxConns:    int32(cfg.DBMaxConns),
		IdleTimeout: cfg.DBIdleTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		log.Warn("Redis unavailable, reconciler will skip cache population", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()

	verificationRepo := repository.NewPgVerificationRepository(db.Pool, log)

	ledger := oracle.NewHTTPLedgerClient(oracle.LedgerConfig{
		BaseURL: cfg.LedgerBaseURL,
		APIKey:  cfg.LedgerAPIKey,
		Timeout: cfg.LedgerTimeout,
	}, log)
	reader := oracle.NewReader(ledger, verificationRepo, redisClient, cfg.MetricsCacheTTL, log)

	consumer := messaging.NewJobConsumer(mqConn, worker.NewHandler(ledger, log), log)
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start job consumer", zap.Error(err))
	}

	reconciler := worker.NewReconciler(verificationRepo, reader, cfg.ReconcileInterval, cfg.PendingTTL, log)
	go reconciler.Run(ctx)

	log.Info("Verification worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down worker...")

	cancel()
	select {
	case <-consumer.Done():
	case <-time.After(5 * time.Second):
		log.Warn("Job consumer did not stop in time")
	}
	log.Info("Worker exiting")
}

func connectRabbitMQ(url string, log *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			log.Info("Connected to RabbitMQ")
			return conn, nil
		}
		log.Warn("RabbitMQ connection failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
}

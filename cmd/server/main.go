package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sokopay/api/internal/adapters/events"
	eventskafka "github.com/sokopay/api/internal/adapters/events/kafka"
	"github.com/sokopay/api/internal/adapters/gateway/daraja"
	"github.com/sokopay/api/internal/adapters/handler/http"
	repo "github.com/sokopay/api/internal/adapters/repository/postgres"
	"github.com/sokopay/api/internal/config"
	"github.com/sokopay/api/internal/core/ports"
	"github.com/sokopay/api/internal/core/services"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.MigrationDSN())
	if err != nil {
		logger.Fatal("failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	userRepo := repo.NewUserRepository(db)
	paymentRepo := repo.NewPaymentRepository(db)

	var publisher ports.EventPublisher = events.NewNoopPublisher()
	if cfg.KafkaEnabled() {
		publisher = eventskafka.NewPublisher(cfg.KafkaBrokers(), cfg.Kafka.PaymentEventsTopic,
			logger.With(zap.String("component", "KafkaPublisher")))
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers()))
	}
	defer publisher.Close()

	gateway := daraja.NewClient(cfg, logger.With(zap.String("component", "DarajaClient")))

	tokenSvc := services.NewTokenService(cfg)
	authSvc := services.NewAuthService(userRepo, tokenSvc, cfg,
		logger.With(zap.String("component", "AuthService")))
	paymentSvc := services.NewPaymentService(paymentRepo, userRepo, gateway, publisher,
		logger.With(zap.String("component", "PaymentService")))

	authHandler := http.NewAuthHandler(authSvc)
	paymentHandler := http.NewPaymentHandler(paymentSvc, logger.With(zap.String("component", "PaymentHandler")))
	handler := http.NewHandler(authHandler, paymentHandler, tokenSvc)

	server := &stdhttp.Server{Addr: cfg.HTTPAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
}

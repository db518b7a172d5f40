package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"negotiations/internal/app/catalog"
	"negotiations/internal/app/negotiations"
	"negotiations/internal/app/pricing"
	"negotiations/internal/config"
	kafka_handler "negotiations/internal/handler/kafka"
	"negotiations/internal/infrastructure/database"
	kafka_infra "negotiations/internal/infrastructure/kafka"
	"negotiations/internal/outbox"
	"negotiations/internal/repository/negotiation_repo"
	memory_negotiation_repo "negotiations/internal/repository/negotiation_repo/memory"
	postgres_negotiation_repo "negotiations/internal/repository/negotiation_repo/postgres"
	"negotiations/internal/repository/outbox_repo"
	memory_outbox_repo "negotiations/internal/repository/outbox_repo/memory"
	postgres_outbox_repo "negotiations/internal/repository/outbox_repo/postgres"
	"negotiations/internal/repository/product_repo"
	memory_product_repo "negotiations/internal/repository/product_repo/memory"
	postgres_product_repo "negotiations/internal/repository/product_repo/postgres"
	"negotiations/internal/router"
)

type repositories struct {
	negotiations negotiation_repo.NegotiationRepository
	outbox       outbox_repo.OutboxRepository
	products     product_repo.ProductRepository
	close        func()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Negotiation Service starting...", zap.String("storage_driver", cfg.StorageDriver))

	repos, err := openRepositories(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialise storage", zap.Error(err))
	}
	defer repos.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogService := catalog.NewCatalogService(repos.products, appLogger.With(zap.String("component", "CatalogService")))
	if cfg.ProductsSeedPath != "" {
		if err := loadProductSeed(ctx, catalogService, cfg.ProductsSeedPath); err != nil {
			appLogger.Fatal("Failed to load product seed", zap.String("path", cfg.ProductsSeedPath), zap.Error(err))
		}
	} else if !cfg.EventsEnabled {
		appLogger.Warn("Events disabled and PRODUCTS_SEED_PATH not set, the product catalog stays empty")
	}

	eventsTopic := ""
	if cfg.EventsEnabled {
		eventsTopic = cfg.KafkaNegotiationEventsTopic
	}

	negotiationService := negotiations.NewNegotiationService(
		repos.negotiations,
		repos.products,
		eventsTopic,
		appLogger.With(zap.String("component", "NegotiationService")),
	)
	pricingService := pricing.NewPricingService(
		repos.negotiations,
		repos.products,
		appLogger.With(zap.String("component", "PricingService")),
	)

	server := &http.Server{
		Addr: cfg.GetHTTPAddr(),
		Handler: router.NewRouter(
			router.Options{AllowedOrigins: cfg.CORSAllowedOrigins},
			negotiationService,
			pricingService,
			appLogger,
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EventsEnabled {
		brokers := cfg.GetKafkaBrokers()
		topicsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka_infra.EnsureTopics(topicsCtx, brokers, []string{cfg.KafkaNegotiationEventsTopic, cfg.KafkaProductEventsTopic}, appLogger); err != nil {
			appLogger.Warn("Failed to ensure Kafka topics", zap.Error(err))
		}
		cancel()

		kafkaProducer := kafka_infra.NewProducer(brokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() { _ = kafkaProducer.Close() }()

		processor := outbox.NewProcessor(
			repos.outbox,
			kafkaProducer,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			cfg.OutboxBatchSize,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
		g.Go(func() error { return processor.Start(gctx) })

		productHandler := kafka_handler.NewProductEventConsumer(catalogService, appLogger.With(zap.String("component", "ProductEventConsumer")))
		consumer := kafka_infra.NewConsumer(
			brokers,
			cfg.KafkaProductEventsTopic,
			cfg.KafkaConsumerGroup,
			productHandler.HandleMessage,
			appLogger.With(zap.String("component", "KafkaConsumer")),
		)
		g.Go(func() error { return consumer.Consume(gctx) })
		g.Go(func() error {
			<-gctx.Done()
			return consumer.Close()
		})
	} else {
		appLogger.Info("Events disabled, Kafka producer and consumer are not started.")
	}

	g.Go(func() error {
		appLogger.Info("Negotiation Service listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down Negotiation Service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Negotiation Service stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Negotiation Service stopped.")
}

func openRepositories(cfg *config.Config, l *zap.Logger) (*repositories, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		l.Warn("Using in-memory storage; data is lost on restart")
		outboxRepo := memory_outbox_repo.NewOutboxRepository()
		return &repositories{
			negotiations: memory_negotiation_repo.NewNegotiationRepository(outboxRepo, l.With(zap.String("component", "NegotiationRepository"))),
			outbox:       outboxRepo,
			products:     memory_product_repo.NewProductRepository(),
			close:        func() {},
		}, nil
	}

	db, err := connectWithRetry(cfg, l)
	if err != nil {
		return nil, err
	}

	l.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	l.Info("Database migrations completed successfully (or no new migrations).")

	return &repositories{
		negotiations: postgres_negotiation_repo.NewNegotiationRepository(db, l.With(zap.String("component", "NegotiationRepository"))),
		outbox:       postgres_outbox_repo.NewOutboxRepository(db, l.With(zap.String("component", "OutboxRepository"))),
		products:     postgres_product_repo.NewProductRepository(db, l.With(zap.String("component", "ProductRepository"))),
		close: func() {
			if err := db.Close(); err != nil {
				l.Error("Error closing database connection", zap.Error(err))
			} else {
				l.Info("Database connection closed.")
			}
		},
	}, nil
}

func loadProductSeed(ctx context.Context, s catalog.CatalogService, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open product seed: %w", err)
	}
	defer f.Close()

	_, err = s.LoadSeed(ctx, f)
	return err
}

func connectWithRetry(cfg *config.Config, l *zap.Logger) (*sql.DB, error) {
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	const maxRetries = 10
	retryDelay := 5 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := database.NewPostgresDB(dbConfig)
		if err == nil {
			l.Info("Successfully connected to PostgreSQL database!")
			return db, nil
		}
		lastErr = err
		l.Warn(fmt.Sprintf("Failed to connect to database (attempt %d/%d): %v. Retrying in %s...", i+1, maxRetries, err, retryDelay))
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, lastErr)
}

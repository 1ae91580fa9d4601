package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wix-store-migrator/internal/application"
	"wix-store-migrator/internal/application/pipelines"
	"wix-store-migrator/internal/infrastructure/api"
	"wix-store-migrator/internal/infrastructure/cache"
	"wix-store-migrator/internal/infrastructure/config"
	"wix-store-migrator/internal/infrastructure/logging"
	"wix-store-migrator/internal/infrastructure/metrics"
	"wix-store-migrator/internal/infrastructure/migration"
	"wix-store-migrator/internal/infrastructure/pubsub"
	"wix-store-migrator/internal/infrastructure/repository"
	"wix-store-migrator/internal/infrastructure/wix"
	"wix-store-migrator/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, envLoaded, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if !envLoaded {
		logger.Warn().Msg(".env file not found, using environment only")
	}
	zerolog.SetGlobalLevel(logging.Level(cfg.LogLevel))

	ctx := context.Background()

	// Repositories
	var (
		ledger ports.LedgerStore
		stores ports.StoreRepository
		runs   ports.RunRepository
	)
	if cfg.LedgerDriver == config.LedgerMemory {
		logger.Warn().Msg("Using in-memory storage, the ledger is lost on restart")
		ledger = repository.NewMemoryLedgerStore()
		stores = repository.NewMemoryStoreRepository()
		runs = repository.NewMemoryRunRepository()
	} else {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())

		db := client.Database(cfg.MongoDatabase)
		stores = repository.NewMongoStoreRepository(db)
		runs = repository.NewMongoRunRepository(db)

		if cfg.LedgerDriver == config.LedgerPostgres {
			ledger = openSQLLedger(cfg.PostgresDSN, logger)
		} else {
			mongoLedger := repository.NewMongoLedgerStore(db)
			if err := mongoLedger.EnsureIndexes(ctx); err != nil {
				logger.Fatal().Err(err).Msg("Failed to create ledger indexes")
			}
			ledger = mongoLedger
		}
	}
	logger.Info().Str("driver", cfg.LedgerDriver).Msg("Ledger ready")

	// Redis is optional: without it tokens are minted per process and the run
	// lock only covers this instance
	var (
		tokenCache ports.TokenCache
		runLock    ports.RunLock = cache.NewMemoryRunLock()
	)
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer closeRedis(redisClient, logger)
		tokenCache = cache.NewRedisTokenCache(redisClient, "")
		runLock = cache.NewRedisRunLock(redisClient, "")
	}

	recorder := metrics.NewPrometheusRecorder()
	progress := pubsub.NewProgressPubSub(logger)
	migrationLog := logging.NewMigrationLogger(logger, progress)

	// Remote clients with pacing and retry
	retryConfig := wix.DefaultRetryConfig()
	retryConfig.MaxRetries = cfg.WixMaxRetries
	rateLimiter := wix.NewRateLimiter(cfg.WixRequestsPerSecond, int(cfg.WixRequestsPerSecond))

	apiClient := wix.NewClientWithOptions(cfg.WixAPIBaseURL, nil, rateLimiter, retryConfig, recorder, logger)
	oauthClient := wix.NewClientWithOptions(cfg.WixOAuthURL, nil, nil, retryConfig, recorder, logger)
	tokenManager := wix.NewTokenManager(oauthClient, cfg.WixAppID, cfg.WixAppSecret, tokenCache, logger)

	registry := pipelines.NewRegistry(pipelines.Deps{
		Ledger:  ledger,
		Remote:  apiClient.Clients(),
		Log:     migrationLog,
		Metrics: recorder,
		Files:   wix.NewHTTPFileTransfer(nil),
		Logger:  logger,
	})

	// Initialize application services
	orchestrator, err := application.NewOrchestrator(
		registry,
		stores,
		tokenManager,
		migrationLog,
		recorder,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build orchestrator")
	}

	runService := application.NewRunService(
		orchestrator,
		runs,
		runLock,
		progress,
		cfg.RunLockTTL,
		logger,
	)
	storeService := application.NewStoreService(stores, logger)
	ledgerService := application.NewLedgerService(ledger, logger)

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, operators are identified by the X-Operator-ID header")
	}

	router := api.NewRouter(
		api.NewHandler(runService, storeService, ledgerService, logger),
		api.RouterConfig{
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Metrics:        recorder.Handler(),
		},
		logger,
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Starting API server")
		logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	// Runs keep going after their request ended; wait for them before closing storage
	logger.Info().Msg("Waiting for running migrations")
	runService.Wait()
}

// openSQLLedger connects to PostgreSQL and applies the ledger schema
func openSQLLedger(dsn string, logger zerolog.Logger) ports.LedgerStore {
	gormConfig := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	// golang-migrate closes the connection it is given, so it gets its own
	migrationDB, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	sqlDB, err := migrationDB.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get SQL connection")
	}
	migrator, err := migration.New(sqlDB, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize migrations")
	}
	if err := migrator.Up(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run ledger migrations")
	}
	if err := migrator.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close migration connection")
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	return repository.NewSQLLedgerStore(db)
}

func closeRedis(client *redis.Client, logger zerolog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close Redis client")
	}
}

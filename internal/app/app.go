package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/reviewtrust/trustscore/internal/classifier"
	"github.com/reviewtrust/trustscore/internal/config"
	"github.com/reviewtrust/trustscore/internal/event"
	handler "github.com/reviewtrust/trustscore/internal/handler/http"
	"github.com/reviewtrust/trustscore/internal/llm"
	"github.com/reviewtrust/trustscore/internal/repository"
	"github.com/reviewtrust/trustscore/internal/repository/memory"
	"github.com/reviewtrust/trustscore/internal/repository/postgres"
	redisrepo "github.com/reviewtrust/trustscore/internal/repository/redis"
	"github.com/reviewtrust/trustscore/internal/service"
	"github.com/reviewtrust/trustscore/migrations"
	"github.com/reviewtrust/trustscore/pkg/database"
	"github.com/reviewtrust/trustscore/pkg/health"
	pkgkafka "github.com/reviewtrust/trustscore/pkg/kafka"
	"github.com/reviewtrust/trustscore/pkg/tracing"
)

// processedEventTTL is how long consumed event ids are remembered.
const processedEventTTL = 24 * time.Hour

// App wires together all dependencies and runs the trust score service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	reviewCrawled  *pkgkafka.Consumer
	scheduler      *service.Scheduler
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Pending markers live in Redis unless the in-process store is selected.
	var (
		redisClient *goredis.Client
		pending     repository.PendingStore
	)
	if cfg.Pipeline.PendingStore == config.PendingStoreRedis {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))
		pending = redisrepo.NewPendingStore(redisClient)
	} else {
		logger.Warn("pending markers kept in memory, they are lost on restart")
		pending = memory.NewPendingStore()
	}

	producer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	cls, err := newClassifier(cfg, logger)
	if err != nil {
		closeAll(pool, redisClient, producer)
		return nil, err
	}
	provider, err := llm.New(llm.Config{
		Provider:        cfg.LLM.Provider,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		AnthropicModel:  cfg.LLM.AnthropicModel,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		MaxTokens:       int(cfg.LLM.MaxTokens),
		Timeout:         cfg.LLM.Timeout,
	})
	if err != nil {
		closeAll(pool, redisClient, producer)
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	logger.Info("llm provider selected", slog.String("provider", provider.Name()))

	// Build the dependency graph.
	reviewRepo := postgres.NewReviewRepository(pool)
	analysisRepo := postgres.NewAnalysisRepository(pool)
	scoreRepo := postgres.NewTrustScoreRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)
	productRepo := postgres.NewProductRepository(pool)

	eventProducer := event.NewProducer(producer, logger)

	pipeline := service.NewAnalysisPipeline(reviewRepo, analysisRepo, pending, cls, service.PipelineConfig{
		BatchSize:       cfg.Pipeline.BatchSize,
		Parallelism:     cfg.Pipeline.Parallelism,
		MaxAttempts:     cfg.Pipeline.MaxAttempts,
		RetryBaseDelay:  cfg.Pipeline.RetryBaseDelay,
		RetryMaxDelay:   cfg.Pipeline.RetryMaxDelay,
		ClassifyTimeout: cfg.Classifier.Timeout,
		WriteTimeout:    cfg.DBQueryTimeout,
		MinModelVersion: cfg.AnalysisMinModelVersion,
	}, logger)
	trustScoreService := service.NewTrustScoreService(scoreRepo, eventProducer, cfg.Formula(), cfg.Recompute.Timeout, logger)
	reviewService := service.NewReviewService(reviewRepo, analysisRepo, pending, logger)
	analyticsService := service.NewAnalyticsService(
		analyticsRepo, scoreRepo, reviewRepo, analysisRepo, productRepo, provider, cfg.LLM.Timeout, logger,
	)
	scheduler := service.NewScheduler(pipeline, trustScoreService, pending, service.SchedulerConfig{
		PipelineInterval:  cfg.Pipeline.Interval,
		RecomputeInterval: cfg.Recompute.Interval,
		DrainSize:         cfg.Recompute.DrainSize,
		Parallelism:       cfg.Recompute.Parallelism,
	}, logger)

	// Crawled reviews arrive on Kafka. Event ids are shared through Redis
	// when it is available so redeliveries to another instance are skipped.
	var idempotency pkgkafka.IdempotencyStore
	if redisClient != nil {
		idempotency = redisrepo.NewIdempotencyStore(redisClient, processedEventTTL)
	} else {
		idempotency = pkgkafka.NewMemoryIdempotencyStore(processedEventTTL)
	}
	eventConsumer := event.NewConsumer(reviewService, logger)
	reviewCrawledConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   cfg.KafkaConsumerGroup + "-review-crawled",
		Topic:     event.TopicReviewCrawled,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotency, eventConsumer.HandleReviewCrawled, logger), logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(handler.Services{
		Pipeline:    pipeline,
		Scheduler:   scheduler,
		TrustScores: trustScoreService,
		Reviews:     reviewService,
		Analytics:   analyticsService,
	}, healthHandler, handler.RouterConfig{
		APIKeys:           cfg.APIKeys,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		CacheMaxAge:       cfg.CacheMaxAge,
	}, logger)

	// Analytics calls wait on the LLM, so the write timeout leaves room for it.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      max(15*time.Second, cfg.LLM.Timeout+5*time.Second),
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		reviewCrawled:  reviewCrawledConsumer,
		scheduler:      scheduler,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newClassifier(cfg *config.Config, logger *slog.Logger) (classifier.Classifier, error) {
	switch cfg.Classifier.Mode {
	case config.ClassifierModeHTTP:
		logger.Info("using HTTP classifier", slog.String("url", cfg.Classifier.URL))
		return classifier.NewHTTPClassifier(classifier.HTTPConfig{
			URL:                    cfg.Classifier.URL,
			Timeout:                cfg.Classifier.Timeout,
			RateLimit:              cfg.Classifier.RateLimit,
			Burst:                  cfg.Classifier.Burst,
			LowConfidenceThreshold: cfg.Classifier.LowConfidenceThreshold,
		}, logger), nil
	case config.ClassifierModeDeterministic:
		logger.Warn("using deterministic classifier")
		return classifier.NewDeterministic(cfg.Classifier.LowConfidenceThreshold), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}
}

// Run starts the HTTP server, the Kafka consumer and the background jobs,
// then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.reviewCrawled.Start(ctx); err != nil {
			errCh <- fmt.Errorf("review crawled consumer: %w", err)
		}
	}()

	// Periodic analysis batches and pending recomputes.
	go a.scheduler.Run(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.reviewCrawled.Close(); err != nil {
		a.logger.Error("review crawled consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func closeAll(pool *pgxpool.Pool, rdb *goredis.Client, producer *pkgkafka.Producer) {
	_ = producer.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	pool.Close()
}

// pingKafkaWithRetry pings the brokers up to 3 times, backing off 1s then 2s
// with ±25% jitter.
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = producer.Ping(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- retry jitter
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}

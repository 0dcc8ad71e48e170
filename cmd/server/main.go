package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/garrettladley/paygate/internal/bus"
	"github.com/garrettladley/paygate/internal/client/stripe"
	"github.com/garrettladley/paygate/internal/migrations/postgres"
	xredis "github.com/garrettladley/paygate/internal/redis"
	"github.com/garrettladley/paygate/internal/server"
	"github.com/garrettladley/paygate/internal/server/handler"
	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/service/webhook"
	"github.com/garrettladley/paygate/internal/storage"
	"github.com/garrettladley/paygate/internal/xslog"
)

const (
	keyPort   = "port"
	keyEnv    = "env"
	keyEvents = "events"

	shutdownTimeout    = 30 * time.Second
	dedupPurgeInterval = time.Hour
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

// resources tracks everything opened during startup so it can be closed in reverse.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) { r.closers = append(r.closers, fn) }

func (r *resources) close(ctx context.Context, logger *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.ErrorContext(ctx, "failed to close resource", xslog.Error(err))
		}
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := server.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var res resources
	defer res.close(context.WithoutCancel(ctx), logger)

	checks := map[string]handler.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = xredis.New(ctx, xredis.Config{URL: cfg.Redis.URL, ClientName: "paygate"})
		if err != nil {
			return fmt.Errorf("failed to initialize redis client: %w", err)
		}
		res.add(redisClient.Close)
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = initPostgres(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres: %w", err)
		}
		res.add(func() error { pool.Close(); return nil })
		checks["postgres"] = pool
	}

	// one in-process backend serves both the limiter and dedup when either asks for memory
	var mem *storage.MemoryBackend
	if cfg.RateLimit.Driver == storage.DriverMemory || cfg.Dedup.Driver == storage.DriverMemory {
		mem = storage.NewMemoryBackend(cfg.RateLimit.Limit, cfg.RateLimit.Burst)
		res.add(mem.Close)
	}

	limiter, err := initRateLimiter(ctx, cfg, redisClient, mem, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	dedup, err := initDedup(ctx, cfg, redisClient, pool, mem, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dedup store: %w", err)
	}

	publisher, err := initBus(ctx, cfg, redisClient, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize bus: %w", err)
	}
	res.add(publisher.Close)

	// Processor client
	stripeOpts := []stripe.Option{stripe.WithLogger(logger)}
	if cfg.Stripe.APIURL != "" {
		stripeOpts = append(stripeOpts, stripe.WithBaseURL(cfg.Stripe.APIURL))
	}
	stripeClient := stripe.New(cfg.Stripe.SecretKey, stripeOpts...)

	// Services
	checkoutService := checkout.NewProcessor(stripeClient, checkout.Config{
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		Timeout:    cfg.Stripe.Timeout,
	})
	eventTypes := cfg.EventTypes()
	webhookService := webhook.NewProcessor(
		stripe.NewVerifier(cfg.Stripe.WebhookSecret),
		dedup,
		publisher,
		webhook.Config{
			EventTypes: eventTypes,
			DedupTTL:   cfg.Webhook.DedupTTL,
			ClaimLease: cfg.Webhook.ClaimLease,
		},
	)

	consumer := initConsumer(ctx, cfg, redisClient, logger)
	if consumer != nil {
		res.add(consumer.Close)
	}

	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewHandler(server.Deps{
			Logger:              logger,
			Checkout:            checkoutService,
			Webhook:             webhookService,
			RateLimiter:         limiter,
			HealthChecks:        checks,
			MaxWebhookBodyBytes: cfg.Webhook.MaxBodyBytes,
			TrustedProxies:      cfg.Proxies(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port),
			slog.String(keyEnv, string(cfg.Env)),
			slog.Any(keyEvents, eventTypes.List()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if consumer != nil {
		checkoutRequests := handler.NewCheckout(checkoutService)
		g.Go(func() error {
			if err := consumer.Consume(xslog.WithLogger(gctx, logger), checkoutRequests.HandleCreatePaymentSessionMessage); err != nil {
				return fmt.Errorf("bus consumer error: %w", err)
			}
			return nil
		})
	}

	if purger, ok := dedup.(*storage.PostgresDedupStore); ok {
		g.Go(func() error {
			purgeExpiredClaims(gctx, purger, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

func initPostgres(ctx context.Context, cfg server.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.InfoContext(ctx, "initializing PostgreSQL")

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := postgres.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return pool, nil
}

func initRateLimiter(ctx context.Context, cfg server.Config, redisClient *redis.Client, mem *storage.MemoryBackend, logger *slog.Logger) (storage.RateLimiter, error) {
	logger.InfoContext(ctx, "initializing rate limiter", xslog.Driver(cfg.RateLimit.Driver))

	switch cfg.RateLimit.Driver {
	case storage.DriverMemory:
		return mem, nil
	case storage.DriverRedis:
		return storage.NewRedisBackend(storage.RedisConfig{Client: redisClient}, cfg.RateLimit.Limit, cfg.RateLimit.Burst), nil
	default:
		return nil, fmt.Errorf("unknown rate limit driver %q", cfg.RateLimit.Driver)
	}
}

func initDedup(ctx context.Context, cfg server.Config, redisClient *redis.Client, pool *pgxpool.Pool, mem *storage.MemoryBackend, logger *slog.Logger) (storage.DedupStore, error) {
	logger.InfoContext(ctx, "initializing dedup store", xslog.Driver(cfg.Dedup.Driver))

	switch cfg.Dedup.Driver {
	case storage.DriverMemory:
		// claims do not survive a restart
		return mem, nil
	case storage.DriverRedis:
		return storage.NewRedisBackend(storage.RedisConfig{Client: redisClient}, cfg.RateLimit.Limit, cfg.RateLimit.Burst), nil
	case storage.DriverPostgres:
		return storage.NewPostgresDedupStore(pool), nil
	case storage.DriverDynamoDB:
		return storage.NewDynamoDBDedupStore(ctx, cfg.DynamoDB.Table, cfg.DynamoDB.Endpoint)
	default:
		return nil, fmt.Errorf("unknown dedup driver %q", cfg.Dedup.Driver)
	}
}

func initBus(ctx context.Context, cfg server.Config, redisClient *redis.Client, logger *slog.Logger) (bus.Publisher, error) {
	driver, err := bus.ParseDriver(cfg.Bus.Driver)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "initializing bus", xslog.Driver(string(driver)))

	var publisher bus.Publisher
	switch driver {
	case bus.DriverMemory:
		memBus := bus.NewMemoryBus()
		for _, pattern := range []string{bus.PatternPaymentSucceeded, bus.PatternPaymentFailed} {
			memBus.Subscribe(pattern, logMessage)
		}
		publisher = memBus
	case bus.DriverRedis:
		publisher = bus.NewRedisPublisher(redisClient, cfg.Bus.Prefix)
	case bus.DriverKafka:
		publisher = bus.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Bus.Prefix)
	case bus.DriverSNS:
		publisher, err = bus.NewSNSPublisher(ctx, cfg.SNS.TopicARN, cfg.SNS.Endpoint)
		if err != nil {
			return nil, err
		}
	}

	return bus.WithRetry(publisher, bus.RetryConfig{
		Attempts: cfg.Bus.RetryAttempts,
		Backoff:  cfg.Bus.RetryBackoff,
	}), nil
}

// initConsumer returns nil when the bus cannot carry requests or they are disabled.
func initConsumer(ctx context.Context, cfg server.Config, redisClient *redis.Client, logger *slog.Logger) bus.Consumer {
	if !cfg.Bus.ConsumeRequests {
		return nil
	}

	switch bus.Driver(cfg.Bus.Driver) {
	case bus.DriverRedis:
		return bus.NewRedisConsumer(redisClient, cfg.Bus.Prefix, bus.PatternCreatePaymentSession)
	case bus.DriverKafka:
		return bus.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Bus.Prefix, bus.PatternCreatePaymentSession, cfg.Kafka.GroupID)
	default:
		logger.InfoContext(ctx, "bus requests not consumed", xslog.Driver(cfg.Bus.Driver))
		return nil
	}
}

func logMessage(ctx context.Context, msg bus.Message) error {
	xslog.FromContext(ctx).InfoContext(ctx, "bus message", xslog.Pattern(msg.Pattern), xslog.OrderID(msg.Key))
	return nil
}

func purgeExpiredClaims(ctx context.Context, store *storage.PostgresDedupStore, logger *slog.Logger) {
	ticker := time.NewTicker(dedupPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to purge expired webhook claims", xslog.Error(err))
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "purged expired webhook claims", xslog.Count(int(n)))
			}
		}
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotwise/slotwise/libs/auth"
	"github.com/slotwise/slotwise/libs/config"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/libs/grpcx"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/libs/kafkax"
	otelx "github.com/slotwise/slotwise/libs/otel"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/libs/runtime"
	"github.com/slotwise/slotwise/services/appointment-service/internal/handlers"
	"github.com/slotwise/slotwise/services/appointment-service/internal/messaging"
	"github.com/slotwise/slotwise/services/appointment-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolConfig{
		MaxConns:        int32(config.Int("DB_MAX_CONNS", 10)),
		MaxConnLifetime: config.Duration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_MIGRATE", true) {
		if err := pool.Migrate(ctx, storage.Migrations...); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	brokers := config.String("KAFKA_BROKERS", "")
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(limitPerMinute, time.Minute)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:appt"))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if url := config.String("JWKS_URL", ""); url != "" {
		verifier.JWKS = auth.NewJWKSClient(url, config.Duration("JWKS_TTL", 5*time.Minute))
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		panic("JWT_SECRET or JWKS_URL is required")
	}

	repo := storage.NewRepository(pool)
	builder := messaging.Builder{Channels: config.List("MESSAGE_CHANNELS", "telegram,sms,email")}
	api := http.NewServeMux()
	handlers.New(repo, builder, logger).Register(api)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", auth.RequireBearer(verifier, api))

	health := grpcx.NewHealthServer(logger, service, func(ctx context.Context) error {
		if results, ok := runtime.CheckAll(ctx, readyChecks); !ok {
			return fmt.Errorf("not ready: %v", results)
		}
		return nil
	})
	go func() {
		if err := health.Run(ctx, ":"+config.String("GRPC_PORT", "9081"), 5*time.Second); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.RateLimit(limiter, httpx.ClientIP, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, service),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.RunHTTPServer(ctx, logger, srv, 10*time.Second)
}

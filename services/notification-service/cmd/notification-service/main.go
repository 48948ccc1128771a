package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotwise/slotwise/libs/auth"
	"github.com/slotwise/slotwise/libs/config"
	"github.com/slotwise/slotwise/libs/db"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/libs/grpcx"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/libs/kafkax"
	otelx "github.com/slotwise/slotwise/libs/otel"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/libs/runtime"
	"github.com/slotwise/slotwise/services/notification-service/internal/appointments"
	"github.com/slotwise/slotwise/services/notification-service/internal/consumer"
	"github.com/slotwise/slotwise/services/notification-service/internal/delivery"
	"github.com/slotwise/slotwise/services/notification-service/internal/email"
	"github.com/slotwise/slotwise/services/notification-service/internal/feed"
	"github.com/slotwise/slotwise/services/notification-service/internal/handlers"
	"github.com/slotwise/slotwise/services/notification-service/internal/inbox"
	"github.com/slotwise/slotwise/services/notification-service/internal/sms"
	"github.com/slotwise/slotwise/services/notification-service/internal/storage"
	"github.com/slotwise/slotwise/services/notification-service/internal/telegram"
	"github.com/slotwise/slotwise/services/notification-service/internal/templates"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL, db.PoolConfig{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
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
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var store feed.Store = feed.NewMemoryStore()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		store = feed.NewRedisStore(rdb, config.String("FEED_KEY_PREFIX", "feed"), config.Duration("FEED_TTL", 7*24*time.Hour))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Warn("REDIS_ADDR not set; notification feed is process-local")
	}

	apptClient := appointments.NewClient(config.String("APPOINTMENT_SERVICE_URL", "http://localhost:8081"), config.Duration("APPOINTMENT_SERVICE_TIMEOUT", 5*time.Second))
	feedService := feed.NewService(store, apptClient, logger, config.Int("FEED_MAX_ITEMS", 100))

	if grpcAddr := config.String("APPOINTMENT_GRPC_ADDR", ""); grpcAddr != "" {
		conn, err := grpcx.Dial(grpcAddr, nil)
		if err != nil {
			logger.Error("appointment-service grpc dial failed", "err", err)
		} else {
			defer func() { _ = conn.Close() }()
			readyChecks = append(readyChecks, runtime.ReadyCheck{
				Name:  "appointment-service",
				Check: grpcx.HealthProbe(conn, config.String("APPOINTMENT_GRPC_SERVICE", "appointment-service")),
			})
		}
	}

	set, err := templates.Load(config.String("MESSAGE_TEMPLATES_FILE", ""))
	if err != nil {
		logger.Error("message templates invalid", "err", err)
		panic(err)
	}
	senders := map[string]delivery.Sender{
		events.ChannelEmail: email.NewSMTPSender(email.Config{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("SMTP_FROM", "no-reply@slotwise.local"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
		}),
	}
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "noop":
		senders[events.ChannelSMS] = sms.NewNoopSender()
	default:
		senders[events.ChannelSMS] = sms.NewWebhookSender(sms.WebhookConfig{
			URL:      config.String("SMS_WEBHOOK_URL", ""),
			Token:    config.String("SMS_WEBHOOK_TOKEN", ""),
			SenderID: config.String("SMS_SENDER_ID", ""),
			Timeout:  config.Duration("SMS_TIMEOUT", 5*time.Second),
		})
	}
	if token := config.String("TELEGRAM_BOT_TOKEN", ""); token != "" {
		tg, err := telegram.New(token, config.String("TELEGRAM_API_ENDPOINT", ""))
		if err != nil {
			logger.Error("telegram disabled", "err", err)
		} else {
			senders[events.ChannelTelegram] = tg
		}
	}
	dispatcher := delivery.NewDispatcher(set, senders)
	dispatcher.FailSuffix = config.String("NOTIFICATION_FAIL_SUFFIX", "")

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})

		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
			PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		inboxRepo := inbox.NewRepository(pool)
		groupID := config.String("KAFKA_GROUP_ID", "notification-service")
		changes := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID + ".feed",
			Topic:   config.String("KAFKA_CHANGES_TOPIC", events.TopicAppointmentChanged),
		}, handlers.AppointmentChanged(feedService, logger))
		go changes.Run(ctx)

		messages := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID + ".messages",
			Topic:   config.String("KAFKA_MESSAGES_TOPIC", events.TopicMessageRequested),
		}, handlers.MessageRequested(dispatcher, storage.Record, logger, time.Now))
		go messages.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; change stream and customer messages are not consumed")
	}

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "")}
	if url := config.String("JWKS_URL", ""); url != "" {
		verifier.JWKS = auth.NewJWKSClient(url, config.Duration("JWKS_TTL", 5*time.Minute))
	}
	if verifier.Secret == "" && verifier.JWKS == nil {
		panic("JWT_SECRET or JWKS_URL is required")
	}

	api := http.NewServeMux()
	handlers.New(feedService, logger).Register(api)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", auth.RequireBearer(verifier, api))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithBodyLimit(int64(config.Int("HTTP_BODY_LIMIT_BYTES", 64<<10))),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 10*time.Second)),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, service),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.RunHTTPServer(ctx, logger, srv, 10*time.Second)
}

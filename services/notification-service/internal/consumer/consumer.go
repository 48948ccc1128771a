package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"github.com/slotwise/slotwise/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message inside the inbox transaction.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Process(ctx context.Context, eventID, eventType string, fn func(pgx.Tx) error) (bool, error)
}

type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

type Config struct {
	Brokers     string
	GroupID     string
	Topic       string
	MaxAttempts int
	Backoff     time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	return NewWithReader(logger, inbox, kafkax.NewReader(cfg.Brokers, cfg.GroupID, cfg.Topic), cfg, handler)
}

func NewWithReader(logger *slog.Logger, inbox Inbox, reader Reader, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger.With("topic", cfg.Topic),
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed after each message is
// handled or has exhausted its attempts.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.MetaOf(msg)
	for attempt := 1; ; attempt++ {
		fresh, err := c.inbox.Process(ctxSpan, meta.EventID, meta.EventType, func(tx pgx.Tx) error {
			return c.handler(ctxSpan, tx, msg)
		})
		if err == nil {
			if !fresh {
				c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			}
			return
		}
		span.RecordError(err)
		if attempt >= c.maxAttempts || ctx.Err() != nil {
			span.SetStatus(codes.Error, "handler failed")
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "attempts", attempt)
			return
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

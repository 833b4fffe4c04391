package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one event inside the inbox transaction.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Inbox interface {
	Record(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error)
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
	// MaxRetries bounds how often a failing message is retried before it is skipped.
	MaxRetries int
	RetryDelay time.Duration
}

type Consumer struct {
	cfg     Config
	db      TxStarter
	inbox   Inbox
	handler Handler
	logger  *slog.Logger
}

func New(logger *slog.Logger, db TxStarter, inboxRepo Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Consumer{cfg: cfg, db: db, inbox: inboxRepo, handler: handler, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	brokers := kafkax.SplitBrokers(c.cfg.Brokers)
	if len(brokers) == 0 {
		c.logger.Warn("kafka consumer disabled (no brokers)")
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     c.cfg.GroupID,
		GroupTopics: c.cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		c.handle(ctx, msg)
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// handle retries a failing message a bounded number of times. A message that
// still fails is logged and skipped so one poison event cannot stall the group.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	for attempt := 1; ; attempt++ {
		err := c.process(ctx, msg)
		if err == nil {
			return
		}
		meta := kafkax.ExtractEventMeta(msg)
		if attempt >= c.cfg.MaxRetries {
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			return
		}
		c.logger.Warn("event handling failed, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// process records the event in the inbox and runs the handler in the same
// transaction. Duplicates commit nothing and return nil.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	tx, err := c.db.Begin(ctxSpan)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer func() { _ = tx.Rollback(ctxSpan) }()

	ok, err := c.inbox.Record(ctxSpan, tx, meta.EventID, meta.EventType)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	if err := c.handler(ctxSpan, tx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return tx.Commit(ctxSpan)
}

package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/clinicazen/platform/libs/db"
	"github.com/clinicazen/platform/libs/kafkax"
	otelx "github.com/clinicazen/platform/libs/otel"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   []string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   cfg.Brokers,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	var published int
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := Messages(ctx, records)
		if err := writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}

		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		published = len(ids)
		return p.repo.MarkPublished(ctx, tx, ids)
	})
	return published, err
}

// Messages converts outbox rows into Kafka messages, restoring the trace
// context captured when each row was written.
func Messages(ctx context.Context, records []Record) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msg := kafkax.NewEventMessage(kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}, r.AggregateID, r.Payload)
		msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
		msgs = append(msgs, msg)
	}
	return msgs
}

package kafka

import (
	"context"
	"time"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/segmentio/kafka-go"
)

const (
	initialBackoff = 300 * time.Millisecond
	maxBackoff     = 10 * time.Second
	// handleTimeout bounds one reconciliation attempt, which is not cut short by
	// consumer shutdown.
	handleTimeout = 30 * time.Second
	commitTimeout = 5 * time.Second
)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Reconciler interface {
	Reconcile(ctx context.Context, paymentID, topic string) (application.ReconcileOutcome, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds payment notifications from a topic into the reconciler. Offsets are
// committed only once a message is settled, so delivery is at least once.
type Consumer struct {
	r       messageReader
	rec     Reconciler
	backoff time.Duration
	timeout time.Duration
	done    chan struct{}
}

func StartConsumer(ctx context.Context, rec Reconciler, cfg ConsumerConfig) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})
	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)

	c := newConsumer(r, rec)
	go c.run(ctx)
	return c
}

func newConsumer(r messageReader, rec Reconciler) *Consumer {
	return &Consumer{r: r, rec: rec, backoff: initialBackoff, timeout: handleTimeout, done: make(chan struct{})}
}

// Wait blocks until the consume loop has stopped and the reader is closed.
func (c *Consumer) Wait() {
	<-c.done
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, m) {
			return
		}
		c.commit(ctx, m)
	}
}

// commit acknowledges a settled message even when shutdown began while it was being
// handled.
func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.r.CommitMessages(cctx, m); err != nil {
		logger.Warn("kafka commit failed", "err", err, "partition", m.Partition, "offset", m.Offset)
	}
}

// process retries the same message with growing backoff while reconciliation fails
// with a retryable error. It returns false only when ctx is done before the message
// settles; the message is then left uncommitted for redelivery.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	wait := c.backoff
	for {
		retry := c.handle(ctx, m)
		if !retry {
			return true
		}
		if !sleep(ctx, wait) {
			return false
		}
		wait = min(wait*2, maxBackoff)
	}
}

// handle reports whether the message must be retried.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	n, err := application.DecodeNotification(m.Value)
	if err == nil && n.Topic == "" {
		n.Topic = headerValue(m, "topic")
	}
	if err != nil {
		logger.Warn("kafka malformed notification, skip and commit", "err", err, "offset", m.Offset)
		return false
	}

	// an attempt already running completes even if ctx is cancelled meanwhile
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	outcome, err := c.rec.Reconcile(rctx, n.PaymentID, n.Topic)
	switch {
	case err == nil:
		logger.Debug("kafka notification settled", "payment_id", n.PaymentID, "outcome", outcome, "offset", m.Offset)
		return false
	case domain.Retryable(err):
		if ctx.Err() == nil {
			logger.Warn("kafka reconcile failed, will retry", "payment_id", n.PaymentID, "err", err)
		}
		return true
	default:
		logger.Warn("kafka notification rejected, skip and commit", "payment_id", n.PaymentID, "err", err)
		return false
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
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

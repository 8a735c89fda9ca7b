package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/RaikyD/trip-orders-service/internal/apperr"
	"github.com/RaikyD/trip-orders-service/internal/application"
	"github.com/RaikyD/trip-orders-service/internal/domain"
	"github.com/RaikyD/trip-orders-service/internal/logger"
)

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, requesterID uuid.UUID, in application.CreateOrderInput) (*domain.Order, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryBackoff    = 300 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

func NewReader(cfg ConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         strings.Split(cfg.Brokers, ","),
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})
}

// RunConsumer feeds queued order requests to svc until ctx is cancelled.
func RunConsumer(ctx context.Context, svc OrderCreator, cfg ConsumerConfig) error {
	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)
	return consume(ctx, NewReader(cfg), svc, retryBackoff)
}

func consume(ctx context.Context, r messageReader, svc OrderCreator, backoff time.Duration) error {
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("kafka fetch error", "err", err)
			if !sleep(ctx, backoff) {
				return nil
			}
			continue
		}

		// retry the same message until it is handled or ctx ends
		b := retry.WithCappedDuration(maxRetryBackoff, retry.NewExponential(backoff))
		err = retry.Do(ctx, b, func(ctx context.Context) error {
			if err := processMessage(ctx, svc, m); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			// only cancellation stops the retries
			return nil
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("kafka commit failed", "err", err)
		} else {
			logger.Debug("kafka committed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)
		}
	}
}

// processMessage handles one message. A nil result means the offset can be
// committed; messages that can never succeed are dropped with nil.
func processMessage(ctx context.Context, svc OrderCreator, m kafka.Message) error {
	logger.Info("order request fetched", "partition", m.Partition, "offset", m.Offset)

	var req application.OrderRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		logger.Warn("kafka invalid json. skip and commit", "offset", m.Offset, "err", err)
		return nil
	}

	o, err := svc.CreateOrder(ctx, req.RequesterID, req.Order)
	switch {
	case err == nil:
		logger.Info("order created from queue", "order_id", o.ID, "requester", req.RequesterID.String())
		return nil
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound), apperr.Is(err, apperr.KindAuth),
		apperr.Is(err, apperr.KindConflict):
		logger.Warn("order request rejected. skip and commit", "offset", m.Offset, "code", apperr.Code(err), "err", err)
		return nil
	default:
		logger.Warn("kafka create order fail, will retry", "offset", m.Offset, "err", err)
		return err
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

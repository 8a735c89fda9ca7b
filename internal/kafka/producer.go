package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/RaikyD/trip-orders-service/internal/application"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w messageWriter
}

func NewProducer(brokersSTR, topic string) *Producer {
	brokers := strings.Split(brokersSTR, ",")

	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// PublishOrderRequest queues req keyed by the requester so one user's requests
// land on one partition in order.
func (p *Producer) PublishOrderRequest(ctx context.Context, req application.OrderRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.RequesterID.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
}

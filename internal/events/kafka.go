package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the part of *kgo.Client the Kafka publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes notifications to a topic keyed by request id so that
// events of one request stay ordered within a partition.
type KafkaPublisher struct {
	Topic    string
	Producer Producer
	Filter   Filter
}

// NewKafkaClient connects a producer client for brokers.
func NewKafkaClient(brokers []string, clientID string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	opts := []kgo.Opt{kgo.SeedBrokers(brokers...)}
	if clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}
	return kgo.NewClient(opts...)
}

func (k KafkaPublisher) Name() string { return "kafka " + k.Topic }

func (k KafkaPublisher) Accepts(eventType string) bool { return k.Filter.Match(eventType) }

func (k KafkaPublisher) Deliver(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return err
	}
	rec := &kgo.Record{
		Topic: k.Topic,
		Key:   []byte(n.Event.RequestID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(n.Event.Type)},
		},
	}
	return k.Producer.ProduceSync(ctx, rec).FirstErr()
}

package journal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces outbox messages to Kafka, one topic per event
// topic, keyed by dispute id so a dispute's events stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	prefix string
}

func NewKafkaPublisher(brokers []string, prefix string, opts ...kgo.Opt) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("journal: kafka: no brokers configured")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("journal: kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, prefix: prefix}, nil
}

// Ping checks broker connectivity.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := msg.Body()
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", msg.ID, err)
	}
	rec := &kgo.Record{
		Topic: p.prefix + msg.Topic,
		Key:   []byte(strconv.FormatUint(msg.DisputeID, 10)),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "message_id", Value: []byte(msg.ID.String())},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("journal: produce %s: %w", rec.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// LogPublisher writes messages to a logger. It stands in for Kafka when no
// brokers are configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, msg Message) error {
	p.Logger.Info().
		Str("message_id", msg.ID.String()).
		Str("topic", msg.Topic).
		Uint64("dispute_id", msg.DisputeID).
		Interface("payload", msg.Payload).
		Msg("event")
	return nil
}

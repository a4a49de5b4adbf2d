package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"sealedcourt/ciphertext"
)

// DefaultRequestTopic carries decryption requests to an external oracle.
const DefaultRequestTopic = "oracle.decryption_requests"

// RequestMessage is the wire form of a decryption request. The oracle
// answers out of band through the court's callback endpoint.
type RequestMessage struct {
	RequestID RequestID           `json:"request_id"`
	Handles   []ciphertext.Handle `json:"handles"`
}

// KafkaRequester hands decryption requests to an external oracle over Kafka.
type KafkaRequester struct {
	client *kgo.Client
	topic  string
	newID  func() RequestID
}

func NewKafkaRequester(brokers []string, topic string, opts ...kgo.Opt) (*KafkaRequester, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("oracle: kafka: no brokers configured")
	}
	if topic == "" {
		topic = DefaultRequestTopic
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("oracle: kafka client: %w", err)
	}
	return &KafkaRequester{
		client: client,
		topic:  topic,
		newID:  func() RequestID { return RequestID(uuid.NewString()) },
	}, nil
}

// RequestDecryption publishes the batch and returns its id once the broker
// has acknowledged it.
func (k *KafkaRequester) RequestDecryption(ctx context.Context, handles []ciphertext.Handle) (RequestID, error) {
	if len(handles) == 0 {
		return "", ErrNoHandles
	}
	msg := RequestMessage{RequestID: k.newID(), Handles: handles}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}
	rec := &kgo.Record{Topic: k.topic, Key: []byte(msg.RequestID), Value: body}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return "", fmt.Errorf("oracle: produce request: %w", err)
	}
	return msg.RequestID, nil
}

func (k *KafkaRequester) Close() {
	k.client.Close()
}

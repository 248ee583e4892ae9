package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/resilience"
)

// NewKafkaConfig returns the producer settings used for domain events.
func NewKafkaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	return config
}

// KafkaNotifier publishes events to a Kafka topic keyed by aggregate id so all
// events of one invoice land on the same partition.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
	breaker  *resilience.Breaker
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// DialKafka connects an async producer to brokers.
func DialKafka(brokers []string, topic, clientID string, breaker *resilience.Breaker, log zerolog.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: no kafka brokers configured")
	}
	producer, err := sarama.NewAsyncProducer(brokers, NewKafkaConfig(clientID))
	if err != nil {
		return nil, err
	}
	return NewKafkaNotifier(producer, topic, breaker, log), nil
}

// NewKafkaNotifier wraps an existing producer. The producer must be configured
// to return both successes and errors.
func NewKafkaNotifier(producer sarama.AsyncProducer, topic string, breaker *resilience.Breaker, log zerolog.Logger) *KafkaNotifier {
	if breaker == nil {
		breaker = resilience.NewBreaker(5, 0.5, 30*time.Second)
	}
	k := &KafkaNotifier{producer: producer, topic: topic, breaker: breaker.WithTarget("kafka"), log: log}
	k.wg.Add(2)
	go func() {
		defer k.wg.Done()
		for range producer.Successes() {
			k.breaker.Report(context.Background(), true)
		}
	}()
	go func() {
		defer k.wg.Done()
		for perr := range producer.Errors() {
			k.breaker.Report(context.Background(), false)
			evt := k.log.Error().Err(perr.Err).Str("kafka_topic", perr.Msg.Topic)
			if id, ok := perr.Msg.Metadata.(string); ok {
				evt = evt.Str("event_id", id)
			}
			evt.Msg("kafka publish failed")
		}
	}()
	return k
}

// Notify implements Notifier. Delivery is asynchronous; failures surface
// through the breaker and the error log.
func (k *KafkaNotifier) Notify(ctx context.Context, event Event) error {
	if !k.breaker.Allow(ctx) {
		return resilience.ErrOpenCircuit
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-topic"), Value: []byte(event.Topic)},
			{Key: []byte("event-id"), Value: []byte(event.ID)},
		},
		Metadata:  event.ID,
		Timestamp: event.OccurredAt,
	}
	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and stops the producer.
func (k *KafkaNotifier) Close() error {
	err := k.producer.Close()
	k.wg.Wait()
	return err
}

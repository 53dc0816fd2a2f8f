//go:build integration

package kafka

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startKafka(t *testing.T) []string {
	t.Helper()

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return brokers
}

func publish(t *testing.T, brokers []string, topic, key, value string) {
	t.Helper()

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	require.NoError(t, err)

	defer producer.Close()

	_, _, err = producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	})
	require.NoError(t, err)
}

func TestSource_ConsumesTopic(t *testing.T) {
	brokers := startKafka(t)

	// The topic must exist before the consumer group joins.
	publish(t, brokers, "orders", "warmup", `{}`)

	source, err := NewSource(brokers, "cg-test", []Subscription{{Topic: "orders", Identifier: "order.created"}},
		slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	received := make(chan map[string]any, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, source.Start(ctx, func(_ context.Context, identifier string, payload map[string]any) error {
		if identifier == "order.created" {
			received <- payload
		}

		return nil
	}))

	defer func() { assert.NoError(t, source.Stop(context.Background())) }()

	deadline := time.After(60 * time.Second)

	for {
		publish(t, brokers, "orders", "order-1", `{"amount": 7}`)

		select {
		case payload := <-received:
			assert.Equal(t, "orders", payload["topic"])
			assert.Equal(t, map[string]any{"amount": 7.0}, payload["message"])

			return
		case <-time.After(2 * time.Second):
		case <-deadline:
			t.Fatal("no message consumed")
		}
	}
}

// Package kafka turns messages on external Kafka topics into inbound events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/dukex/automata/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNoSubscriptions = errors.New("kafka source needs at least one subscription")
	ErrAlreadyStarted  = errors.New("kafka source already started")
)

const retryDelay = 5 * time.Second

// Subscription maps one topic to the event identifier its messages are published as.
type Subscription struct {
	Topic      string         `json:"topic"                 yaml:"topic"`
	Identifier string         `json:"identifier"            yaml:"identifier"`
	JSONSchema map[string]any `json:"json_schema,omitempty" yaml:"json_schema,omitempty"`
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.Topic) == "" {
		return errors.New("kafka subscription topic is required")
	}

	if strings.TrimSpace(s.Identifier) == "" {
		return fmt.Errorf("kafka subscription %q has no event identifier", s.Topic)
	}

	return nil
}

// ParseSubscriptions reads "topic=identifier" pairs separated by ';'.
func ParseSubscriptions(value string) ([]Subscription, error) {
	var subscriptions []Subscription

	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		topic, identifier, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("invalid kafka subscription %q, expected topic=identifier", entry)
		}

		subscription := Subscription{Topic: strings.TrimSpace(topic), Identifier: strings.TrimSpace(identifier)}

		err := subscription.Validate()
		if err != nil {
			return nil, err
		}

		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, nil
}

// Source consumes the subscribed topics with one consumer group.
type Source struct {
	brokers       []string
	group         string
	subscriptions map[string]Subscription
	logger        *slog.Logger

	mu       sync.Mutex
	consumer sarama.ConsumerGroup
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSource(brokers []string, group string, subscriptions []Subscription, logger *slog.Logger) (*Source, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka source needs at least one broker")
	}

	if len(subscriptions) == 0 {
		return nil, ErrNoSubscriptions
	}

	byTopic := make(map[string]Subscription, len(subscriptions))

	for _, subscription := range subscriptions {
		err := subscription.Validate()
		if err != nil {
			return nil, err
		}

		if _, exists := byTopic[subscription.Topic]; exists {
			return nil, fmt.Errorf("topic %q is subscribed twice", subscription.Topic)
		}

		byTopic[subscription.Topic] = subscription
	}

	return &Source{
		brokers:       brokers,
		group:         group,
		subscriptions: byTopic,
		logger:        logger.With("module", "kafka_source", "consumer_group", group),
	}, nil
}

func (s *Source) topics() []string {
	topics := make([]string, 0, len(s.subscriptions))
	for topic := range s.subscriptions {
		topics = append(topics, topic)
	}

	return topics
}

func (s *Source) Start(ctx context.Context, callback protocol.EventCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumer != nil {
		return ErrAlreadyStarted
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(s.brokers, s.group, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	s.consumer = consumer
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.consume(consumeCtx, &consumerGroupHandler{source: s, callback: callback})
	go s.monitorErrors(consumeCtx)

	s.logger.InfoContext(ctx, "Kafka source started", "topics", s.topics())

	return nil
}

func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.consumer == nil {
		return nil
	}

	s.cancel()

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := s.consumer.Close()
	s.consumer = nil

	return err
}

func (s *Source) consume(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	defer close(s.done)

	topics := s.topics()

	for ctx.Err() == nil {
		err := s.consumer.Consume(ctx, topics, handler)
		if err == nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
			continue
		}

		s.logger.ErrorContext(ctx, "Kafka consume failed", "error", err)

		select {
		case <-ctx.Done():
		case <-time.After(retryDelay):
		}
	}
}

func (s *Source) monitorErrors(ctx context.Context) {
	errs := s.consumer.Errors()

	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}

			s.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// payload builds the event payload for a message. Messages that fail the subscription
// schema are rejected.
func (s Subscription) payload(message *sarama.ConsumerMessage) (map[string]any, error) {
	var data any

	if len(message.Value) > 0 {
		err := json.Unmarshal(message.Value, &data)
		if err != nil {
			data = map[string]any{"raw_message": string(message.Value)}
		}
	}

	if len(s.JSONSchema) > 0 {
		err := validateSchema(s.JSONSchema, data)
		if err != nil {
			return nil, err
		}
	}

	headers := make(map[string]any, len(message.Headers))
	for _, header := range message.Headers {
		if header != nil {
			headers[string(header.Key)] = string(header.Value)
		}
	}

	return map[string]any{
		"topic":     message.Topic,
		"partition": float64(message.Partition),
		"offset":    float64(message.Offset),
		"key":       string(message.Key),
		"message":   data,
		"headers":   headers,
		"timestamp": message.Timestamp.UTC().Format(time.RFC3339),
	}, nil
}

func validateSchema(schema map[string]any, data any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return err
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("message does not match schema: %s", strings.Join(problems, "; "))
}

type consumerGroupHandler struct {
	source   *Source
	callback protocol.EventCallback
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every message, including the ones that fail. A bad message is not retried.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for message := range claim.Messages() {
		h.source.handle(ctx, message, h.callback)
		session.MarkMessage(message, "")
	}

	return nil
}

func (s *Source) handle(ctx context.Context, message *sarama.ConsumerMessage, callback protocol.EventCallback) {
	logger := s.logger.With("topic", message.Topic, "partition", message.Partition, "offset", message.Offset)

	subscription, ok := s.subscriptions[message.Topic]
	if !ok {
		logger.WarnContext(ctx, "Message from unsubscribed topic")

		return
	}

	payload, err := subscription.payload(message)
	if err != nil {
		logger.WarnContext(ctx, "Discarding Kafka message", "error", err)

		return
	}

	err = callback(ctx, subscription.Identifier, payload)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to emit Kafka event", "event", subscription.Identifier, "error", err)
	}
}

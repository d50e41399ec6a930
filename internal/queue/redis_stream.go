package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/configs"
	"github.com/seniorshield/fraud-engine/internal/models"
)

// Event kinds carried on the fraud-events stream.
const (
	KindTransaction = "transaction"
	KindFeedback    = "feedback"
)

// StreamMessage is one consumed stream entry. Exactly one of Transaction
// or Feedback is set, according to Kind.
type StreamMessage struct {
	ID          string
	Kind        string
	Transaction *models.TransactionEvent
	Feedback    *models.FeedbackEvent
}

// StreamClient handles the fraud-events Redis stream: transaction-ready
// and feedback events published by the sync and review surfaces, consumed
// by the scoring workers.
type StreamClient struct {
	client           *redis.Client
	streamName       string
	consumerGroup    string
	deadLetterStream string
	maxRetries       int
}

// NewStreamClient connects and ensures the consumer group exists.
func NewStreamClient(cfg configs.RedisConfig) (*StreamClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sc := &StreamClient{
		client:           client,
		streamName:       cfg.StreamName,
		consumerGroup:    cfg.ConsumerGroup,
		deadLetterStream: cfg.DeadLetterStream,
		maxRetries:       cfg.MaxRetries,
	}

	if err := sc.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Consumer group may already exist")
	}

	log.Info().Str("stream", cfg.StreamName).Msg("Redis stream client initialized")
	return sc, nil
}

func (s *StreamClient) createConsumerGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.streamName, s.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// PublishTransaction queues a synced transaction for scoring.
func (s *StreamClient) PublishTransaction(ctx context.Context, event *models.TransactionEvent) (string, error) {
	return s.publish(ctx, KindTransaction, event)
}

// PublishFeedback queues a review verdict for model updates.
func (s *StreamClient) PublishFeedback(ctx context.Context, event *models.FeedbackEvent) (string, error) {
	return s.publish(ctx, KindFeedback, event)
}

func (s *StreamClient) publish(ctx context.Context, kind string, payload interface{}) (string, error) {
	eventJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	msgID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamName,
		Values: map[string]interface{}{
			"kind": kind,
			"data": string(eventJSON),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	log.Debug().Str("message_id", msgID).Str("kind", kind).Msg("Event published to stream")
	return msgID, nil
}

// Consume reads the next batch for this consumer, claiming abandoned
// pending messages first.
func (s *StreamClient) Consume(ctx context.Context, consumerName string, count int64, blockDuration time.Duration) ([]StreamMessage, error) {
	pending, err := s.claimPendingMessages(ctx, consumerName, count)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to claim pending messages")
	}
	if len(pending) > 0 {
		return pending, nil
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{s.streamName, ">"},
		Count:    count,
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, err := parseMessage(msg)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to parse message")
				continue
			}
			messages = append(messages, parsed)
		}
	}
	return messages, nil
}

func (s *StreamClient) claimPendingMessages(ctx context.Context, consumerName string, count int64) ([]StreamMessage, error) {
	minIdleTime := 30 * time.Second

	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.streamName,
		Group:  s.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var messageIDs []string
	for _, p := range pending {
		if p.Idle >= minIdleTime {
			messageIDs = append(messageIDs, p.ID)
		}
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}

	claimed, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.streamName,
		Group:    s.consumerGroup,
		Consumer: consumerName,
		MinIdle:  minIdleTime,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return nil, err
	}

	var messages []StreamMessage
	for _, msg := range claimed {
		parsed, err := parseMessage(msg)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to parse claimed message")
			continue
		}
		messages = append(messages, parsed)
	}
	return messages, nil
}

func parseMessage(msg redis.XMessage) (StreamMessage, error) {
	kind, _ := msg.Values["kind"].(string)
	data, ok := msg.Values["data"].(string)
	if !ok {
		return StreamMessage{}, fmt.Errorf("invalid message format")
	}

	parsed := StreamMessage{ID: msg.ID, Kind: kind}
	switch kind {
	case KindTransaction:
		var event models.TransactionEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return StreamMessage{}, fmt.Errorf("failed to unmarshal transaction event: %w", err)
		}
		parsed.Transaction = &event
	case KindFeedback:
		var event models.FeedbackEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return StreamMessage{}, fmt.Errorf("failed to unmarshal feedback event: %w", err)
		}
		parsed.Feedback = &event
	default:
		return StreamMessage{}, fmt.Errorf("unknown event kind %q", kind)
	}
	return parsed, nil
}

// Requeue republishes a failed message with its retry count bumped.
func (s *StreamClient) Requeue(ctx context.Context, msg StreamMessage) error {
	switch msg.Kind {
	case KindTransaction:
		msg.Transaction.RetryCount++
		_, err := s.PublishTransaction(ctx, msg.Transaction)
		return err
	case KindFeedback:
		msg.Feedback.RetryCount++
		_, err := s.PublishFeedback(ctx, msg.Feedback)
		return err
	}
	return fmt.Errorf("unknown event kind %q", msg.Kind)
}

// RetryCount returns the message's current retry count.
func (m StreamMessage) RetryCount() int {
	switch m.Kind {
	case KindTransaction:
		return m.Transaction.RetryCount
	case KindFeedback:
		return m.Feedback.RetryCount
	}
	return 0
}

// Acknowledge marks a message processed.
func (s *StreamClient) Acknowledge(ctx context.Context, messageID string) error {
	if _, err := s.client.XAck(ctx, s.streamName, s.consumerGroup, messageID).Result(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// AcknowledgeBatch marks multiple messages processed.
func (s *StreamClient) AcknowledgeBatch(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if _, err := s.client.XAck(ctx, s.streamName, s.consumerGroup, messageIDs...).Result(); err != nil {
		return fmt.Errorf("failed to acknowledge messages: %w", err)
	}
	log.Debug().Int("count", len(messageIDs)).Msg("Messages acknowledged")
	return nil
}

// SendToDeadLetter parks a message that exhausted its retries.
func (s *StreamClient) SendToDeadLetter(ctx context.Context, msg StreamMessage, cause error) error {
	var payload interface{}
	switch msg.Kind {
	case KindTransaction:
		payload = msg.Transaction
	case KindFeedback:
		payload = msg.Feedback
	}
	eventJSON, _ := json.Marshal(payload)

	_, dlqErr := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.deadLetterStream,
		Values: map[string]interface{}{
			"kind":  msg.Kind,
			"data":  string(eventJSON),
			"error": cause.Error(),
		},
	}).Result()
	if dlqErr != nil {
		return fmt.Errorf("failed to send to dead letter: %w", dlqErr)
	}

	log.Warn().Str("kind", msg.Kind).Err(cause).Msg("Message sent to dead letter queue")
	return nil
}

// PendingCount returns the number of unacknowledged messages.
func (s *StreamClient) PendingCount(ctx context.Context) (int64, error) {
	pending, err := s.client.XPending(ctx, s.streamName, s.consumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

// Close closes the Redis client.
func (s *StreamClient) Close() error {
	return s.client.Close()
}

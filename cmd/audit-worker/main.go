package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/configs"
	"github.com/seniorshield/fraud-engine/internal/models"
	"github.com/seniorshield/fraud-engine/internal/queue"
	"github.com/seniorshield/fraud-engine/internal/repositories"
)

// This worker does not score transactions (the Redis Stream workers
// handle that). It tails the Debezium CDC feed over the transactions
// table to build the audit trail: every score change and review
// decision is captured, counted, and persisted.

// DebeziumMessage represents a CDC event from Debezium
type DebeziumMessage struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource contains metadata about the change
type DebeziumSource struct {
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	DB        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	LSN       int64  `json:"lsn"`
}

// TransactionCDC is a transactions row as it appears in the CDC payload.
type TransactionCDC struct {
	ID              string  `json:"id"`
	AccountID       string  `json:"account_id"`
	UserID          string  `json:"user_id"`
	Merchant        string  `json:"merchant"`
	Category        string  `json:"category"`
	Amount          float64 `json:"amount"`
	SuspiciousScore float64 `json:"suspicious_score"`
	IsFlagged       bool    `json:"is_flagged"`
	ReviewStatus    string  `json:"review_status"`
}

// AuditEvent is the normalized change event published to the dashboard
// cache and persisted to the audit trail.
type AuditEvent struct {
	EventType     string                 `json:"event_type"`
	TransactionID string                 `json:"transaction_id"`
	UserID        string                 `json:"user_id"`
	Merchant      string                 `json:"merchant"`
	Category      string                 `json:"category"`
	Score         float64                `json:"score"`
	PrevScore     float64                `json:"prev_score,omitempty"`
	IsFlagged     bool                   `json:"is_flagged"`
	ReviewStatus  string                 `json:"review_status,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CDCTimestamp  int64                  `json:"cdc_timestamp_ms"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// PipelineMetrics tracks live audit pipeline counters.
type PipelineMetrics struct {
	mu                  sync.RWMutex
	TransactionsCreated int64
	ScoresRecorded      int64
	TransactionsFlagged int64
	ReviewsRecorded     int64
	ReviewDecisions     map[string]int64
	LastEventTime       time.Time
	EventsPerSecond     float64
	windowStart         time.Time
	windowCount         int64
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		ReviewDecisions: make(map[string]int64),
		windowStart:     time.Now(),
	}
}

func (m *PipelineMetrics) RecordEvent(event *AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastEventTime = time.Now()
	m.windowCount++

	elapsed := time.Since(m.windowStart).Seconds()
	if elapsed > 0 {
		m.EventsPerSecond = float64(m.windowCount) / elapsed
	}
	if elapsed > 60 {
		m.windowStart = time.Now()
		m.windowCount = 0
	}

	switch event.EventType {
	case "transaction_created":
		m.TransactionsCreated++
	case "score_changed":
		m.ScoresRecorded++
		if event.IsFlagged {
			m.TransactionsFlagged++
		}
	case "transaction_reviewed":
		m.ReviewsRecorded++
		m.ReviewDecisions[event.ReviewStatus]++
	}
}

func (m *PipelineMetrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"transactions_created": m.TransactionsCreated,
		"scores_recorded":      m.ScoresRecorded,
		"transactions_flagged": m.TransactionsFlagged,
		"reviews_recorded":     m.ReviewsRecorded,
		"review_decisions":     m.ReviewDecisions,
		"events_per_second":    m.EventsPerSecond,
		"last_event_time":      m.LastEventTime,
	}
}

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENVIRONMENT") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := configs.Load()

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Strs("topics", cfg.Kafka.Topics).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("Starting fraud audit pipeline")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cacheClient.Close()

	auditRepo := repositories.NewAuditRepository(db)
	metrics := NewPipelineMetrics()

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	handler := &AuditPipelineHandler{
		metrics:     metrics,
		auditRepo:   auditRepo,
		cacheClient: cacheClient,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping audit pipeline...")
		cancel()
	}()

	go handler.startMetricsReporter(ctx)

	for {
		if err := consumerGroup.Consume(ctx, cfg.Kafka.Topics, handler); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down audit pipeline")
			return
		}
	}
}

// AuditPipelineHandler processes CDC events into the audit trail
type AuditPipelineHandler struct {
	metrics     *PipelineMetrics
	auditRepo   *repositories.AuditRepository
	cacheClient *queue.CacheClient
}

func (h *AuditPipelineHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Audit pipeline session started")
	return nil
}

func (h *AuditPipelineHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Audit pipeline session ended")
	return nil
}

func (h *AuditPipelineHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *AuditPipelineHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var debeziumMsg DebeziumMessage
	if err := json.Unmarshal(message.Value, &debeziumMsg); err != nil {
		log.Error().Err(err).Msg("Failed to parse Debezium message")
		return
	}

	var tx TransactionCDC
	var prevTx *TransactionCDC

	if debeziumMsg.After != nil {
		if err := json.Unmarshal(debeziumMsg.After, &tx); err != nil {
			log.Error().Err(err).Msg("Failed to parse transaction from CDC payload")
			return
		}
	}

	if debeziumMsg.Before != nil {
		prevTx = &TransactionCDC{}
		if err := json.Unmarshal(debeziumMsg.Before, prevTx); err != nil {
			prevTx = nil
		}
	}

	event := buildAuditEvent(&debeziumMsg, &tx, prevTx)
	if event == nil {
		return
	}

	h.metrics.RecordEvent(event)
	h.logEvent(event)
	h.storeAuditEvent(ctx, event)
}

// buildAuditEvent classifies the row change. Updates that touch neither
// the score nor the review status carry no audit value and are dropped.
func buildAuditEvent(msg *DebeziumMessage, tx *TransactionCDC, prevTx *TransactionCDC) *AuditEvent {
	event := &AuditEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Merchant:      tx.Merchant,
		Category:      tx.Category,
		Score:         tx.SuspiciousScore,
		IsFlagged:     tx.IsFlagged,
		Timestamp:     time.Now(),
		CDCTimestamp:  msg.TsMs,
		Metadata: map[string]interface{}{
			"table":     msg.Source.Table,
			"lsn":       msg.Source.LSN,
			"connector": msg.Source.Connector,
		},
	}

	switch msg.Op {
	case "c":
		event.EventType = "transaction_created"
	case "u":
		switch {
		case prevTx != nil && prevTx.ReviewStatus != tx.ReviewStatus:
			event.EventType = "transaction_reviewed"
			event.ReviewStatus = tx.ReviewStatus
		case prevTx == nil || prevTx.SuspiciousScore != tx.SuspiciousScore || prevTx.IsFlagged != tx.IsFlagged:
			event.EventType = "score_changed"
			if prevTx != nil {
				event.PrevScore = prevTx.SuspiciousScore
			}
		default:
			return nil
		}
	default:
		return nil
	}

	return event
}

func (h *AuditPipelineHandler) logEvent(event *AuditEvent) {
	switch event.EventType {
	case "transaction_created":
		log.Info().
			Str("tx_id", event.TransactionID).
			Str("merchant", event.Merchant).
			Msg("Transaction captured")
	case "score_changed":
		log.Info().
			Str("tx_id", event.TransactionID).
			Float64("score", event.Score).
			Float64("prev_score", event.PrevScore).
			Bool("flagged", event.IsFlagged).
			Msg("Score change captured")
	case "transaction_reviewed":
		log.Info().
			Str("tx_id", event.TransactionID).
			Str("decision", event.ReviewStatus).
			Msg("Review decision captured")
	}
}

func (h *AuditPipelineHandler) storeAuditEvent(ctx context.Context, event *AuditEvent) {
	entry := &models.AuditLog{
		EventType: event.EventType,
		Payload: models.JSONB{
			"merchant":      event.Merchant,
			"category":      event.Category,
			"score":         event.Score,
			"prev_score":    event.PrevScore,
			"is_flagged":    event.IsFlagged,
			"review_status": event.ReviewStatus,
			"cdc_ts_ms":     event.CDCTimestamp,
		},
	}
	if id, err := uuid.Parse(event.TransactionID); err == nil {
		entry.EntityID = id
	}
	if id, err := uuid.Parse(event.UserID); err == nil {
		entry.UserID = id
	}

	if err := h.auditRepo.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("tx_id", event.TransactionID).Msg("Failed to persist audit event")
	}

	// Keep the last 1000 events in Redis for the dashboard.
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return
	}
	key := "audit:recent_events"
	if err := h.cacheClient.LPush(ctx, key, string(eventJSON)); err != nil {
		return
	}
	_ = h.cacheClient.LTrim(ctx, key, 0, 999)
}

func (h *AuditPipelineHandler) startMetricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := h.metrics.GetSnapshot()
			log.Info().
				Int64("created", snapshot["transactions_created"].(int64)).
				Int64("scored", snapshot["scores_recorded"].(int64)).
				Int64("flagged", snapshot["transactions_flagged"].(int64)).
				Int64("reviewed", snapshot["reviews_recorded"].(int64)).
				Float64("events_per_sec", snapshot["events_per_second"].(float64)).
				Msg("Audit pipeline metrics")

		case <-ctx.Done():
			return
		}
	}
}

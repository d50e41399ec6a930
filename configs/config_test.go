package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "fraud-events", cfg.Redis.StreamName)
	assert.Equal(t, "scoring-workers", cfg.Redis.ConsumerGroup)
	assert.Equal(t, "fraud-events-dlq", cfg.Redis.DeadLetterStream)
	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, 100, cfg.Worker.BatchSize)
	assert.Equal(t, time.Hour, cfg.Reminder.Interval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("REMINDER_INTERVAL", "30m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := Load()

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 12, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "lots")
	t.Setenv("REMINDER_INTERVAL", "soon")

	cfg := Load()

	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, time.Hour, cfg.Reminder.Interval)
}

package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/configs"
	"github.com/seniorshield/fraud-engine/internal/queue"
)

// Worker consumes fraud events from the Redis stream and drives the
// scoring service: transaction events trigger analysis, feedback events
// trigger model updates plus the retrospective sweep.
type Worker struct {
	id           string
	service      *Service
	streamClient *queue.StreamClient
	config       configs.WorkerConfig
	wg           sync.WaitGroup
	stopCh       chan struct{}
	metrics      *WorkerMetrics
}

// WorkerMetrics tracks worker throughput.
type WorkerMetrics struct {
	mu                sync.RWMutex
	ProcessedCount    int64
	FailedCount       int64
	TotalProcessingMs int64
	LastProcessedAt   time.Time
}

// NewWorker creates a scoring worker.
func NewWorker(id string, service *Service, streamClient *queue.StreamClient, config configs.WorkerConfig) *Worker {
	return &Worker{
		id:           id,
		service:      service,
		streamClient: streamClient,
		config:       config,
		stopCh:       make(chan struct{}),
		metrics:      &WorkerMetrics{},
	}
}

// Start runs the worker's consumer goroutines until the context is
// cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	log.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting scoring worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, fmt.Sprintf("%s-%d", w.id, i))
	}

	<-ctx.Done()
	return w.Stop()
}

// Stop stops the worker and waits for in-flight batches.
func (w *Worker) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	w.wg.Wait()
	log.Info().Str("worker_id", w.id).Msg("Worker stopped")
	return nil
}

func (w *Worker) processLoop(ctx context.Context, consumerName string) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			w.processBatch(ctx, consumerName)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, consumerName string) {
	messages, err := w.streamClient.Consume(ctx, consumerName, int64(w.config.BatchSize), w.config.PollInterval)
	if err != nil {
		log.Error().Err(err).Str("consumer", consumerName).Msg("Failed to consume messages")
		time.Sleep(time.Second)
		return
	}
	if len(messages) == 0 {
		return
	}

	var ackIDs []string
	for _, msg := range messages {
		if err := w.processMessage(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("message_id", msg.ID).
				Str("kind", msg.Kind).
				Msg("Failed to process message")

			if msg.RetryCount() < w.config.RetryAttempts {
				if reqErr := w.streamClient.Requeue(ctx, msg); reqErr != nil {
					log.Error().Err(reqErr).Msg("Failed to requeue message")
				}
			} else {
				if dlqErr := w.streamClient.SendToDeadLetter(ctx, msg, err); dlqErr != nil {
					log.Error().Err(dlqErr).Msg("Failed to send to dead letter queue")
				}
			}

			w.metrics.mu.Lock()
			w.metrics.FailedCount++
			w.metrics.mu.Unlock()
		}
		ackIDs = append(ackIDs, msg.ID)
	}

	if err := w.streamClient.AcknowledgeBatch(ctx, ackIDs); err != nil {
		log.Error().Err(err).Msg("Failed to acknowledge messages")
	}
}

func (w *Worker) processMessage(ctx context.Context, msg queue.StreamMessage) error {
	startTime := time.Now()

	var err error
	switch msg.Kind {
	case queue.KindTransaction:
		err = w.handleTransaction(ctx, msg)
	case queue.KindFeedback:
		err = w.handleFeedback(ctx, msg)
	default:
		err = fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if err != nil {
		return err
	}

	w.metrics.mu.Lock()
	w.metrics.ProcessedCount++
	w.metrics.TotalProcessingMs += time.Since(startTime).Milliseconds()
	w.metrics.LastProcessedAt = time.Now()
	w.metrics.mu.Unlock()
	return nil
}

func (w *Worker) handleTransaction(ctx context.Context, msg queue.StreamMessage) error {
	txID, err := uuid.Parse(msg.Transaction.TransactionID)
	if err != nil {
		return fmt.Errorf("invalid transaction_id: %w", err)
	}
	userID, err := uuid.Parse(msg.Transaction.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}

	tx, err := w.service.store.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	if _, err := w.service.AnalyzeTransaction(ctx, tx, userID); err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}
	return nil
}

func (w *Worker) handleFeedback(ctx context.Context, msg queue.StreamMessage) error {
	txID, err := uuid.Parse(msg.Feedback.TransactionID)
	if err != nil {
		return fmt.Errorf("invalid transaction_id: %w", err)
	}
	userID, err := uuid.Parse(msg.Feedback.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}

	tx, err := w.service.store.GetTransaction(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	if err := w.service.SubmitFeedback(ctx, tx, userID, msg.Feedback.IsActuallyFraud); err != nil {
		return fmt.Errorf("feedback failed: %w", err)
	}
	return nil
}

// GetMetrics returns a copy of the worker metrics.
func (w *Worker) GetMetrics() WorkerMetrics {
	w.metrics.mu.RLock()
	defer w.metrics.mu.RUnlock()
	return WorkerMetrics{
		ProcessedCount:    w.metrics.ProcessedCount,
		FailedCount:       w.metrics.FailedCount,
		TotalProcessingMs: w.metrics.TotalProcessingMs,
		LastProcessedAt:   w.metrics.LastProcessedAt,
	}
}

// WorkerPool manages multiple workers sharing one service.
type WorkerPool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewWorkerPool creates numWorkers workers over the same service and
// stream client.
func NewWorkerPool(numWorkers int, service *Service, streamClient *queue.StreamClient, config configs.WorkerConfig) *WorkerPool {
	pool := &WorkerPool{
		workers: make([]*Worker, numWorkers),
	}
	for i := 0; i < numWorkers; i++ {
		pool.workers[i] = NewWorker(fmt.Sprintf("worker-%d", i), service, streamClient, config)
	}
	return pool
}

// Start starts all workers and blocks until the first error or context
// cancellation.
func (p *WorkerPool) Start(ctx context.Context) error {
	log.Info().Int("num_workers", len(p.workers)).Msg("Starting worker pool")

	errCh := make(chan error, len(p.workers))
	for _, worker := range p.workers {
		w := worker
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := w.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops all workers.
func (p *WorkerPool) Stop() error {
	for _, worker := range p.workers {
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Str("worker_id", worker.id).Msg("Failed to stop worker")
		}
	}
	p.wg.Wait()
	log.Info().Msg("Worker pool stopped")
	return nil
}

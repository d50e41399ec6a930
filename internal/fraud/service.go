package fraud

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// ResultCache caches risk results keyed by transaction. Backed by Redis
// in production; nil disables caching.
type ResultCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

const resultCacheTTL = 24 * time.Hour

// ScoreHistory records every scoring outcome for audit. nil disables
// recording; failures never block the scoring path.
type ScoreHistory interface {
	Record(ctx context.Context, tx *models.Transaction, result *RiskResult) error
}

// Service wires the engine to storage and alerting: it loads context,
// runs the analysis, persists the score, and raises alerts. All state
// mutation happens here, never inside the engine.
type Service struct {
	engine     *Engine
	reanalyzer *Reanalyzer
	store      Store
	cache      ResultCache
	history    ScoreHistory

	initOnce sync.Once
	initErr  error
}

// NewService creates a scoring service over the given store. cache may be
// nil.
func NewService(engine *Engine, store Store, cache ResultCache) *Service {
	return &Service{
		engine:     engine,
		reanalyzer: NewReanalyzer(engine, store),
		store:      store,
		cache:      cache,
	}
}

// SetScoreHistory enables score audit recording.
func (s *Service) SetScoreHistory(h ScoreHistory) {
	s.history = h
}

// Initialize trains the engine from the stored transaction population.
// Safe to call more than once; training runs only on the first call.
func (s *Service) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		start := time.Now()
		population, err := s.store.GetAllTransactions(ctx)
		if err != nil {
			s.initErr = fmt.Errorf("failed to load training population: %w", err)
			return
		}
		if err := s.engine.Initialize(population); err != nil {
			s.initErr = fmt.Errorf("failed to initialize risk engine: %w", err)
			return
		}
		log.Info().
			Dur("elapsed", time.Since(start)).
			Msg("Fraud service initialized")
	})
	return s.initErr
}

// AnalyzeTransaction scores a transaction, persists the score and flag
// (review status untouched), creates a suspicious-transaction alert when
// flagged, and caches the result.
func (s *Service) AnalyzeTransaction(ctx context.Context, tx *models.Transaction, userID uuid.UUID) (*RiskResult, error) {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Profile unavailable, scoring without context")
		profile = nil
	}

	history, err := s.store.GetTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	result, err := s.engine.Analyze(tx, userID, history, profile)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	if err := s.store.UpdateScore(ctx, tx.ID, result.SuspiciousScore, result.IsAnomaly); err != nil {
		return nil, fmt.Errorf("failed to persist score: %w", err)
	}

	if result.IsAnomaly {
		alert := &models.Alert{
			UserID:        userID,
			TransactionID: &tx.ID,
			AlertType:     models.AlertSuspiciousTransaction,
			Severity:      result.Severity(),
			Title:         "Suspicious Transaction Detected",
			Description: fmt.Sprintf(
				"Transaction of %.2f at %s has been flagged as suspicious with a risk score of %.0f/100.",
				math.Abs(tx.Amount), tx.Merchant, result.SuspiciousScore),
		}
		if err := s.store.CreateAlert(ctx, alert); err != nil {
			log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("Failed to create alert")
		}
	}

	if s.history != nil {
		if err := s.history.Record(ctx, tx, result); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("Failed to record score history")
		}
	}

	s.cacheResult(ctx, tx.ID, result)

	return result, nil
}

// SubmitFeedback folds a user's fraud verdict into that user's models and
// then replays the engine over their history to catch assessments the new
// knowledge changes.
func (s *Service) SubmitFeedback(ctx context.Context, tx *models.Transaction, userID uuid.UUID, isActuallyFraud bool) error {
	history, err := s.store.GetTransactionsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	s.engine.Feedback(tx, userID, isActuallyFraud, history)

	if err := s.reanalyzer.Reanalyze(ctx, userID, history); err != nil {
		return fmt.Errorf("retrospective reanalysis failed: %w", err)
	}
	return nil
}

// AnalyzeBatch scores a set of transactions, returning results keyed by
// transaction ID. Individual failures are logged and skipped so one bad
// transaction cannot sink the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, transactions []*models.Transaction) (map[uuid.UUID]*RiskResult, error) {
	results := make(map[uuid.UUID]*RiskResult, len(transactions))
	for _, tx := range transactions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.AnalyzeTransaction(ctx, tx, tx.UserID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("Batch analysis failed for transaction")
			continue
		}
		results[tx.ID] = result
	}
	return results, nil
}

// Reanalyze exposes the retrospective sweep for explicit triggers.
func (s *Service) Reanalyze(ctx context.Context, userID uuid.UUID) error {
	history, err := s.store.GetTransactionsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return s.reanalyzer.Reanalyze(ctx, userID, history)
}

func (s *Service) cacheResult(ctx context.Context, txID uuid.UUID, result *RiskResult) {
	if s.cache == nil {
		return
	}
	key := fmt.Sprintf("risk_result:%s", txID)
	if err := s.cache.Set(ctx, key, result, resultCacheTTL); err != nil {
		log.Warn().Err(err).Str("transaction_id", txID.String()).Msg("Failed to cache risk result")
	}
}

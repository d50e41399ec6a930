package fraud

import (
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// Combination weights and the flag threshold. Empirical constants carried
// over for behavioral compatibility; they have no documented statistical
// derivation, so treat a change here as a scoring-behavior change, not a
// tuning tweak.
const (
	weightAnomaly    = 0.30
	weightBehavioral = 0.25
	weightClassifier = 0.25
	weightProfile    = 0.20

	// FlagThreshold is the single flagging threshold used throughout the
	// system. A transaction is anomalous when its score is strictly
	// greater than this.
	FlagThreshold = 70.0

	// HighSeverityThreshold promotes an alert from medium to high.
	HighSeverityThreshold = 90.0
)

// RiskResult is the immutable outcome of analyzing one transaction. The
// engine never persists anything; the caller owns score storage and alert
// creation.
type RiskResult struct {
	SuspiciousScore    float64       `json:"suspicious_score"`
	IsAnomaly          bool          `json:"is_anomaly"`
	AnomalyScore       float64       `json:"anomaly_score"`
	BehavioralScore    float64       `json:"behavioral_score"`
	ClassifierScore    float64       `json:"classifier_score"`
	ProfileScore       float64       `json:"profile_score"`
	OriginalScore      float64       `json:"original_score"`
	ProfileAdjustments []string      `json:"profile_adjustments"`
	Features           FeatureVector `json:"features"`
}

// Severity returns the alert severity for this result.
func (r *RiskResult) Severity() string {
	if r.SuspiciousScore >= HighSeverityThreshold {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// Engine combines the anomaly, behavioral, classifier, and profile
// signals into the final suspicious score. Analyze performs no I/O, so it
// can be exercised in isolation; the per-user classifier and profile
// state it owns are the only mutable pieces, serialized per user.
type Engine struct {
	anomaly    *AnomalyDetector
	profiler   *BehavioralProfiler
	classifier *Classifier
	adjuster   *ProfileAdjuster

	userLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewEngine creates an engine with fresh model state.
func NewEngine() *Engine {
	return &Engine{
		anomaly:    NewAnomalyDetector(),
		profiler:   NewBehavioralProfiler(),
		classifier: NewClassifier(),
		adjuster:   NewProfileAdjuster(),
	}
}

// Anomaly exposes the shared anomaly detector for startup training.
func (e *Engine) Anomaly() *AnomalyDetector {
	return e.anomaly
}

// Profiler exposes the behavioral profiler for startup initialization.
func (e *Engine) Profiler() *BehavioralProfiler {
	return e.profiler
}

// Classifier exposes the per-user classifier store.
func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

func (e *Engine) lockUser(userID uuid.UUID) *sync.Mutex {
	mu, _ := e.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Initialize trains the anomaly model over the whole population and
// builds per-user profiles and classifiers. Expected to run once at
// startup; it may take seconds on a large population.
func (e *Engine) Initialize(population []*models.Transaction) error {
	if err := e.anomaly.Train(population); err != nil {
		if !errors.Is(err, ErrInsufficientData) {
			return err
		}
		// Fresh deployment with an empty table; Analyze trains on demand
		// once history exists.
		log.Warn().Msg("No stored transactions to train the anomaly model from")
	}

	byUser := make(map[uuid.UUID][]*models.Transaction)
	for _, tx := range population {
		byUser[tx.UserID] = append(byUser[tx.UserID], tx)
	}

	for userID, txs := range byUser {
		e.profiler.UpdateProfile(userID, txs)

		labels := make([]bool, len(txs))
		for i, t := range txs {
			labels[i] = t.IsFlagged
		}
		if err := e.classifier.Train(userID, txs, labels); err != nil {
			return err
		}
	}

	log.Info().
		Int("population", len(population)).
		Int("users", len(byUser)).
		Msg("Risk engine initialized")

	return nil
}

// Analyze scores one transaction against the user's history and profile.
// If the anomaly model has not been trained yet it is trained on demand
// from the supplied history; an untrained model is an operational gap,
// not a reason to fail the request.
func (e *Engine) Analyze(tx *models.Transaction, userID uuid.UUID, history []*models.Transaction, profile *models.UserProfile) (*RiskResult, error) {
	mu := e.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	anomalyScore, err := e.anomaly.Score(tx, history)
	if errors.Is(err, ErrNotTrained) {
		log.Warn().
			Str("transaction_id", tx.ID.String()).
			Msg("Anomaly model untrained, training from available history")
		if trainErr := e.anomaly.Train(history); trainErr != nil {
			// Nothing to train on either; degrade to a neutral signal.
			anomalyScore = 0
		} else {
			anomalyScore, err = e.anomaly.Score(tx, history)
			if err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	behavioralScore := e.profiler.ScoreDeviation(userID, tx)

	result := e.compose(tx, userID, history, profile, anomalyScore, behavioralScore)

	log.Debug().
		Str("transaction_id", tx.ID.String()).
		Float64("suspicious_score", result.SuspiciousScore).
		Float64("anomaly_score", result.AnomalyScore).
		Float64("behavioral_score", result.BehavioralScore).
		Float64("classifier_score", result.ClassifierScore).
		Float64("profile_score", result.ProfileScore).
		Bool("is_anomaly", result.IsAnomaly).
		Strs("adjustments", result.ProfileAdjustments).
		Msg("Transaction analyzed")

	return result, nil
}

// AnalyzeHistorical scores a stored transaction as of its own date. The
// shared anomaly model and the stored behavioral baseline already reflect
// the transaction being judged, so they cannot be used to judge it: the
// anomaly model and behavioral baseline are rebuilt from the strictly
// prior transactions instead. Retraining per transaction is slow enough
// to keep this out of the live scoring path; replay sweeps run in the
// background.
func (e *Engine) AnalyzeHistorical(tx *models.Transaction, userID uuid.UUID, prior []*models.Transaction, profile *models.UserProfile) (*RiskResult, error) {
	mu := e.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	var anomalyScore float64
	if model, err := fitAutoencoder(prior); err == nil {
		detector := &AnomalyDetector{model: model}
		anomalyScore, err = detector.Score(tx, prior)
		if err != nil {
			return nil, err
		}
	}

	behavioralScore := e.profiler.DeviationFrom(prior, tx)

	return e.compose(tx, userID, prior, profile, anomalyScore, behavioralScore), nil
}

func (e *Engine) compose(tx *models.Transaction, userID uuid.UUID, history []*models.Transaction, profile *models.UserProfile, anomalyScore, behavioralScore float64) *RiskResult {
	classifierScore := e.classifier.Predict(userID, tx, history)
	profileScore := e.adjuster.HeuristicScore(tx, profile)

	combined := math.Round(
		anomalyScore*weightAnomaly +
			behavioralScore*weightBehavioral +
			classifierScore*weightClassifier +
			profileScore*weightProfile)

	adjustment := e.adjuster.Adjust(combined, tx, profile)

	return &RiskResult{
		SuspiciousScore:    adjustment.Score,
		IsAnomaly:          adjustment.Score > FlagThreshold,
		AnomalyScore:       anomalyScore,
		BehavioralScore:    behavioralScore,
		ClassifierScore:    classifierScore,
		ProfileScore:       profileScore,
		OriginalScore:      adjustment.OriginalScore,
		ProfileAdjustments: adjustment.Reasons,
		Features:           ExtractFeatures(tx, history),
	}
}

// Feedback incorporates a user's fraud verdict: the behavioral profile is
// rebuilt with the transaction included and the classifier takes an
// online update. Serialized per user so feedback cannot race a scoring
// pass over the same models.
func (e *Engine) Feedback(tx *models.Transaction, userID uuid.UUID, isActuallyFraud bool, history []*models.Transaction) {
	mu := e.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	withTx := make([]*models.Transaction, 0, len(history)+1)
	withTx = append(withTx, history...)
	withTx = append(withTx, tx)
	e.profiler.UpdateProfile(userID, withTx)

	e.classifier.Update(userID, tx, isActuallyFraud, history)

	log.Info().
		Str("transaction_id", tx.ID.String()).
		Str("user_id", userID.String()).
		Bool("is_fraud", isActuallyFraud).
		Msg("Feedback applied to user models")
}

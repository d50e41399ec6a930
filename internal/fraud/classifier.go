package fraud

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

const (
	classifierEpochs = 30
	classifierRate   = 0.05

	// Passes applied when folding a single feedback example into an
	// already-trained model.
	onlineUpdatePasses = 5
)

// userModel is one user's fraud classifier: logistic regression over the
// shared feature vector, trained on that user's history labeled by past
// flags. examples counts every labeled observation the model has seen.
type userModel struct {
	weights  [FeatureDim]float64
	bias     float64
	examples int
}

func (m *userModel) predict(x [FeatureDim]float64) float64 {
	z := m.bias
	for i := 0; i < FeatureDim; i++ {
		z += m.weights[i] * x[i]
	}
	return 1 / (1 + math.Exp(-z))
}

func (m *userModel) step(x [FeatureDim]float64, label float64, rate float64) {
	p := m.predict(x)
	grad := p - label
	for i := 0; i < FeatureDim; i++ {
		m.weights[i] -= rate * grad * x[i]
	}
	m.bias -= rate * grad
}

// Classifier maintains one trained model per user. Models are created
// lazily on first prediction and updated online from review feedback.
type Classifier struct {
	mu     sync.RWMutex
	models map[uuid.UUID]*userModel
}

// NewClassifier returns an empty per-user classifier store.
func NewClassifier() *Classifier {
	return &Classifier{
		models: make(map[uuid.UUID]*userModel),
	}
}

// Train fits (or refits) the user's model from labeled history. Labels
// must align one-to-one with transactions.
func (c *Classifier) Train(userID uuid.UUID, transactions []*models.Transaction, labels []bool) error {
	if len(transactions) != len(labels) {
		return ErrInsufficientData
	}

	model := &userModel{}
	for epoch := 0; epoch < classifierEpochs; epoch++ {
		for i, tx := range transactions {
			x := normalizedFeatures(tx, transactions)
			model.step(x, boolLabel(labels[i]), classifierRate)
		}
	}
	model.examples = len(transactions)

	c.mu.Lock()
	c.models[userID] = model
	c.mu.Unlock()

	log.Debug().
		Str("user_id", userID.String()).
		Int("examples", len(transactions)).
		Msg("Classifier trained")

	return nil
}

// Predict returns the 0-100 fraud likelihood for a transaction. If the
// user has no model yet, one is fit from the supplied history, labeled by
// each transaction's current flag. A model that has seen no examples
// contributes a neutral 0.
func (c *Classifier) Predict(userID uuid.UUID, tx *models.Transaction, history []*models.Transaction) float64 {
	c.mu.RLock()
	model, ok := c.models[userID]
	c.mu.RUnlock()

	if !ok {
		labels := make([]bool, len(history))
		for i, t := range history {
			labels[i] = t.IsFlagged
		}
		if err := c.Train(userID, history, labels); err != nil {
			return 0
		}
		c.mu.RLock()
		model = c.models[userID]
		c.mu.RUnlock()
	}

	if model.examples == 0 {
		return 0
	}

	x := normalizedFeatures(tx, history)

	c.mu.RLock()
	p := model.predict(x)
	c.mu.RUnlock()

	return math.Round(p * 100)
}

// Update folds one labeled example into the user's model without a full
// retrain. Creates the model from history first if absent.
func (c *Classifier) Update(userID uuid.UUID, tx *models.Transaction, isFraud bool, history []*models.Transaction) {
	c.mu.RLock()
	_, ok := c.models[userID]
	c.mu.RUnlock()

	if !ok {
		labels := make([]bool, len(history))
		for i, t := range history {
			labels[i] = t.IsFlagged
		}
		if err := c.Train(userID, history, labels); err != nil {
			return
		}
	}

	x := normalizedFeatures(tx, history)

	c.mu.Lock()
	model := c.models[userID]
	for i := 0; i < onlineUpdatePasses; i++ {
		model.step(x, boolLabel(isFraud), classifierRate)
	}
	model.examples++
	c.mu.Unlock()
}

// HasModel reports whether a trained model exists for the user.
func (c *Classifier) HasModel(userID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[userID]
	return ok
}

// normalizedFeatures squashes the unbounded feature components so a
// single large amount cannot saturate the logistic input.
func normalizedFeatures(tx *models.Transaction, history []*models.Transaction) [FeatureDim]float64 {
	v := ExtractFeatures(tx, history).Values()
	v[0] /= 24                 // hour
	v[2] = squash(v[2] / 1000) // amount
	v[3] = squash(v[3] / 10)   // merchant ratio
	v[4] = squash(v[4] / 10)   // category ratio
	v[5] = squash(v[5] / 10)   // velocity
	v[6] = squash(v[6] / 1000) // 24h total
	return v
}

func squash(x float64) float64 {
	return math.Tanh(x)
}

func boolLabel(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

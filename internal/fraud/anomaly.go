package fraud

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

const (
	autoencoderHidden = 4
	autoencoderEpochs = 50
	autoencoderRate   = 0.01
	trainingSeed      = 1

	// Fraction of the training population expected to sit above the
	// reconstruction-error threshold.
	anomalyTailFraction = 0.10
)

// AnomalyDetector scores transactions by reconstruction error against an
// autoencoder fit on a transaction population. Training is slow and runs
// at startup; scoring is a couple of matrix multiplies.
//
// The fitted model and its threshold are swapped atomically: readers see
// either the previous complete model or the new one, never a partial
// update.
type AnomalyDetector struct {
	mu    sync.RWMutex
	model *autoencoder
}

// NewAnomalyDetector returns an untrained detector.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{}
}

// Trained reports whether a model is available.
func (d *AnomalyDetector) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model != nil
}

// Train fits the autoencoder over the feature vectors of the population.
// Each transaction's features are computed against only the transactions
// that precede it. The decision threshold is fixed at the 90th percentile
// of training reconstruction error.
func (d *AnomalyDetector) Train(population []*models.Transaction) error {
	model, err := fitAutoencoder(population)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.model = model
	d.mu.Unlock()

	log.Info().
		Int("population", len(population)).
		Float64("threshold", model.threshold).
		Msg("Anomaly model trained")

	return nil
}

func fitAutoencoder(population []*models.Transaction) (*autoencoder, error) {
	if len(population) == 0 {
		return nil, ErrInsufficientData
	}

	vectors := make([][FeatureDim]float64, len(population))
	for i, tx := range population {
		vectors[i] = ExtractFeatures(tx, population).Values()
	}

	model := newAutoencoder(trainingSeed)
	model.fitScaler(vectors)
	model.fit(vectors)

	errs := make([]float64, len(vectors))
	for i, v := range vectors {
		errs[i] = model.reconstructionError(v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(errs)))
	idx := int(float64(len(errs)) * anomalyTailFraction)
	if idx >= len(errs) {
		idx = len(errs) - 1
	}
	model.threshold = errs[idx]
	if model.threshold <= 0 {
		// Degenerate population (all identical rows); any deviation at all
		// should score as anomalous.
		model.threshold = 1e-9
	}

	return model, nil
}

// Score returns the 0-100 anomaly score for a transaction. Returns
// ErrNotTrained if Train has not completed.
func (d *AnomalyDetector) Score(tx *models.Transaction, history []*models.Transaction) (float64, error) {
	d.mu.RLock()
	model := d.model
	d.mu.RUnlock()

	if model == nil {
		return 0, ErrNotTrained
	}

	features := ExtractFeatures(tx, history)
	errVal := model.reconstructionError(features.Values())
	score := math.Round((errVal / model.threshold) * 100)
	if score > 100 {
		score = 100
	}
	return score, nil
}

// autoencoder is a single-hidden-layer reconstruction model. Inputs are
// standardized with the training population's mean and deviation; both
// layers are trained with plain SGD on squared error.
type autoencoder struct {
	w1        [autoencoderHidden][FeatureDim]float64
	b1        [autoencoderHidden]float64
	w2        [FeatureDim][autoencoderHidden]float64
	b2        [FeatureDim]float64
	mean      [FeatureDim]float64
	stddev    [FeatureDim]float64
	threshold float64
}

func newAutoencoder(seed int64) *autoencoder {
	rng := rand.New(rand.NewSource(seed))
	a := &autoencoder{}
	scale := 1.0 / math.Sqrt(FeatureDim)
	for h := 0; h < autoencoderHidden; h++ {
		for i := 0; i < FeatureDim; i++ {
			a.w1[h][i] = (rng.Float64()*2 - 1) * scale
		}
	}
	for i := 0; i < FeatureDim; i++ {
		for h := 0; h < autoencoderHidden; h++ {
			a.w2[i][h] = (rng.Float64()*2 - 1) * scale
		}
	}
	for i := range a.stddev {
		a.stddev[i] = 1
	}
	return a
}

func (a *autoencoder) fitScaler(vectors [][FeatureDim]float64) {
	n := float64(len(vectors))
	for i := 0; i < FeatureDim; i++ {
		var sum float64
		for _, v := range vectors {
			sum += v[i]
		}
		a.mean[i] = sum / n

		var sq float64
		for _, v := range vectors {
			d := v[i] - a.mean[i]
			sq += d * d
		}
		sd := math.Sqrt(sq / n)
		if sd < 1e-9 {
			sd = 1
		}
		a.stddev[i] = sd
	}
}

func (a *autoencoder) standardize(v [FeatureDim]float64) [FeatureDim]float64 {
	var out [FeatureDim]float64
	for i := 0; i < FeatureDim; i++ {
		out[i] = (v[i] - a.mean[i]) / a.stddev[i]
	}
	return out
}

func (a *autoencoder) fit(vectors [][FeatureDim]float64) {
	for epoch := 0; epoch < autoencoderEpochs; epoch++ {
		for _, raw := range vectors {
			x := a.standardize(raw)
			hidden, out := a.forward(x)

			// Output layer delta: linear activation, squared error.
			var dOut [FeatureDim]float64
			for i := 0; i < FeatureDim; i++ {
				dOut[i] = out[i] - x[i]
			}

			// Hidden layer delta through ReLU.
			var dHidden [autoencoderHidden]float64
			for h := 0; h < autoencoderHidden; h++ {
				if hidden[h] <= 0 {
					continue
				}
				var sum float64
				for i := 0; i < FeatureDim; i++ {
					sum += dOut[i] * a.w2[i][h]
				}
				dHidden[h] = sum
			}

			for i := 0; i < FeatureDim; i++ {
				for h := 0; h < autoencoderHidden; h++ {
					a.w2[i][h] -= autoencoderRate * dOut[i] * hidden[h]
				}
				a.b2[i] -= autoencoderRate * dOut[i]
			}
			for h := 0; h < autoencoderHidden; h++ {
				for i := 0; i < FeatureDim; i++ {
					a.w1[h][i] -= autoencoderRate * dHidden[h] * x[i]
				}
				a.b1[h] -= autoencoderRate * dHidden[h]
			}
		}
	}
}

func (a *autoencoder) forward(x [FeatureDim]float64) ([autoencoderHidden]float64, [FeatureDim]float64) {
	var hidden [autoencoderHidden]float64
	for h := 0; h < autoencoderHidden; h++ {
		sum := a.b1[h]
		for i := 0; i < FeatureDim; i++ {
			sum += a.w1[h][i] * x[i]
		}
		if sum > 0 {
			hidden[h] = sum
		}
	}

	var out [FeatureDim]float64
	for i := 0; i < FeatureDim; i++ {
		sum := a.b2[i]
		for h := 0; h < autoencoderHidden; h++ {
			sum += a.w2[i][h] * hidden[h]
		}
		out[i] = sum
	}
	return hidden, out
}

func (a *autoencoder) reconstructionError(raw [FeatureDim]float64) float64 {
	x := a.standardize(raw)
	_, out := a.forward(x)
	var sum float64
	for i := 0; i < FeatureDim; i++ {
		d := out[i] - x[i]
		sum += d * d
	}
	return sum / FeatureDim
}

package fraud

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seniorshield/fraud-engine/internal/models"
)

func trainingPopulation(userID uuid.UUID) []*models.Transaction {
	base := time.Date(2025, 4, 1, 11, 0, 0, 0, time.UTC)
	var population []*models.Transaction
	for i := 0; i < 30; i++ {
		amount := -40.0 - float64(i%5)*10
		population = append(population,
			makeTx(userID, "Safeway", models.CategoryGrocery, amount, base.AddDate(0, 0, i)))
	}
	return population
}

func TestAnomalyScoreUntrained(t *testing.T) {
	d := NewAnomalyDetector()
	assert.False(t, d.Trained())

	_, err := d.Score(makeTx(uuid.New(), "Safeway", models.CategoryGrocery, -50, time.Now()), nil)
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestAnomalyTrainEmpty(t *testing.T) {
	d := NewAnomalyDetector()
	assert.ErrorIs(t, d.Train(nil), ErrInsufficientData)
}

func TestAnomalyScoreBounds(t *testing.T) {
	userID := uuid.New()
	population := trainingPopulation(userID)

	d := NewAnomalyDetector()
	require.NoError(t, d.Train(population))
	assert.True(t, d.Trained())

	for _, tx := range population {
		score, err := d.Score(tx, population)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestAnomalyExtremeOutlierSaturates(t *testing.T) {
	userID := uuid.New()
	population := trainingPopulation(userID)

	d := NewAnomalyDetector()
	require.NoError(t, d.Train(population))

	outlier := makeTx(userID, "Lucky Star Casino", models.CategoryEntertainment, -50000,
		time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))

	score, err := d.Score(outlier, population)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestAnomalyTrainingDeterministic(t *testing.T) {
	userID := uuid.New()
	population := trainingPopulation(userID)
	probe := makeTx(userID, "Chevron", models.CategoryGasStation, -75,
		time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC))

	d1 := NewAnomalyDetector()
	require.NoError(t, d1.Train(population))
	s1, err := d1.Score(probe, population)
	require.NoError(t, err)

	d2 := NewAnomalyDetector()
	require.NoError(t, d2.Train(population))
	s2, err := d2.Score(probe, population)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
}

func TestAnomalyRetrainReplacesModel(t *testing.T) {
	userID := uuid.New()
	d := NewAnomalyDetector()
	require.NoError(t, d.Train(trainingPopulation(userID)))

	// Retraining on a different population must still leave a usable model.
	base := time.Date(2025, 5, 1, 20, 0, 0, 0, time.UTC)
	var other []*models.Transaction
	for i := 0; i < 20; i++ {
		other = append(other,
			makeTx(userID, "Chevron", models.CategoryGasStation, -60-float64(i), base.AddDate(0, 0, i)))
	}
	require.NoError(t, d.Train(other))

	score, err := d.Score(other[0], other)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

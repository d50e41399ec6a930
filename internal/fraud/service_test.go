package fraud

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seniorshield/fraud-engine/internal/models"
)

type memCache struct {
	mu   sync.Mutex
	keys map[string]interface{}
}

func newMemCache() *memCache {
	return &memCache{keys: make(map[string]interface{})}
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = value
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok
}

func serviceFixture(t *testing.T, flaggedHistory bool) (*Service, *memStore, uuid.UUID) {
	t.Helper()

	userID := uuid.New()
	base := time.Date(2025, 4, 1, 11, 0, 0, 0, time.UTC)

	store := newMemStore()
	for i := 0; i < 25; i++ {
		tx := makeTx(userID, "Safeway", models.CategoryGrocery, -50, base.AddDate(0, 0, i*2))
		tx.IsFlagged = flaggedHistory
		store.add(tx)
	}

	service := NewService(NewEngine(), store, nil)
	require.NoError(t, service.Initialize(context.Background()))
	return service, store, userID
}

func TestServiceInitializeEmptyStore(t *testing.T) {
	service := NewService(NewEngine(), newMemStore(), nil)
	require.NoError(t, service.Initialize(context.Background()))
}

func TestServiceAnalyzeTypicalTransaction(t *testing.T) {
	service, store, userID := serviceFixture(t, false)

	tx := makeTx(userID, "Safeway", models.CategoryGrocery, -55,
		time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	store.add(tx)

	result, err := service.AnalyzeTransaction(context.Background(), tx, userID)
	require.NoError(t, err)

	assert.False(t, result.IsAnomaly)
	assert.Empty(t, store.alertsOfType(models.AlertSuspiciousTransaction))

	stored, err := store.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, result.SuspiciousScore, stored.SuspiciousScore)
}

func TestServiceAnalyzeFlagsOutlier(t *testing.T) {
	service, store, userID := serviceFixture(t, true)

	// The user's profile context makes the transaction even more out of
	// character: declared online avoider, cash preferrer, living alone.
	store.profiles[userID] = &models.UserProfile{
		UserID: userID,
		LivingProfile: &models.LivingProfile{
			Answers: []string{"I live alone"},
		},
		SpendingProfile: &models.SpendingProfile{
			Answers: []string{"I avoid shopping online", "I prefer to pay with cash"},
		},
	}

	tx := makeTx(userID, "Lucky Star Online Casino", "gambling", -50000,
		time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))
	tx.ReviewStatus = models.ReviewStatusApproved
	store.add(tx)

	result, err := service.AnalyzeTransaction(context.Background(), tx, userID)
	require.NoError(t, err)

	assert.True(t, result.IsAnomaly)
	assert.Greater(t, result.SuspiciousScore, FlagThreshold)

	alerts := store.alertsOfType(models.AlertSuspiciousTransaction)
	require.Len(t, alerts, 1)
	assert.Equal(t, tx.ID, *alerts[0].TransactionID)
	assert.Contains(t, alerts[0].Description, "Lucky Star Online Casino")

	// Scoring must never overwrite the user's review decision.
	stored, err := store.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApproved, stored.ReviewStatus)
	assert.True(t, stored.IsFlagged)
}

func TestServiceCachesResult(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2025, 4, 1, 11, 0, 0, 0, time.UTC)

	store := newMemStore()
	for i := 0; i < 25; i++ {
		store.add(makeTx(userID, "Safeway", models.CategoryGrocery, -50, base.AddDate(0, 0, i*2)))
	}

	cache := newMemCache()
	service := NewService(NewEngine(), store, cache)
	require.NoError(t, service.Initialize(context.Background()))

	tx := makeTx(userID, "Safeway", models.CategoryGrocery, -55,
		time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	store.add(tx)

	_, err := service.AnalyzeTransaction(context.Background(), tx, userID)
	require.NoError(t, err)
	assert.True(t, cache.has("risk_result:"+tx.ID.String()))
}

func TestServiceAnalyzeBatchSurvivesFailures(t *testing.T) {
	service, store, userID := serviceFixture(t, false)

	good := makeTx(userID, "Safeway", models.CategoryGrocery, -55,
		time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	store.add(good)

	// This one is not in the store, so persisting its score fails.
	orphan := makeTx(userID, "Chevron", models.CategoryGasStation, -40,
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	results, err := service.AnalyzeBatch(context.Background(), []*models.Transaction{good, orphan})
	require.NoError(t, err)

	assert.Contains(t, results, good.ID)
	assert.NotContains(t, results, orphan.ID)
}

func TestServiceSubmitFeedbackTriggersReanalysis(t *testing.T) {
	service, store, userID := serviceFixture(t, false)

	// An old outlier with a stale stored score of zero.
	outlier := makeTx(userID, "Lucky Star Casino", models.CategoryEntertainment, -5000,
		time.Date(2025, 4, 10, 3, 0, 0, 0, time.UTC))
	store.add(outlier)

	recent := makeTx(userID, "Safeway", models.CategoryGrocery, -55,
		time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	store.add(recent)

	require.NoError(t, service.SubmitFeedback(context.Background(), recent, userID, false))

	stored, err := store.GetTransaction(context.Background(), outlier.ID)
	require.NoError(t, err)
	assert.Greater(t, stored.SuspiciousScore, 0.0, "feedback should sweep stale history")
}

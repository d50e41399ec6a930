package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seniorshield/fraud-engine/internal/models"
)

func reanalysisFixture(t *testing.T) (*Reanalyzer, *memStore, uuid.UUID, []*models.Transaction, *models.Transaction) {
	t.Helper()

	userID := uuid.New()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	// Steady grocery history ending well in the past.
	var history []*models.Transaction
	base := now.AddDate(0, 0, -120)
	for i := 0; i < 25; i++ {
		history = append(history,
			makeTx(userID, "Safeway", models.CategoryGrocery, -50, base.AddDate(0, 0, i*2)))
	}

	// One old outlier whose stored score predates any model knowledge.
	outlier := makeTx(userID, "Lucky Star Casino", models.CategoryEntertainment, -5000,
		time.Date(2025, 5, 17, 3, 0, 0, 0, time.UTC))
	history = append(history, outlier)

	store := newMemStore()
	store.add(history...)

	engine := NewEngine()
	require.NoError(t, engine.Initialize(history))

	r := NewReanalyzer(engine, store)
	r.now = func() time.Time { return now }

	return r, store, userID, history, outlier
}

func TestReanalyzeFlagsOldOutlier(t *testing.T) {
	r, store, userID, history, outlier := reanalysisFixture(t)

	require.NoError(t, r.Reanalyze(context.Background(), userID, history))

	stored, err := store.GetTransaction(context.Background(), outlier.ID)
	require.NoError(t, err)
	assert.Greater(t, stored.SuspiciousScore, 30.0, "outlier assessment should move materially")

	var outlierAlert *models.Alert
	for _, a := range store.alertsOfType(models.AlertRetrospective) {
		if a.TransactionID != nil && *a.TransactionID == outlier.ID {
			outlierAlert = a
		}
	}
	require.NotNil(t, outlierAlert)
	assert.Equal(t, userID, outlierAlert.UserID)
	assert.Contains(t, outlierAlert.Description, "45-day-old")
}

func TestReanalyzeIgnoresTransactionWithoutHistory(t *testing.T) {
	r, store, userID, history, _ := reanalysisFixture(t)
	oldest := history[0]

	require.NoError(t, r.Reanalyze(context.Background(), userID, history))

	// The user's very first transaction has nothing before it to be
	// compared against; it must keep its score and raise no alert.
	stored, err := store.GetTransaction(context.Background(), oldest.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.SuspiciousScore)
	for _, a := range store.alertsOfType(models.AlertRetrospective) {
		if a.TransactionID != nil {
			assert.NotEqual(t, oldest.ID, *a.TransactionID)
		}
	}
}

func TestReanalyzeSecondSweepIsQuiet(t *testing.T) {
	r, store, userID, history, _ := reanalysisFixture(t)

	require.NoError(t, r.Reanalyze(context.Background(), userID, history))
	firstAlerts := len(store.alertsOfType(models.AlertRetrospective))
	require.Greater(t, firstAlerts, 0)

	// Nothing changed between sweeps: comparisons run against the stored
	// scores the first sweep just wrote, so nothing fires again.
	require.NoError(t, r.Reanalyze(context.Background(), userID, history))
	assert.Len(t, store.alertsOfType(models.AlertRetrospective), firstAlerts)
}

func TestReanalyzeSkipsRecentTransactions(t *testing.T) {
	userID := uuid.New()
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	var history []*models.Transaction
	base := now.AddDate(0, 0, -120)
	for i := 0; i < 25; i++ {
		history = append(history,
			makeTx(userID, "Safeway", models.CategoryGrocery, -50, base.AddDate(0, 0, i*2)))
	}

	// An outlier only 10 days old: whatever the models think now, it is
	// too fresh to reconsider.
	recent := makeTx(userID, "Lucky Star Casino", models.CategoryEntertainment, -5000,
		now.AddDate(0, 0, -10))
	history = append(history, recent)

	store := newMemStore()
	store.add(history...)

	engine := NewEngine()
	require.NoError(t, engine.Initialize(history))

	r := NewReanalyzer(engine, store)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Reanalyze(context.Background(), userID, history))

	stored, err := store.GetTransaction(context.Background(), recent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.SuspiciousScore)
	for _, a := range store.alertsOfType(models.AlertRetrospective) {
		if a.TransactionID != nil {
			assert.NotEqual(t, recent.ID, *a.TransactionID)
		}
	}
}

func TestReanalyzeHonorsCancellation(t *testing.T) {
	r, _, userID, history, _ := reanalysisFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Reanalyze(ctx, userID, history), context.Canceled)
}

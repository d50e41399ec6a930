package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// FraudStore adapts the repositories to the fraud.Store contract.
type FraudStore struct {
	transactions *TransactionRepository
	profiles     *ProfileRepository
	alerts       *AlertRepository
}

// NewFraudStore creates the storage facade used by the scoring service.
func NewFraudStore(db *Database) *FraudStore {
	return &FraudStore{
		transactions: NewTransactionRepository(db),
		profiles:     NewProfileRepository(db),
		alerts:       NewAlertRepository(db),
	}
}

func (s *FraudStore) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

func (s *FraudStore) GetTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return s.transactions.GetByUser(ctx, userID)
}

func (s *FraudStore) GetAllTransactions(ctx context.Context) ([]*models.Transaction, error) {
	return s.transactions.GetAll(ctx)
}

func (s *FraudStore) UpdateScore(ctx context.Context, id uuid.UUID, score float64, isFlagged bool) error {
	return s.transactions.UpdateScore(ctx, id, score, isFlagged)
}

func (s *FraudStore) GetUserProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	return s.profiles.GetByUser(ctx, userID)
}

func (s *FraudStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return s.alerts.Create(ctx, alert)
}

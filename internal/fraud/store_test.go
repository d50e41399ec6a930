package fraud

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/seniorshield/fraud-engine/internal/models"
)

var errNotFound = errors.New("not found")

// memStore is the in-memory Store used across the package tests.
type memStore struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*models.Transaction
	profiles     map[uuid.UUID]*models.UserProfile
	alerts       []*models.Alert
}

func newMemStore() *memStore {
	return &memStore{
		transactions: make(map[uuid.UUID]*models.Transaction),
		profiles:     make(map[uuid.UUID]*models.UserProfile),
	}
}

func (s *memStore) add(txs ...*models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.transactions[tx.ID] = tx
	}
}

func (s *memStore) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *tx
	return &copied, nil
}

func (s *memStore) GetTransactionsByUser(_ context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			copied := *tx
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) GetAllTransactions(_ context.Context) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range s.transactions {
		copied := *tx
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memStore) UpdateScore(_ context.Context, id uuid.UUID, score float64, isFlagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return errNotFound
	}
	tx.SuspiciousScore = score
	tx.IsFlagged = isFlagged
	return nil
}

func (s *memStore) GetUserProfile(_ context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[userID], nil
}

func (s *memStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *memStore) alertsOfType(alertType string) []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Alert
	for _, a := range s.alerts {
		if a.AlertType == alertType {
			out = append(out, a)
		}
	}
	return out
}

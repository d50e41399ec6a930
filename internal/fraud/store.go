package fraud

import (
	"context"

	"github.com/google/uuid"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// Store is the persistence contract the scoring service and reanalyzer
// depend on. The relational backing implementation lives in
// internal/repositories; tests supply in-memory instances.
type Store interface {
	// GetTransaction returns the transaction with its currently stored
	// score and review status.
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)

	// GetTransactionsByUser returns the user's full transaction history.
	GetTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)

	// GetAllTransactions returns the cross-user population used for
	// anomaly model training.
	GetAllTransactions(ctx context.Context) ([]*models.Transaction, error)

	// UpdateScore writes a new score and flag atomically. It must never
	// touch the transaction's review status.
	UpdateScore(ctx context.Context, id uuid.UUID, score float64, isFlagged bool) error

	// GetUserProfile returns the user's profile context, or nil when the
	// user has none.
	GetUserProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)

	// CreateAlert records a user-facing alert.
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seniorshield/fraud-engine/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

const transactionColumns = `id, account_id, user_id, merchant, category, amount,
	   description, transaction_date, suspicious_score, is_flagged,
	   review_status, created_at, scored_at`

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a synced transaction. New transactions start unscored
// with review status pending.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, account_id, user_id, merchant, category, amount,
			description, transaction_date, suspicious_score, is_flagged,
			review_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now()
	if tx.ReviewStatus == "" {
		tx.ReviewStatus = models.ReviewStatusPending
	}

	_, err := r.db.Pool.Exec(ctx, query,
		tx.ID,
		tx.AccountID,
		tx.UserID,
		tx.Merchant,
		tx.Category,
		tx.Amount,
		tx.Description,
		tx.TransactionDate,
		tx.SuspiciousScore,
		tx.IsFlagged,
		tx.ReviewStatus,
		tx.CreatedAt,
	)
	return err
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
	`

	tx := &models.Transaction{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.UserID,
		&tx.Merchant,
		&tx.Category,
		&tx.Amount,
		&tx.Description,
		&tx.TransactionDate,
		&tx.SuspiciousScore,
		&tx.IsFlagged,
		&tx.ReviewStatus,
		&tx.CreatedAt,
		&tx.ScoredAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	return tx, nil
}

// GetByUser retrieves all transactions for a user ordered most recent first.
func (r *TransactionRepository) GetByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY transaction_date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// GetAll retrieves every transaction, used to seed model training.
func (r *TransactionRepository) GetAll(ctx context.Context) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY transaction_date ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// GetFlagged retrieves flagged transactions for a user ordered most
// recent first.
func (r *TransactionRepository) GetFlagged(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND is_flagged = TRUE
		ORDER BY transaction_date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// UpdateScore writes a transaction's risk verdict. Review status is
// never touched here; a user's approve/block decision survives rescoring.
func (r *TransactionRepository) UpdateScore(ctx context.Context, id uuid.UUID, score float64, isFlagged bool) error {
	query := `
		UPDATE transactions
		SET suspicious_score = $2, is_flagged = $3, scored_at = $4
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, score, isFlagged, time.Now())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

// UpdateReviewStatus records the user's decision on a flagged transaction.
func (r *TransactionRepository) UpdateReviewStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE transactions
		SET review_status = $2
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepository) scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		if err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.UserID,
			&tx.Merchant,
			&tx.Category,
			&tx.Amount,
			&tx.Description,
			&tx.TransactionDate,
			&tx.SuspiciousScore,
			&tx.IsFlagged,
			&tx.ReviewStatus,
			&tx.CreatedAt,
			&tx.ScoredAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

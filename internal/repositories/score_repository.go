package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/seniorshield/fraud-engine/internal/fraud"
	"github.com/seniorshield/fraud-engine/internal/models"
)

// ScoreHistoryRepository persists every scoring outcome with its
// component breakdown and the profile adjustments applied. Serves as
// the audit trail behind a transaction's current score.
type ScoreHistoryRepository struct {
	db *Database
}

// NewScoreHistoryRepository creates a new score history repository
func NewScoreHistoryRepository(db *Database) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: db}
}

// Record implements fraud.ScoreHistory.
func (r *ScoreHistoryRepository) Record(ctx context.Context, tx *models.Transaction, result *fraud.RiskResult) error {
	query := `
		INSERT INTO score_history (
			id, transaction_id, user_id, suspicious_score, anomaly_score,
			behavioral_score, classifier_score, profile_score, original_score,
			is_flagged, adjustments, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		uuid.New(),
		tx.ID,
		tx.UserID,
		result.SuspiciousScore,
		result.AnomalyScore,
		result.BehavioralScore,
		result.ClassifierScore,
		result.ProfileScore,
		result.OriginalScore,
		result.IsAnomaly,
		pq.Array(result.ProfileAdjustments),
		time.Now(),
	)
	return err
}

// ScoreEntry is one historical scoring of a transaction.
type ScoreEntry struct {
	ID              uuid.UUID
	TransactionID   uuid.UUID
	UserID          uuid.UUID
	SuspiciousScore float64
	AnomalyScore    float64
	BehavioralScore float64
	ClassifierScore float64
	ProfileScore    float64
	OriginalScore   float64
	IsFlagged       bool
	Adjustments     []string
	CreatedAt       time.Time
}

// GetByTransaction returns the scoring history for a transaction,
// oldest first.
func (r *ScoreHistoryRepository) GetByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*ScoreEntry, error) {
	query := `
		SELECT id, transaction_id, user_id, suspicious_score, anomaly_score,
			   behavioral_score, classifier_score, profile_score, original_score,
			   is_flagged, adjustments, created_at
		FROM score_history
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

func (r *ScoreHistoryRepository) scanEntries(rows pgx.Rows) ([]*ScoreEntry, error) {
	var entries []*ScoreEntry
	for rows.Next() {
		entry := &ScoreEntry{}
		var adjustments []string

		if err := rows.Scan(
			&entry.ID,
			&entry.TransactionID,
			&entry.UserID,
			&entry.SuspiciousScore,
			&entry.AnomalyScore,
			&entry.BehavioralScore,
			&entry.ClassifierScore,
			&entry.ProfileScore,
			&entry.OriginalScore,
			&entry.IsFlagged,
			&adjustments, // pgx handles []string directly
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		entry.Adjustments = adjustments
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

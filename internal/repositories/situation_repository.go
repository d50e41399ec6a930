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
	ErrSituationNotFound = errors.New("situation not found")
)

const situationColumns = `id, user_id, situation_type, description, start_date,
	   expected_end_date, actual_end_date, is_active, reminder_days,
	   last_reminder_sent, created_at`

// SituationRepository handles life-event situation database operations
type SituationRepository struct {
	db *Database
}

// NewSituationRepository creates a new situation repository
func NewSituationRepository(db *Database) *SituationRepository {
	return &SituationRepository{db: db}
}

// Create opens a new tracked situation.
func (r *SituationRepository) Create(ctx context.Context, s *models.Situation) error {
	query := `
		INSERT INTO situations (
			id, user_id, situation_type, description, start_date,
			expected_end_date, is_active, reminder_days, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.IsActive = true
	s.CreatedAt = time.Now()

	_, err := r.db.Pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.SituationType,
		s.Description,
		s.StartDate,
		s.ExpectedEndDate,
		s.IsActive,
		s.ReminderDays,
		s.CreatedAt,
	)
	return err
}

// GetActiveByUser returns the user's active situations, newest first.
func (r *SituationRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.Situation, error) {
	query := `
		SELECT ` + situationColumns + `
		FROM situations
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY start_date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanSituations(rows)
}

// GetNeedingReminders returns active situations whose reminder cadence
// has elapsed since the last reminder (or since the start date if none
// was ever sent).
func (r *SituationRepository) GetNeedingReminders(ctx context.Context) ([]*models.Situation, error) {
	query := `
		SELECT ` + situationColumns + `
		FROM situations
		WHERE is_active = TRUE
		AND COALESCE(last_reminder_sent, start_date)
			<= NOW() - (reminder_days || ' days')::interval
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanSituations(rows)
}

// MarkReminderSent stamps the situation's last reminder time.
func (r *SituationRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE situations SET last_reminder_sent = $2 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrSituationNotFound
	}

	return nil
}

// End closes a situation and records its actual end date.
func (r *SituationRepository) End(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE situations
		SET is_active = FALSE, actual_end_date = $2
		WHERE id = $1 AND is_active = TRUE
	`

	result, err := r.db.Pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrSituationNotFound
	}

	return nil
}

func (r *SituationRepository) scanSituations(rows pgx.Rows) ([]*models.Situation, error) {
	var situations []*models.Situation
	for rows.Next() {
		s := &models.Situation{}
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.SituationType,
			&s.Description,
			&s.StartDate,
			&s.ExpectedEndDate,
			&s.ActualEndDate,
			&s.IsActive,
			&s.ReminderDays,
			&s.LastReminderSent,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		situations = append(situations, s)
	}

	return situations, rows.Err()
}

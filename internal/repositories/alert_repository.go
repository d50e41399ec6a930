package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/seniorshield/fraud-engine/internal/models"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertRepository handles alert database operations
type AlertRepository struct {
	db *Database
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, user_id, transaction_id, alert_type, severity,
			title, description, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	alert.CreatedAt = time.Now()

	_, err := r.db.Pool.Exec(ctx, query,
		alert.ID,
		alert.UserID,
		alert.TransactionID,
		alert.AlertType,
		alert.Severity,
		alert.Title,
		alert.Description,
		alert.IsRead,
		alert.CreatedAt,
	)
	return err
}

// GetByUser retrieves alerts for a user, newest first.
func (r *AlertRepository) GetByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Alert, error) {
	query := `
		SELECT id, user_id, transaction_id, alert_type, severity,
			   title, description, is_read, created_at
		FROM alerts
		WHERE user_id = $1
		AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert := &models.Alert{}
		if err := rows.Scan(
			&alert.ID,
			&alert.UserID,
			&alert.TransactionID,
			&alert.AlertType,
			&alert.Severity,
			&alert.Title,
			&alert.Description,
			&alert.IsRead,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// MarkRead marks an alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE alerts SET is_read = TRUE WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrAlertNotFound
	}

	return nil
}

// GetByTransaction retrieves alerts attached to a transaction.
func (r *AlertRepository) GetByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*models.Alert, error) {
	query := `
		SELECT id, user_id, transaction_id, alert_type, severity,
			   title, description, is_read, created_at
		FROM alerts
		WHERE transaction_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert := &models.Alert{}
		if err := rows.Scan(
			&alert.ID,
			&alert.UserID,
			&alert.TransactionID,
			&alert.AlertType,
			&alert.Severity,
			&alert.Title,
			&alert.Description,
			&alert.IsRead,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

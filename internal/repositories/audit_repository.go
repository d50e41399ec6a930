package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *Database
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, event_type, entity_id, user_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	payloadBytes, _ := entry.Payload.Value()

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.EventType,
		entry.EntityID,
		entry.UserID,
		payloadBytes,
		entry.CreatedAt,
	)
	return err
}

// CreateBatch creates multiple audit log entries in a batch
func (r *AuditRepository) CreateBatch(ctx context.Context, entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO audit_logs (
			id, event_type, entity_id, user_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, entry := range entries {
		entry.ID = uuid.New()
		entry.CreatedAt = time.Now()
		payloadBytes, _ := entry.Payload.Value()

		batch.Queue(query,
			entry.ID,
			entry.EventType,
			entry.EntityID,
			entry.UserID,
			payloadBytes,
			entry.CreatedAt,
		)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// GetByEntityID retrieves audit logs for an entity, newest first.
func (r *AuditRepository) GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]*models.AuditLog, error) {
	query := `
		SELECT id, event_type, entity_id, user_id, payload, created_at
		FROM audit_logs
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAuditLogs(rows)
}

// GetRecent retrieves recent audit logs
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, event_type, entity_id, user_id, payload, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAuditLogs(rows)
}

func (r *AuditRepository) scanAuditLogs(rows pgx.Rows) ([]*models.AuditLog, error) {
	var entries []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var payloadBytes []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.EntityID,
			&entry.UserID,
			&payloadBytes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		entry.Payload.Scan(payloadBytes)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

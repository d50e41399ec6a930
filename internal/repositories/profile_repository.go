package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// ProfileRepository handles user profile database operations. The
// living and spending halves are stored as JSONB blobs written by the
// onboarding flow; the risk engine only reads them.
type ProfileRepository struct {
	db *Database
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *Database) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUser retrieves a user's profile. Returns nil (no error) when the
// user has no profile row. Malformed profile blobs are logged and treated
// as absent rather than failing the scoring path.
func (r *ProfileRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	query := `
		SELECT user_id, living_profile, spending_profile, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`

	profile := &models.UserProfile{}
	var livingBytes, spendingBytes []byte

	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&livingBytes,
		&spendingBytes,
		&profile.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	profile.LivingProfile = parseLivingProfile(userID, livingBytes)
	profile.SpendingProfile = parseSpendingProfile(userID, spendingBytes)
	return profile, nil
}

// Upsert writes a user's profile, replacing any existing row.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, living_profile, spending_profile, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET living_profile = EXCLUDED.living_profile,
			spending_profile = EXCLUDED.spending_profile,
			updated_at = EXCLUDED.updated_at
	`

	livingBytes, err := json.Marshal(profile.LivingProfile)
	if err != nil {
		return err
	}
	spendingBytes, err := json.Marshal(profile.SpendingProfile)
	if err != nil {
		return err
	}

	profile.UpdatedAt = time.Now()
	_, err = r.db.Pool.Exec(ctx, query, profile.UserID, livingBytes, spendingBytes, profile.UpdatedAt)
	return err
}

// SetCurrentSituation updates only the situation tag inside the spending
// profile blob, used when a tracked situation opens or closes.
func (r *ProfileRepository) SetCurrentSituation(ctx context.Context, userID uuid.UUID, tag models.SituationTag) error {
	query := `
		UPDATE user_profiles
		SET spending_profile = jsonb_set(
				COALESCE(spending_profile, '{}'::jsonb),
				'{current_situation}', to_jsonb($2::text)),
			updated_at = $3
		WHERE user_id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, userID, string(tag), time.Now())
	return err
}

func parseLivingProfile(userID uuid.UUID, data []byte) *models.LivingProfile {
	if len(data) == 0 {
		return nil
	}
	var lp models.LivingProfile
	if err := json.Unmarshal(data, &lp); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Malformed living profile, ignoring")
		return nil
	}
	return &lp
}

func parseSpendingProfile(userID uuid.UUID, data []byte) *models.SpendingProfile {
	if len(data) == 0 {
		return nil
	}
	var sp models.SpendingProfile
	if err := json.Unmarshal(data, &sp); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Malformed spending profile, ignoring")
		return nil
	}
	return &sp
}

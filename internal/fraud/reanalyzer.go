package fraud

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

const (
	// Transactions younger than this are left alone: they were scored
	// with essentially current knowledge and reconsidering them on every
	// model update would thrash fresh scores.
	reanalysisMinAge = 30 * 24 * time.Hour

	// An assessment has materially changed when the new score crosses
	// the flag threshold from a clearly-clean stored score, or moves by
	// more than this many points in either direction.
	reanalysisFlagFloor  = 50.0
	reanalysisScoreDelta = 30.0
)

// Reanalyzer replays the engine over stored history after models or
// profiles change, flagging transactions whose risk assessment has
// materially moved. Comparisons run against the currently stored score,
// so a second sweep with no intervening changes fires nothing.
type Reanalyzer struct {
	engine *Engine
	store  Store
	now    func() time.Time
}

// NewReanalyzer creates a reanalyzer over the given engine and store.
func NewReanalyzer(engine *Engine, store Store) *Reanalyzer {
	return &Reanalyzer{
		engine: engine,
		store:  store,
		now:    time.Now,
	}
}

// Reanalyze sweeps the user's history oldest-first, rescoring each
// eligible transaction against only the transactions that precede it.
// Each update is atomic (score and flag together); cancellation between
// transactions leaves nothing half-written.
func (r *Reanalyzer) Reanalyze(ctx context.Context, userID uuid.UUID, history []*models.Transaction) error {
	profile, err := r.store.GetUserProfile(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Profile unavailable for reanalysis, proceeding without")
		profile = nil
	}

	ordered := make([]*models.Transaction, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TransactionDate.Before(ordered[j].TransactionDate)
	})

	now := r.now()
	var updated int

	for _, old := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		age := now.Sub(old.TransactionDate)
		if age < reanalysisMinAge {
			continue
		}

		// Nothing preceding it means nothing to judge it against.
		prior := priorTransactions(old.TransactionDate, ordered)
		if len(prior) == 0 {
			continue
		}

		result, err := r.engine.AnalyzeHistorical(old, userID, prior, profile)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", old.ID.String()).Msg("Reanalysis scoring failed")
			continue
		}

		// Compare against what is stored right now, not a pre-sweep
		// snapshot; that keeps back-to-back sweeps idempotent.
		stored, err := r.store.GetTransaction(ctx, old.ID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", old.ID.String()).Msg("Failed to load stored transaction")
			continue
		}

		oldScore := stored.SuspiciousScore
		delta := math.Abs(result.SuspiciousScore - oldScore)
		crossed := result.SuspiciousScore > FlagThreshold && oldScore < reanalysisFlagFloor
		if !crossed && delta <= reanalysisScoreDelta {
			continue
		}

		if err := r.store.UpdateScore(ctx, old.ID, result.SuspiciousScore, result.IsAnomaly); err != nil {
			log.Error().Err(err).Str("transaction_id", old.ID.String()).Msg("Failed to store reanalyzed score")
			continue
		}

		elapsedDays := int(math.Round(age.Hours() / 24))
		alert := &models.Alert{
			UserID:        userID,
			TransactionID: &stored.ID,
			AlertType:     models.AlertRetrospective,
			Severity:      result.Severity(),
			Title:         "Historical Transaction Flagged",
			Description: fmt.Sprintf(
				"A %d-day-old transaction at %s for %.2f has been retrospectively flagged as suspicious (risk score: %.0f/100).",
				elapsedDays, stored.Merchant, math.Abs(stored.Amount), result.SuspiciousScore),
		}
		if err := r.store.CreateAlert(ctx, alert); err != nil {
			log.Error().Err(err).Str("transaction_id", old.ID.String()).Msg("Failed to create retrospective alert")
		}
		updated++
	}

	if updated > 0 {
		log.Info().
			Str("user_id", userID.String()).
			Int("updated", updated).
			Msg("Retrospective reanalysis changed stored assessments")
	}

	return nil
}

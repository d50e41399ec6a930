package fraud

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// Situational adjustment deltas. Applied to the aggregated score, each
// clamped into [0,100] as it lands.
const (
	hospitalExpectedDiscount    = 30
	hospitalUnexpectedSurcharge = 20
	travelCategoryDiscount      = 25
	travelAmountDiscount        = 15
	travelAmountFloor           = 200
	recoveryExpectedDiscount    = 20
)

// Free-text heuristic boosts, capped at 100 in total.
const (
	heuristicOnlineAvoider = 30
	heuristicCashPreferrer = 20
	heuristicAloneAtNight  = 15
	heuristicAmountFloor   = 100
	heuristicNightHour     = 6
)

var (
	hospitalExpected   = categorySet(models.CategoryMedical, models.CategoryPharmacy, models.CategoryFoodDelivery)
	hospitalUnexpected = categorySet(models.CategoryGrocery, models.CategoryGasStation, models.CategoryRetail)
	travelExpected     = categorySet(models.CategoryRestaurants, models.CategoryHotels, models.CategoryTransportation, models.CategoryEntertainment)
	recoveryExpected   = categorySet(models.CategoryMedical, models.CategoryPharmacy, models.CategoryHomeServices, models.CategoryFoodDelivery)
)

func categorySet(categories ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}

// Adjustment is the outcome of the situational pass: the adjusted score,
// the score it started from, and the human-readable reasons surfaced in
// the review UI.
type Adjustment struct {
	Score         float64  `json:"score"`
	OriginalScore float64  `json:"original_score"`
	Reasons       []string `json:"reasons"`
}

// ProfileAdjuster interprets a user's situational context and free-text
// profile answers. Both passes are best effort: a missing or unparseable
// profile never blocks scoring.
type ProfileAdjuster struct{}

// NewProfileAdjuster returns a ProfileAdjuster.
func NewProfileAdjuster() *ProfileAdjuster {
	return &ProfileAdjuster{}
}

// Adjust applies the active situation's rules to the aggregated raw
// score. Rules are evaluated independently; each application clamps into
// [0,100]. With no active situation the score passes through untouched.
func (a *ProfileAdjuster) Adjust(rawScore float64, tx *models.Transaction, profile *models.UserProfile) Adjustment {
	adj := Adjustment{
		Score:         rawScore,
		OriginalScore: rawScore,
		Reasons:       []string{},
	}

	if profile == nil || profile.SpendingProfile == nil {
		return adj
	}
	situation := profile.SpendingProfile.CurrentSituation
	if situation == models.SituationNone || !situation.Valid() {
		return adj
	}

	amount := math.Abs(tx.Amount)

	switch situation {
	case models.SituationHospital:
		if _, ok := hospitalExpected[tx.Category]; ok {
			adj.apply(-hospitalExpectedDiscount, "Expected medical/pharmacy spending during hospital stay")
		}
		if _, ok := hospitalUnexpected[tx.Category]; ok {
			adj.apply(+hospitalUnexpectedSurcharge, "Unusual non-medical spending during hospital stay")
		}

	case models.SituationTravel:
		if _, ok := travelExpected[tx.Category]; ok {
			adj.apply(-travelCategoryDiscount, "Expected travel-related spending")
		}
		if amount > travelAmountFloor {
			adj.apply(-travelAmountDiscount, "Higher spending amounts expected during travel")
		}

	case models.SituationRecovery:
		if _, ok := recoveryExpected[tx.Category]; ok {
			adj.apply(-recoveryExpectedDiscount, "Expected recovery-related spending")
		}
	}

	return adj
}

func (adj *Adjustment) apply(delta float64, reason string) {
	adj.Score += delta
	if adj.Score < 0 {
		adj.Score = 0
	}
	if adj.Score > 100 {
		adj.Score = 100
	}
	adj.Reasons = append(adj.Reasons, reason)
}

// HeuristicScore scans the raw free-text profile answers for declared
// preferences that make this transaction look out of character. String
// containment only; anything malformed degrades to 0.
func (a *ProfileAdjuster) HeuristicScore(tx *models.Transaction, profile *models.UserProfile) float64 {
	if profile == nil || profile.LivingProfile == nil || profile.SpendingProfile == nil {
		return 0
	}

	spending := profile.SpendingProfile.Answers
	living := profile.LivingProfile.Answers
	if len(spending) == 0 && len(living) == 0 {
		return 0
	}

	avoidsOnline := answersContain(spending, "avoid", "online")
	prefersCash := answersContain(spending, "cash")
	livesAlone := answersContain(living, "alone")

	amount := math.Abs(tx.Amount)
	merchant := strings.ToLower(tx.Merchant)

	var score float64
	if avoidsOnline && strings.Contains(merchant, "online") {
		score += heuristicOnlineAvoider
	}
	if prefersCash && amount > heuristicAmountFloor {
		score += heuristicCashPreferrer
	}
	if livesAlone && tx.TransactionDate.Hour() < heuristicNightHour {
		score += heuristicAloneAtNight
	}

	if score > 100 {
		score = 100
	}
	if score > 0 {
		log.Debug().
			Str("transaction_id", tx.ID.String()).
			Float64("heuristic_score", score).
			Msg("Free-text profile heuristics triggered")
	}
	return score
}

// answersContain reports whether any single answer contains all the given
// substrings, case-insensitively.
func answersContain(answers []string, substrings ...string) bool {
	for _, answer := range answers {
		lower := strings.ToLower(answer)
		all := true
		for _, sub := range substrings {
			if !strings.Contains(lower, sub) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

package fraud

import (
	"math"
	"time"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// FeatureVector is the fixed-size numeric representation of a transaction
// relative to its history. Field order matters: Values() feeds the anomaly
// and classifier models.
type FeatureVector struct {
	Hour              float64 `json:"hour"`
	IsWeekend         float64 `json:"is_weekend"`
	Amount            float64 `json:"amount"`
	AmountVsMerchant  float64 `json:"amount_vs_merchant_avg"`
	AmountVsCategory  float64 `json:"amount_vs_category_avg"`
	Velocity24h       float64 `json:"velocity_24h"`
	TotalAmount24h    float64 `json:"total_amount_24h"`
	MerchantFrequency float64 `json:"merchant_frequency"`
	CategoryFrequency float64 `json:"category_frequency"`
}

// FeatureDim is the dimensionality of a FeatureVector.
const FeatureDim = 9

// Values returns the vector in model input order.
func (f FeatureVector) Values() [FeatureDim]float64 {
	return [FeatureDim]float64{
		f.Hour,
		f.IsWeekend,
		f.Amount,
		f.AmountVsMerchant,
		f.AmountVsCategory,
		f.Velocity24h,
		f.TotalAmount24h,
		f.MerchantFrequency,
		f.CategoryFrequency,
	}
}

// ExtractFeatures computes the feature vector for a transaction given its
// history. Only transactions dated strictly before the one under
// evaluation count as history; anything at or after it is discarded here
// so callers cannot leak lookahead into the models.
func ExtractFeatures(tx *models.Transaction, history []*models.Transaction) FeatureVector {
	prior := priorTransactions(tx.TransactionDate, history)

	hour := float64(tx.TransactionDate.Hour())
	weekday := tx.TransactionDate.Weekday()
	isWeekend := 0.0
	if weekday == time.Saturday || weekday == time.Sunday {
		isWeekend = 1.0
	}

	amount := math.Abs(tx.Amount)

	var merchantSum, categorySum float64
	var merchantCount, categoryCount int
	var velocity int
	var total24h float64

	cutoff := tx.TransactionDate.Add(-24 * time.Hour)
	for _, t := range prior {
		a := math.Abs(t.Amount)
		if t.Merchant == tx.Merchant {
			merchantSum += a
			merchantCount++
		}
		if t.Category == tx.Category {
			categorySum += a
			categoryCount++
		}
		if !t.TransactionDate.Before(cutoff) {
			velocity++
			total24h += a
		}
	}

	fv := FeatureVector{
		Hour:           hour,
		IsWeekend:      isWeekend,
		Amount:         amount,
		Velocity24h:    float64(velocity),
		TotalAmount24h: total24h,
	}

	// Ratios fall back to the transaction's own amount as denominator when
	// there is no prior baseline, which yields a neutral 1.0.
	fv.AmountVsMerchant = safeRatio(amount, merchantSum, merchantCount)
	fv.AmountVsCategory = safeRatio(amount, categorySum, categoryCount)

	if len(prior) > 0 {
		fv.MerchantFrequency = float64(merchantCount) / float64(len(prior))
		fv.CategoryFrequency = float64(categoryCount) / float64(len(prior))
	}

	return fv
}

func safeRatio(amount, sum float64, count int) float64 {
	if count == 0 || sum == 0 {
		return 1.0
	}
	return amount / (sum / float64(count))
}

// priorTransactions filters history to entries strictly before ts.
func priorTransactions(ts time.Time, history []*models.Transaction) []*models.Transaction {
	prior := make([]*models.Transaction, 0, len(history))
	for _, t := range history {
		if t.TransactionDate.Before(ts) {
			prior = append(prior, t)
		}
	}
	return prior
}

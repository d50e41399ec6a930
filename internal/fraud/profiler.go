package fraud

import (
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/seniorshield/fraud-engine/internal/models"
)

// Deviation triggers. Independent booleans, additively combined, capped
// at 100; downstream aggregation assumes commensurable 0-100 scores.
const (
	deviationUnusualHour   = 20
	deviationNewMerchant   = 15
	deviationNewCategory   = 10
	deviationUnusualAmount = 25

	// Amount is unusual when it exceeds this multiple of the average.
	unusualAmountFactor = 2.0
)

// behaviorProfile is the derived per-user baseline. Rebuilt whole on every
// UpdateProfile call, never mutated in place.
type behaviorProfile struct {
	typicalHours      map[int]struct{}
	typicalMerchants  map[string]struct{}
	typicalCategories map[string]struct{}
	averageAmount     float64
	frequencyPerDay   float64
}

// BehavioralProfiler maintains rule-based per-user spending baselines and
// scores how far a transaction departs from them.
type BehavioralProfiler struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*behaviorProfile
}

// NewBehavioralProfiler returns an empty profiler.
func NewBehavioralProfiler() *BehavioralProfiler {
	return &BehavioralProfiler{
		profiles: make(map[uuid.UUID]*behaviorProfile),
	}
}

func buildBehaviorProfile(transactions []*models.Transaction) *behaviorProfile {
	profile := &behaviorProfile{
		typicalHours:      make(map[int]struct{}),
		typicalMerchants:  make(map[string]struct{}),
		typicalCategories: make(map[string]struct{}),
	}

	var total float64
	first := transactions[0].TransactionDate
	last := transactions[0].TransactionDate
	for _, t := range transactions {
		profile.typicalHours[t.TransactionDate.Hour()] = struct{}{}
		profile.typicalMerchants[t.Merchant] = struct{}{}
		profile.typicalCategories[t.Category] = struct{}{}
		total += math.Abs(t.Amount)

		if t.TransactionDate.Before(first) {
			first = t.TransactionDate
		}
		if t.TransactionDate.After(last) {
			last = t.TransactionDate
		}
	}
	profile.averageAmount = total / float64(len(transactions))

	days := last.Sub(first).Hours() / 24
	if days <= 0 {
		days = 1
	}
	profile.frequencyPerDay = float64(len(transactions)) / days

	return profile
}

func (bp *behaviorProfile) deviation(tx *models.Transaction) float64 {
	var score float64

	if _, known := bp.typicalHours[tx.TransactionDate.Hour()]; !known {
		score += deviationUnusualHour
	}
	if _, known := bp.typicalMerchants[tx.Merchant]; !known {
		score += deviationNewMerchant
	}
	if _, known := bp.typicalCategories[tx.Category]; !known {
		score += deviationNewCategory
	}
	if math.Abs(tx.Amount) > bp.averageAmount*unusualAmountFactor {
		score += deviationUnusualAmount
	}

	if score > 100 {
		score = 100
	}
	return score
}

// UpdateProfile rebuilds the user's profile from the supplied transaction
// set. A full replace, not an incremental merge. Empty input clears the
// profile.
func (p *BehavioralProfiler) UpdateProfile(userID uuid.UUID, transactions []*models.Transaction) {
	if len(transactions) == 0 {
		p.mu.Lock()
		delete(p.profiles, userID)
		p.mu.Unlock()
		return
	}

	profile := buildBehaviorProfile(transactions)

	p.mu.Lock()
	p.profiles[userID] = profile
	p.mu.Unlock()
}

// ScoreDeviation returns the 0-100 deviation score for a transaction. A
// user with no profile has no baseline to deviate from and scores 0.
func (p *BehavioralProfiler) ScoreDeviation(userID uuid.UUID, tx *models.Transaction) float64 {
	p.mu.RLock()
	profile, ok := p.profiles[userID]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	return profile.deviation(tx)
}

// DeviationFrom scores a transaction against a baseline built from the
// supplied transactions only, leaving the user's stored profile alone.
// Used when replaying history, where the stored profile already reflects
// the transaction being judged.
func (p *BehavioralProfiler) DeviationFrom(transactions []*models.Transaction, tx *models.Transaction) float64 {
	if len(transactions) == 0 {
		return 0
	}
	return buildBehaviorProfile(transactions).deviation(tx)
}

// HasProfile reports whether a baseline exists for the user.
func (p *BehavioralProfiler) HasProfile(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.profiles[userID]
	return ok
}

package fraud

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/seniorshield/fraud-engine/internal/models"
)

func profileWithSituation(tag models.SituationTag) *models.UserProfile {
	return &models.UserProfile{
		UserID: uuid.New(),
		SpendingProfile: &models.SpendingProfile{
			CurrentSituation: tag,
		},
	}
}

func TestAdjustSituations(t *testing.T) {
	a := NewProfileAdjuster()
	date := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		raw         float64
		category    string
		amount      float64
		situation   models.SituationTag
		wantScore   float64
		wantReasons int
	}{
		{
			name:        "no situation passes through",
			raw:         60,
			category:    models.CategoryGrocery,
			amount:      -50,
			situation:   models.SituationNone,
			wantScore:   60,
			wantReasons: 0,
		},
		{
			name:        "hospital discounts pharmacy",
			raw:         60,
			category:    models.CategoryPharmacy,
			amount:      -30,
			situation:   models.SituationHospital,
			wantScore:   30,
			wantReasons: 1,
		},
		{
			name:        "hospital surcharges grocery",
			raw:         60,
			category:    models.CategoryGrocery,
			amount:      -50,
			situation:   models.SituationHospital,
			wantScore:   80,
			wantReasons: 1,
		},
		{
			name:        "hospital clamps at zero",
			raw:         10,
			category:    models.CategoryMedical,
			amount:      -200,
			situation:   models.SituationHospital,
			wantScore:   0,
			wantReasons: 1,
		},
		{
			name:        "hospital surcharge clamps at hundred",
			raw:         95,
			category:    models.CategoryRetail,
			amount:      -50,
			situation:   models.SituationHospital,
			wantScore:   100,
			wantReasons: 1,
		},
		{
			name:        "travel discounts hotels and large amounts together",
			raw:         80,
			category:    models.CategoryHotels,
			amount:      -450,
			situation:   models.SituationTravel,
			wantScore:   40,
			wantReasons: 2,
		},
		{
			name:        "travel amount at floor gets no amount discount",
			raw:         80,
			category:    models.CategoryGrocery,
			amount:      -200,
			situation:   models.SituationTravel,
			wantScore:   80,
			wantReasons: 0,
		},
		{
			name:        "recovery discounts home services",
			raw:         55,
			category:    models.CategoryHomeServices,
			amount:      -120,
			situation:   models.SituationRecovery,
			wantScore:   35,
			wantReasons: 1,
		},
		{
			name:        "unknown situation passes through",
			raw:         60,
			category:    models.CategoryGrocery,
			amount:      -50,
			situation:   models.SituationTag("sabbatical"),
			wantScore:   60,
			wantReasons: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := makeTx(uuid.New(), "Merchant", tt.category, tt.amount, date)
			adj := a.Adjust(tt.raw, tx, profileWithSituation(tt.situation))

			assert.Equal(t, tt.wantScore, adj.Score)
			assert.Equal(t, tt.raw, adj.OriginalScore)
			assert.Len(t, adj.Reasons, tt.wantReasons)
		})
	}
}

func TestAdjustNilProfile(t *testing.T) {
	a := NewProfileAdjuster()
	tx := makeTx(uuid.New(), "Merchant", models.CategoryMedical, -30, time.Now())

	adj := a.Adjust(60, tx, nil)
	assert.Equal(t, 60.0, adj.Score)
	assert.Empty(t, adj.Reasons)

	adj = a.Adjust(60, tx, &models.UserProfile{})
	assert.Equal(t, 60.0, adj.Score)
}

func TestHeuristicScore(t *testing.T) {
	a := NewProfileAdjuster()
	day := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	night := time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

	profile := &models.UserProfile{
		UserID: uuid.New(),
		LivingProfile: &models.LivingProfile{
			Answers: []string{"I live alone"},
		},
		SpendingProfile: &models.SpendingProfile{
			Answers: []string{"I avoid shopping online", "I prefer to pay with cash"},
		},
	}

	tests := []struct {
		name string
		tx   *models.Transaction
		want float64
	}{
		{
			name: "nothing triggers",
			tx:   makeTx(uuid.New(), "Safeway", models.CategoryGrocery, -50, day),
			want: 0,
		},
		{
			name: "online merchant for online avoider",
			tx:   makeTx(uuid.New(), "MegaMart Online Store", models.CategoryRetail, -50, day),
			want: 30,
		},
		{
			name: "large amount for cash preferrer",
			tx:   makeTx(uuid.New(), "Safeway", models.CategoryGrocery, -250, day),
			want: 20,
		},
		{
			name: "night purchase while living alone",
			tx:   makeTx(uuid.New(), "Safeway", models.CategoryGrocery, -50, night),
			want: 15,
		},
		{
			name: "all three stack",
			tx:   makeTx(uuid.New(), "MegaMart Online Store", models.CategoryRetail, -250, night),
			want: 65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.HeuristicScore(tt.tx, profile))
		})
	}
}

func TestHeuristicScoreMissingProfiles(t *testing.T) {
	a := NewProfileAdjuster()
	tx := makeTx(uuid.New(), "MegaMart Online Store", models.CategoryRetail, -250, time.Now())

	assert.Equal(t, 0.0, a.HeuristicScore(tx, nil))
	assert.Equal(t, 0.0, a.HeuristicScore(tx, &models.UserProfile{}))
	assert.Equal(t, 0.0, a.HeuristicScore(tx, &models.UserProfile{
		LivingProfile:   &models.LivingProfile{},
		SpendingProfile: &models.SpendingProfile{},
	}))
}

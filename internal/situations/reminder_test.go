package situations

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/seniorshield/fraud-engine/internal/models"
)

func TestReminderContent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		situationType models.SituationTag
		wantTitle     string
		wantFragment  string
	}{
		{
			name:          "hospital",
			situationType: models.SituationHospital,
			wantTitle:     "Hospital Stay Status Check",
			wantFragment:  "7 days since you mentioned being in the hospital",
		},
		{
			name:          "travel",
			situationType: models.SituationTravel,
			wantTitle:     "Travel Status Check",
			wantFragment:  "7 days since you mentioned traveling",
		},
		{
			name:          "recovery",
			situationType: models.SituationRecovery,
			wantTitle:     "Recovery Status Check",
			wantFragment:  "7 days since you mentioned being in recovery",
		},
		{
			name:          "unknown type falls back to generic wording",
			situationType: models.SituationTag("bereavement"),
			wantTitle:     "Bereavement Status Check",
			wantFragment:  "7 days since you updated your situation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			situation := &models.Situation{
				ID:            uuid.New(),
				UserID:        uuid.New(),
				SituationType: tt.situationType,
				StartDate:     start,
			}

			title, description := reminderContent(situation, now)
			assert.Equal(t, tt.wantTitle, title)
			assert.Contains(t, description, tt.wantFragment)
		})
	}
}

package situations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/internal/models"
	"github.com/seniorshield/fraud-engine/internal/repositories"
)

// ReminderService periodically sweeps active situations and nudges the
// user to confirm whether the situation still applies, so the scoring
// adjustments do not outlive the circumstances that justified them.
type ReminderService struct {
	situations *repositories.SituationRepository
	alerts     *repositories.AlertRepository
	interval   time.Duration
	now        func() time.Time
}

// NewReminderService creates a reminder sweep with the given interval.
func NewReminderService(situations *repositories.SituationRepository, alerts *repositories.AlertRepository, interval time.Duration) *ReminderService {
	return &ReminderService{
		situations: situations,
		alerts:     alerts,
		interval:   interval,
		now:        time.Now,
	}
}

// Run sweeps immediately and then on every tick until the context is
// cancelled.
func (s *ReminderService) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("Starting situation reminder service")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reminder service stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs one reminder pass, used for manual triggers.
func (s *ReminderService) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

func (s *ReminderService) sweep(ctx context.Context) {
	situations, err := s.situations.GetNeedingReminders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load situations needing reminders")
		return
	}

	sent := 0
	for _, situation := range situations {
		if err := s.remind(ctx, situation); err != nil {
			log.Error().
				Err(err).
				Str("situation_id", situation.ID.String()).
				Msg("Failed to send situation reminder")
			continue
		}
		sent++
	}

	if sent > 0 {
		log.Info().Int("count", sent).Msg("Created situation reminders")
	}
}

func (s *ReminderService) remind(ctx context.Context, situation *models.Situation) error {
	title, description := reminderContent(situation, s.now())

	alert := &models.Alert{
		UserID:      situation.UserID,
		AlertType:   models.AlertSituationReminder,
		Severity:    models.SeverityLow,
		Title:       title,
		Description: description,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return err
	}

	return s.situations.MarkReminderSent(ctx, situation.ID, s.now())
}

func reminderContent(situation *models.Situation, now time.Time) (string, string) {
	daysSinceStart := int(now.Sub(situation.StartDate).Hours() / 24)

	switch situation.SituationType {
	case models.SituationHospital:
		return "Hospital Stay Status Check", fmt.Sprintf(
			"It's been %d days since you mentioned being in the hospital. Are you still there? If not, click here to update your status so we can adjust your spending monitoring.",
			daysSinceStart)
	case models.SituationTravel:
		return "Travel Status Check", fmt.Sprintf(
			"It's been %d days since you mentioned traveling. Are you still away from home? Click here to update your travel status.",
			daysSinceStart)
	case models.SituationRecovery:
		return "Recovery Status Check", fmt.Sprintf(
			"It's been %d days since you mentioned being in recovery. How are you feeling? Click here to update your recovery status.",
			daysSinceStart)
	}

	name := string(situation.SituationType)
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return name + " Status Check", fmt.Sprintf(
		"It's been %d days since you updated your situation. Are you still in the same circumstances? Click here to update your status.",
		daysSinceStart)
}

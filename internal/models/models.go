package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Transaction represents a synced bank transaction under fraud monitoring.
// Created by account synchronization; scored by the risk engine; reviewed
// by the account holder. Transactions are never deleted.
type Transaction struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	UserID          uuid.UUID  `json:"user_id"`
	Merchant        string     `json:"merchant"`
	Category        string     `json:"category"`
	Amount          float64    `json:"amount"` // signed; negative = debit
	Description     string     `json:"description"`
	TransactionDate time.Time  `json:"transaction_date"`
	SuspiciousScore float64    `json:"suspicious_score"` // 0-100
	IsFlagged       bool       `json:"is_flagged"`
	ReviewStatus    string     `json:"review_status"` // pending, approved, blocked, ignored
	CreatedAt       time.Time  `json:"created_at"`
	ScoredAt        *time.Time `json:"scored_at,omitempty"`
}

// ReviewStatus enum values
const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusBlocked  = "blocked"
	ReviewStatusIgnored  = "ignored"
)

// Spending categories the adjuster reasons about
const (
	CategoryMedical        = "medical"
	CategoryPharmacy       = "pharmacy"
	CategoryFoodDelivery   = "food_delivery"
	CategoryGrocery        = "grocery"
	CategoryGasStation     = "gas_station"
	CategoryRetail         = "retail"
	CategoryRestaurants    = "restaurants"
	CategoryHotels         = "hotels"
	CategoryTransportation = "transportation"
	CategoryEntertainment  = "entertainment"
	CategoryHomeServices   = "home_services"
)

// SituationTag is the tracked life-event context that retunes expected
// spending. The zero value means no active situation.
type SituationTag string

const (
	SituationNone     SituationTag = ""
	SituationHospital SituationTag = "hospital"
	SituationTravel   SituationTag = "travel"
	SituationRecovery SituationTag = "recovery"
)

// Valid reports whether the tag is one of the known situations.
func (s SituationTag) Valid() bool {
	switch s {
	case SituationNone, SituationHospital, SituationTravel, SituationRecovery:
		return true
	}
	return false
}

// SpendingProfile is the structured half of a user's onboarding answers.
// Answers keeps the raw free-text responses for the heuristic scoring pass.
type SpendingProfile struct {
	Answers            []string     `json:"answers"`
	CurrentSituation   SituationTag `json:"current_situation,omitempty"`
	ExpectedCategories []string     `json:"expected_categories,omitempty"`
}

// LivingProfile holds the free-text living-arrangement answers.
type LivingProfile struct {
	Answers []string `json:"answers"`
}

// UserProfile is the per-user context consumed by the profile-context
// adjuster. Produced by onboarding and by the chat assistant's situation
// detection; the risk engine only reads it.
type UserProfile struct {
	UserID          uuid.UUID        `json:"user_id"`
	LivingProfile   *LivingProfile   `json:"living_profile,omitempty"`
	SpendingProfile *SpendingProfile `json:"spending_profile,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Situation is a tracked life-event record backing the profile's
// current-situation tag.
type Situation struct {
	ID               uuid.UUID    `json:"id"`
	UserID           uuid.UUID    `json:"user_id"`
	SituationType    SituationTag `json:"situation_type"`
	Description      string       `json:"description"`
	StartDate        time.Time    `json:"start_date"`
	ExpectedEndDate  *time.Time   `json:"expected_end_date,omitempty"`
	ActualEndDate    *time.Time   `json:"actual_end_date,omitempty"`
	IsActive         bool         `json:"is_active"`
	ReminderDays     int          `json:"reminder_days"` // cadence between status-check reminders
	LastReminderSent *time.Time   `json:"last_reminder_sent,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Alert is a user-facing notification created when a transaction is
// flagged, retrospectively re-flagged, or a situation needs a check-in.
type Alert struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	AlertType     string     `json:"alert_type"`
	Severity      string     `json:"severity"` // low, medium, high
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AlertType enum values
const (
	AlertSuspiciousTransaction = "suspicious_transaction"
	AlertRetrospective         = "retrospective_analysis"
	AlertSituationReminder     = "situation_reminder"
)

// AlertSeverity enum values
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// TransactionEvent is published to the Redis stream when a synced
// transaction is ready for scoring.
type TransactionEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	AccountID     string    `json:"account_id"`
	Amount        float64   `json:"amount"`
	Merchant      string    `json:"merchant"`
	Category      string    `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	RetryCount    int       `json:"retry_count"`
}

// FeedbackEvent is published when a user confirms or dismisses a flag.
type FeedbackEvent struct {
	TransactionID   string    `json:"transaction_id"`
	UserID          string    `json:"user_id"`
	IsActuallyFraud bool      `json:"is_actually_fraud"`
	Timestamp       time.Time `json:"timestamp"`
	RetryCount      int       `json:"retry_count"`
}

// AuditLog is one captured change event from the CDC pipeline.
type AuditLog struct {
	ID        uuid.UUID `json:"id"`
	EventType string    `json:"event_type"`
	EntityID  uuid.UUID `json:"entity_id"`
	UserID    uuid.UUID `json:"user_id"`
	Payload   JSONB     `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// JSONB is a helper type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

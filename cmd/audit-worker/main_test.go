package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cdcRow(score float64, flagged bool, status string) json.RawMessage {
	row := TransactionCDC{
		ID:              "5f1b3f0e-0000-0000-0000-000000000001",
		UserID:          "5f1b3f0e-0000-0000-0000-000000000002",
		Merchant:        "Safeway",
		Category:        "grocery",
		Amount:          -42.5,
		SuspiciousScore: score,
		IsFlagged:       flagged,
		ReviewStatus:    status,
	}
	data, _ := json.Marshal(row)
	return data
}

func TestBuildAuditEvent(t *testing.T) {
	parse := func(raw json.RawMessage) *TransactionCDC {
		if raw == nil {
			return nil
		}
		tx := &TransactionCDC{}
		require.NoError(t, json.Unmarshal(raw, tx))
		return tx
	}

	tests := []struct {
		name     string
		op       string
		before   json.RawMessage
		after    json.RawMessage
		wantType string
		wantNil  bool
	}{
		{
			name:     "insert is a creation",
			op:       "c",
			after:    cdcRow(0, false, "pending"),
			wantType: "transaction_created",
		},
		{
			name:     "score update",
			op:       "u",
			before:   cdcRow(0, false, "pending"),
			after:    cdcRow(84, true, "pending"),
			wantType: "score_changed",
		},
		{
			name:     "review decision",
			op:       "u",
			before:   cdcRow(84, true, "pending"),
			after:    cdcRow(84, true, "approved"),
			wantType: "transaction_reviewed",
		},
		{
			name:    "no-op update carries no audit value",
			op:      "u",
			before:  cdcRow(84, true, "approved"),
			after:   cdcRow(84, true, "approved"),
			wantNil: true,
		},
		{
			name:    "snapshot reads are skipped",
			op:      "r",
			after:   cdcRow(0, false, "pending"),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &DebeziumMessage{Op: tt.op, Before: tt.before, After: tt.after}
			tx := parse(tt.after)
			prev := parse(tt.before)

			event := buildAuditEvent(msg, tx, prev)
			if tt.wantNil {
				assert.Nil(t, event)
				return
			}
			require.NotNil(t, event)
			assert.Equal(t, tt.wantType, event.EventType)
		})
	}
}

func TestBuildAuditEventRecordsScoreDelta(t *testing.T) {
	msg := &DebeziumMessage{Op: "u"}
	prev := &TransactionCDC{SuspiciousScore: 10}
	tx := &TransactionCDC{ID: "x", SuspiciousScore: 84, IsFlagged: true}

	event := buildAuditEvent(msg, tx, prev)
	require.NotNil(t, event)
	assert.Equal(t, 84.0, event.Score)
	assert.Equal(t, 10.0, event.PrevScore)
	assert.True(t, event.IsFlagged)
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterReading is a cumulative meter value for a unit on a given date.
// HeatUsage and CostAmount are derived against the immediately preceding
// reading. Only the latest reading of a unit may be edited or deleted; that
// keeps usage deltas consistent without recomputing through history.
type MeterReading struct {
	ID           uuid.UUID
	UnitID       uuid.UUID
	ReadingDate  time.Time
	ReadingValue decimal.Decimal
	HeatUsage    decimal.Decimal
	CostAmount   decimal.Decimal
	DailyAvgTemp *decimal.Decimal
	IsBilled     bool
	Remarks      *string
	CreatedAt    time.Time
}

// Usage computes consumption between a previous cumulative value and a new
// one. Negative deltas (meter replacement, data entry error) clamp to zero
// rather than failing the submission.
func Usage(previous, current decimal.Decimal) decimal.Decimal {
	delta := current.Sub(previous)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return delta
}

package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
)

type SubmitReadingRequest struct {
	UnitID       uuid.UUID
	ReadingDate  time.Time
	ReadingValue decimal.Decimal
	DailyAvgTemp *decimal.Decimal
	Remarks      *string
}

// SubmitReading records a meter reading and, when the derived cost is
// positive, posts a deduction to the unit's billing account (the parent if
// linked, otherwise the unit itself). Reading and deduction commit in one
// database transaction.
func (s *Service) SubmitReading(ctx context.Context, req SubmitReadingRequest) (*domain.MeterReading, error) {
	log := logging.FromContext(ctx)

	owner, err := s.units.GetByID(ctx, req.UnitID)
	if err != nil {
		return nil, fmt.Errorf("SubmitReading: %w", err)
	}

	if req.ReadingValue.IsNegative() {
		return nil, fmt.Errorf("SubmitReading: reading value: %w", domain.ErrValidation)
	}

	// The weather call happens before the database transaction so a slow or
	// failing collaborator never holds row locks. Absence is acceptable.
	temp := req.DailyAvgTemp
	if temp == nil && s.temps != nil {
		temp = s.temps.TemperatureForDate(ctx, req.ReadingDate)
	}

	unlock := s.locks.acquire(owner.BillingUnitID())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SubmitReading: begin tx: %w", err)
	}
	defer tx.Rollback()

	latest, err := s.readings.GetLatestForUnit(ctx, tx, owner.ID)
	if err != nil && !errors.Is(err, domain.ErrReadingNotFound) {
		return nil, fmt.Errorf("SubmitReading: %w", err)
	}
	if latest != nil && !req.ReadingDate.After(latest.ReadingDate) {
		return nil, fmt.Errorf("SubmitReading: %w", domain.ErrOutOfOrderReading)
	}

	usage, cost, err := s.computeCharge(ctx, tx, owner, req.ReadingDate, req.ReadingValue)
	if err != nil {
		return nil, fmt.Errorf("SubmitReading: %w", err)
	}

	now := time.Now().UTC()
	reading := &domain.MeterReading{
		ID:           uuid.New(),
		UnitID:       owner.ID,
		ReadingDate:  req.ReadingDate,
		ReadingValue: req.ReadingValue,
		HeatUsage:    usage,
		CostAmount:   cost,
		DailyAvgTemp: temp,
		IsBilled:     cost.IsPositive(),
		Remarks:      req.Remarks,
		CreatedAt:    now,
	}
	if err := s.readings.Create(ctx, tx, reading); err != nil {
		return nil, fmt.Errorf("SubmitReading: %w", err)
	}

	if cost.IsPositive() {
		if err := s.postDeduction(ctx, tx, owner.BillingUnitID(), reading, usage, cost, now); err != nil {
			return nil, fmt.Errorf("SubmitReading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SubmitReading: commit: %w", err)
	}

	log.Info("reading submitted",
		"reading_id", reading.ID,
		"unit_id", owner.ID,
		"reading_date", req.ReadingDate.Format("2006-01-02"),
		"usage", usage,
		"cost", cost,
	)

	return reading, nil
}

// computeCharge derives usage and cost against the closest reading strictly
// before date. The unit's first reading establishes a baseline: usage and
// cost are zero and nothing is billed.
func (s *Service) computeCharge(ctx context.Context, tx *sql.Tx, owner *domain.Unit, date time.Time, value decimal.Decimal) (usage, cost decimal.Decimal, err error) {
	prev, err := s.readings.GetPreviousBefore(ctx, tx, owner.ID, date)
	if err != nil {
		if errors.Is(err, domain.ErrReadingNotFound) {
			return decimal.Zero, decimal.Zero, nil
		}
		return decimal.Zero, decimal.Zero, err
	}

	usage = domain.Usage(prev.ReadingValue, value)
	cost = usage.Mul(owner.UnitPrice).Round(2)
	return usage, cost, nil
}

// postDeduction debits the billing unit, records the deduction transaction
// linked to the reading, and cascades the group status.
func (s *Service) postDeduction(ctx context.Context, tx *sql.Tx, billingUnitID uuid.UUID, reading *domain.MeterReading, usage, cost decimal.Decimal, now time.Time) error {
	billed, err := s.units.GetForUpdate(ctx, tx, billingUnitID)
	if err != nil {
		return fmt.Errorf("postDeduction: %w", err)
	}

	newBalance := billed.AccountBalance.Sub(cost)
	if err := s.units.UpdateBalance(ctx, tx, billed.ID, newBalance, billed.Version+1); err != nil {
		return fmt.Errorf("postDeduction: %w", err)
	}

	remarks := fmt.Sprintf("usage: %s GJ", usage.StringFixed(2))
	t := &domain.AccountTransaction{
		ID:               uuid.New(),
		UnitID:           billed.ID,
		Type:             domain.TransactionTypeDeduction,
		Date:             now.Truncate(24 * time.Hour),
		Amount:           cost.Neg(),
		BalanceAfter:     newBalance,
		RelatedReadingID: &reading.ID,
		Summary:          fmt.Sprintf("%s meter reading charge", reading.ReadingDate.Format("2006-01-02")),
		Remarks:          &remarks,
		CreatedAt:        now,
	}
	if err := s.transactions.Create(ctx, tx, t); err != nil {
		return fmt.Errorf("postDeduction: %w", err)
	}

	if err := s.cascadeGroupStatus(ctx, tx, billed.ID); err != nil {
		return fmt.Errorf("postDeduction: %w", err)
	}
	return nil
}

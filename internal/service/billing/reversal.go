package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
)

// DeleteReading removes a unit's latest reading and reverses the deduction
// it produced, if any. Deleting anything but the latest reading fails and
// leaves all ledger state unchanged.
func (s *Service) DeleteReading(ctx context.Context, readingID uuid.UUID) error {
	log := logging.FromContext(ctx)

	reading, err := s.readings.GetByID(ctx, readingID)
	if err != nil {
		return fmt.Errorf("DeleteReading: %w", err)
	}
	owner, err := s.units.GetByID(ctx, reading.UnitID)
	if err != nil {
		return fmt.Errorf("DeleteReading: %w", err)
	}

	unlock := s.locks.acquire(owner.BillingUnitID())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteReading: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireLatest(ctx, tx, reading); err != nil {
		return fmt.Errorf("DeleteReading: %w", err)
	}

	if err := s.reverseReadingCharge(ctx, tx, readingID); err != nil {
		return fmt.Errorf("DeleteReading: %w", err)
	}

	if err := s.readings.Delete(ctx, tx, readingID); err != nil {
		return fmt.Errorf("DeleteReading: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteReading: commit: %w", err)
	}

	log.Info("reading deleted", "reading_id", readingID, "unit_id", reading.UnitID)
	return nil
}

// UpdateReading changes the cumulative value of a unit's latest reading.
// The edit is reversal plus rebill: undo the old deduction against the unit
// it was actually posted to, recompute usage and cost against the same
// previous reading, rewrite the reading row, and post a fresh deduction when
// the new cost is positive.
func (s *Service) UpdateReading(ctx context.Context, readingID uuid.UUID, newValue decimal.Decimal) error {
	log := logging.FromContext(ctx)

	if newValue.IsNegative() {
		return fmt.Errorf("UpdateReading: reading value: %w", domain.ErrValidation)
	}

	reading, err := s.readings.GetByID(ctx, readingID)
	if err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}
	owner, err := s.units.GetByID(ctx, reading.UnitID)
	if err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	unlock := s.locks.acquire(owner.BillingUnitID())
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpdateReading: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.requireLatest(ctx, tx, reading); err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	if err := s.reverseReadingCharge(ctx, tx, readingID); err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	// Re-read the owner inside the transaction: the reversal may have moved
	// its balance, and the unit price must be current.
	owner, err = s.units.GetByIDTx(ctx, tx, reading.UnitID)
	if err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	usage, cost, err := s.computeCharge(ctx, tx, owner, reading.ReadingDate, newValue)
	if err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	reading.ReadingValue = newValue
	reading.HeatUsage = usage
	reading.CostAmount = cost
	reading.IsBilled = cost.IsPositive()
	if err := s.readings.UpdateComputed(ctx, tx, reading); err != nil {
		return fmt.Errorf("UpdateReading: %w", err)
	}

	if cost.IsPositive() {
		now := time.Now().UTC()
		if err := s.postDeduction(ctx, tx, owner.BillingUnitID(), reading, usage, cost, now); err != nil {
			return fmt.Errorf("UpdateReading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("UpdateReading: commit: %w", err)
	}

	log.Info("reading updated",
		"reading_id", readingID,
		"unit_id", reading.UnitID,
		"new_value", newValue,
		"usage", usage,
		"cost", cost,
	)
	return nil
}

// requireLatest enforces the tail-mutation rule inside the transaction, so
// the check and the mutation see the same history.
func (s *Service) requireLatest(ctx context.Context, tx *sql.Tx, reading *domain.MeterReading) error {
	latest, err := s.readings.GetLatestForUnit(ctx, tx, reading.UnitID)
	if err != nil {
		return err
	}
	if latest.ID != reading.ID {
		return domain.ErrNotLatestReading
	}
	return nil
}

// reverseReadingCharge adds back the absolute amount of the deduction linked
// to a reading and deletes the transaction. The credit goes to the unit the
// transaction was posted to, which for a child unit's reading is the parent;
// reversing against the reading's own unit would silently corrupt the
// parent's balance.
func (s *Service) reverseReadingCharge(ctx context.Context, tx *sql.Tx, readingID uuid.UUID) error {
	t, err := s.transactions.GetByRelatedReading(ctx, tx, readingID)
	if err != nil {
		return fmt.Errorf("reverseReadingCharge: %w", err)
	}
	if t == nil {
		return nil
	}

	billed, err := s.units.GetForUpdate(ctx, tx, t.UnitID)
	if err != nil {
		return fmt.Errorf("reverseReadingCharge: %w", err)
	}

	newBalance := billed.AccountBalance.Add(t.Amount.Abs())
	if err := s.units.UpdateBalance(ctx, tx, billed.ID, newBalance, billed.Version+1); err != nil {
		return fmt.Errorf("reverseReadingCharge: %w", err)
	}

	if err := s.transactions.Delete(ctx, tx, t.ID); err != nil {
		return fmt.Errorf("reverseReadingCharge: %w", err)
	}

	if err := s.cascadeGroupStatus(ctx, tx, billed.ID); err != nil {
		return fmt.Errorf("reverseReadingCharge: %w", err)
	}
	return nil
}

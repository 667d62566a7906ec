package service

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

// HierarchyService manages the one-level parent wallet links between units.
type HierarchyService struct {
	units        unitRepo
	transactions transactionRepo
	db           *sql.DB
}

func NewHierarchyService(units unitRepo, transactions transactionRepo, db *sql.DB) *HierarchyService {
	return &HierarchyService{units: units, transactions: transactions, db: db}
}

// LinkParent attaches a unit to a parent wallet. Any remaining balance on the
// child migrates into the parent as a pair of adjustment entries, so both
// account histories show where the money went. Afterwards the child bills
// against the parent and inherits its arrears status.
func (s *HierarchyService) LinkParent(ctx context.Context, childID, parentID uuid.UUID) error {
	log := logging.FromContext(ctx)

	if childID == parentID {
		return fmt.Errorf("LinkParent: %w", domain.ErrSelfParent)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("LinkParent: begin tx: %w", err)
	}
	defer tx.Rollback()

	child, err := s.units.GetForUpdate(ctx, tx, childID)
	if err != nil {
		return fmt.Errorf("LinkParent: %w", err)
	}
	if child.ParentUnitID != nil {
		return fmt.Errorf("LinkParent: unit already linked: %w", domain.ErrValidation)
	}

	// A unit that is itself a wallet for others cannot become a child: its
	// children would end up two levels below the new parent.
	hasChildren, err := s.units.HasChildren(ctx, tx, childID)
	if err != nil {
		return fmt.Errorf("LinkParent: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("LinkParent: %w", domain.ErrParentCycle)
	}

	parent, err := s.units.GetForUpdate(ctx, tx, parentID)
	if err != nil {
		if errors.Is(err, domain.ErrUnitNotFound) {
			return fmt.Errorf("LinkParent: %w", domain.ErrParentNotFound)
		}
		return fmt.Errorf("LinkParent: %w", err)
	}
	if parent.ParentUnitID != nil {
		return fmt.Errorf("LinkParent: %w", domain.ErrParentDepth)
	}

	if !child.AccountBalance.IsZero() {
		if err := s.migrateFunds(ctx, tx, child, parent); err != nil {
			return fmt.Errorf("LinkParent: %w", err)
		}
	}

	if err := s.units.SetParent(ctx, tx, childID, &parentID); err != nil {
		return fmt.Errorf("LinkParent: %w", err)
	}

	if err := cascadeGroupStatus(ctx, tx, s.units, parentID); err != nil {
		return fmt.Errorf("LinkParent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("LinkParent: commit: %w", err)
	}

	log.Info("parent linked",
		"child_id", childID,
		"parent_id", parentID,
		"migrated", child.AccountBalance,
	)
	return nil
}

// migrateFunds zeroes the child's balance into the parent with two mirrored
// ADJUSTMENT entries. Both rows are needed: the child's account must show the
// outgoing transfer and the parent's the incoming one.
func (s *HierarchyService) migrateFunds(ctx context.Context, tx *sql.Tx, child, parent *domain.Unit) error {
	amount := child.AccountBalance
	now := time.Now().UTC()
	date := now.Truncate(24 * time.Hour)

	if err := s.units.UpdateBalance(ctx, tx, child.ID, decimal.Zero, child.Version+1); err != nil {
		return fmt.Errorf("migrateFunds: %w", err)
	}
	out := &domain.AccountTransaction{
		ID:           uuid.New(),
		UnitID:       child.ID,
		Type:         domain.TransactionTypeAdjustment,
		Date:         date,
		Amount:       amount.Neg(),
		BalanceAfter: decimal.Zero,
		Summary:      fmt.Sprintf("balance transferred to parent %s", parent.Name),
		CreatedAt:    now,
	}
	if err := s.transactions.Create(ctx, tx, out); err != nil {
		return fmt.Errorf("migrateFunds: %w", err)
	}

	parentBalance := parent.AccountBalance.Add(amount)
	if err := s.units.UpdateBalance(ctx, tx, parent.ID, parentBalance, parent.Version+1); err != nil {
		return fmt.Errorf("migrateFunds: %w", err)
	}
	in := &domain.AccountTransaction{
		ID:           uuid.New(),
		UnitID:       parent.ID,
		Type:         domain.TransactionTypeAdjustment,
		Date:         date,
		Amount:       amount,
		BalanceAfter: parentBalance,
		Summary:      fmt.Sprintf("balance received from %s", child.Name),
		CreatedAt:    now,
	}
	if err := s.transactions.Create(ctx, tx, in); err != nil {
		return fmt.Errorf("migrateFunds: %w", err)
	}
	return nil
}

// UnlinkParent detaches a unit from its parent wallet. No funds move: the
// child's balance stays as it is (usually zero after the original migration)
// and its status is recomputed from its own balance.
func (s *HierarchyService) UnlinkParent(ctx context.Context, childID uuid.UUID) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UnlinkParent: begin tx: %w", err)
	}
	defer tx.Rollback()

	child, err := s.units.GetForUpdate(ctx, tx, childID)
	if err != nil {
		return fmt.Errorf("UnlinkParent: %w", err)
	}
	if child.ParentUnitID == nil {
		return fmt.Errorf("UnlinkParent: unit has no parent: %w", domain.ErrValidation)
	}

	if err := s.units.SetParent(ctx, tx, childID, nil); err != nil {
		return fmt.Errorf("UnlinkParent: %w", err)
	}
	if err := s.units.UpdateStatus(ctx, tx, childID, domain.StatusForBalance(child.AccountBalance)); err != nil {
		return fmt.Errorf("UnlinkParent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("UnlinkParent: commit: %w", err)
	}

	log.Info("parent unlinked", "child_id", childID, "former_parent_id", *child.ParentUnitID)
	return nil
}

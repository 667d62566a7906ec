package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/yankun-li/heatledger/internal/domain"
)

// cascadeGroupStatus recomputes the arrears status of the wallet group a unit
// belongs to: the root's status follows the root's balance, and every child
// inherits it. Must run inside the same transaction as the balance mutation
// so status never disagrees with the balance it was derived from.
func cascadeGroupStatus(ctx context.Context, tx *sql.Tx, units unitRepo, unitID uuid.UUID) error {
	unit, err := units.GetByIDTx(ctx, tx, unitID)
	if err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}

	rootID := unit.BillingUnitID()
	root := unit
	if rootID != unit.ID {
		root, err = units.GetByIDTx(ctx, tx, rootID)
		if err != nil {
			return fmt.Errorf("cascadeGroupStatus: %w", err)
		}
	}

	status := domain.StatusForBalance(root.AccountBalance)
	if err := units.UpdateStatus(ctx, tx, rootID, status); err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}
	if err := units.UpdateChildStatuses(ctx, tx, rootID, status); err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}
	return nil
}

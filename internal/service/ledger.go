package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/repository"
)

// LedgerService covers the manual money movements: recharges, balance
// adjustments, and undoing a transaction by reversing its numeric effect.
type LedgerService struct {
	units        unitRepo
	readings     readingRepo
	transactions transactionRepo
	db           *sql.DB
}

func NewLedgerService(units unitRepo, readings readingRepo, transactions transactionRepo, db *sql.DB) *LedgerService {
	return &LedgerService{
		units:        units,
		readings:     readings,
		transactions: transactions,
		db:           db,
	}
}

// Recharge credits a unit's billing account, dated to the day the money
// actually arrived. For a linked child the money lands on the parent wallet,
// with the child named in the remark.
func (s *LedgerService) Recharge(ctx context.Context, unitID uuid.UUID, amount decimal.Decimal, date time.Time, remarks *string) (*domain.AccountTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("Recharge: %w", domain.ErrInvalidAmount)
	}
	t, err := s.post(ctx, unitID, domain.TransactionTypeRecharge, amount, date, "recharge", remarks)
	if err != nil {
		return nil, fmt.Errorf("Recharge: %w", err)
	}
	return t, nil
}

// AdjustBalance applies a signed manual correction to a unit's billing
// account, dated to the given day.
func (s *LedgerService) AdjustBalance(ctx context.Context, unitID uuid.UUID, amount decimal.Decimal, date time.Time, remarks *string) (*domain.AccountTransaction, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrInvalidAmount)
	}
	t, err := s.post(ctx, unitID, domain.TransactionTypeAdjustment, amount, date, "balance adjustment", remarks)
	if err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", err)
	}
	return t, nil
}

func (s *LedgerService) post(ctx context.Context, unitID uuid.UUID, typ domain.TransactionType, amount decimal.Decimal, date time.Time, summary string, remarks *string) (*domain.AccountTransaction, error) {
	log := logging.FromContext(ctx)

	unit, err := s.units.GetByID(ctx, unitID)
	if err != nil {
		return nil, err
	}

	billingID := unit.BillingUnitID()
	if billingID != unit.ID {
		note := fmt.Sprintf("on behalf of %s", unit.Name)
		if remarks != nil && *remarks != "" {
			note = fmt.Sprintf("%s; %s", note, *remarks)
		}
		remarks = &note
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	billed, err := s.units.GetForUpdate(ctx, tx, billingID)
	if err != nil {
		return nil, err
	}

	newBalance := billed.AccountBalance.Add(amount)
	if err := s.units.UpdateBalance(ctx, tx, billed.ID, newBalance, billed.Version+1); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if date.IsZero() {
		date = now
	}
	t := &domain.AccountTransaction{
		ID:           uuid.New(),
		UnitID:       billed.ID,
		Type:         typ,
		Date:         date.Truncate(24 * time.Hour),
		Amount:       amount,
		BalanceAfter: newBalance,
		Summary:      summary,
		Remarks:      remarks,
		CreatedAt:    now,
	}
	if err := s.transactions.Create(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := cascadeGroupStatus(ctx, tx, s.units, billed.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	log.Info("transaction posted",
		"type", typ,
		"unit_id", billed.ID,
		"amount", amount,
		"balance_after", newBalance,
	)
	return t, nil
}

// DeleteTransaction undoes a ledger entry: the posted amount is subtracted
// back off the unit it was posted to, regardless of type, and a linked
// reading is marked unbilled again. Works uniformly because amounts are
// signed: deleting a deduction (negative amount) credits the account.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: begin tx: %w", err)
	}
	defer tx.Rollback()

	t, err := s.transactions.GetByIDTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	billed, err := s.units.GetForUpdate(ctx, tx, t.UnitID)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	newBalance := billed.AccountBalance.Sub(t.Amount)
	if err := s.units.UpdateBalance(ctx, tx, billed.ID, newBalance, billed.Version+1); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	if t.RelatedReadingID != nil {
		if err := s.readings.SetBilled(ctx, tx, *t.RelatedReadingID, false); err != nil {
			return fmt.Errorf("DeleteTransaction: %w", err)
		}
	}

	if err := s.transactions.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	if err := cascadeGroupStatus(ctx, tx, s.units, billed.ID); err != nil {
		return fmt.Errorf("DeleteTransaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteTransaction: commit: %w", err)
	}

	log.Info("transaction deleted", "transaction_id", id, "unit_id", billed.ID, "reversed_amount", t.Amount)
	return nil
}

func (s *LedgerService) ListAllTransactions(ctx context.Context) ([]domain.AccountTransaction, error) {
	txs, err := s.transactions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAllTransactions: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]domain.AccountTransaction, int, error) {
	txs, total, err := s.transactions.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, total, nil
}

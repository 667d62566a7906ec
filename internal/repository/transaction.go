package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
)

const transactionColumns = `id, unit_id, type, date, amount, balance_after,
	related_reading_id, summary, remarks, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.AccountTransaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO account_transactions (
			id, unit_id, type, date, amount, balance_after,
			related_reading_id, summary, remarks, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.UnitID, t.Type, t.Date, t.Amount, t.BalanceAfter,
		t.RelatedReadingID, t.Summary, t.Remarks, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AccountTransaction, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *TransactionRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.AccountTransaction, error) {
	return r.getByID(ctx, tx, id)
}

func (r *TransactionRepository) getByID(ctx context.Context, q querier, id uuid.UUID) (*domain.AccountTransaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM account_transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// GetByRelatedReading finds the deduction posted for a reading. Returns
// (nil, nil) when the reading was never billed.
func (r *TransactionRepository) GetByRelatedReading(ctx context.Context, tx *sql.Tx, readingID uuid.UUID) (*domain.AccountTransaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM account_transactions
		WHERE related_reading_id = $1`, readingID,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetByRelatedReading: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) HasInitial(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM account_transactions WHERE unit_id = $1 AND type = $2`,
		unitID, domain.TransactionTypeInitial,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("HasInitial: %w", err)
	}
	return count > 0, nil
}

type TransactionFilter struct {
	Type      *domain.TransactionType
	UnitID    *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]domain.AccountTransaction, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0

	add := func(clause string, v any) {
		n++
		where += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, v)
	}

	if f.Type != nil {
		add("type =", *f.Type)
	}
	if f.UnitID != nil {
		add("unit_id =", *f.UnitID)
	}
	if f.StartDate != nil {
		add("date >=", *f.StartDate)
	}
	if f.EndDate != nil {
		add("date <=", *f.EndDate)
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM account_transactions `+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM account_transactions ` + where +
		fmt.Sprintf(` ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var txs []domain.AccountTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return txs, total, nil
}

func (r *TransactionRepository) ListAll(ctx context.Context) ([]domain.AccountTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM account_transactions
		ORDER BY date DESC, created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}
	defer rows.Close()

	var txs []domain.AccountTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAll: scan: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAll: rows: %w", err)
	}
	return txs, nil
}

// SumNonDeductionsThrough aggregates recharge/adjustment amounts per unit with
// entry date on or before the cutoff. INITIAL is excluded (it is the base the
// reconstruction starts from) and DEDUCTION is handled separately because its
// effective date is the linked reading's date.
func (r *TransactionRepository) SumNonDeductionsThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT unit_id, COALESCE(SUM(amount), 0)
		FROM account_transactions
		WHERE type NOT IN ($1, $2) AND date <= $3
		GROUP BY unit_id`,
		domain.TransactionTypeInitial, domain.TransactionTypeDeduction, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("SumNonDeductionsThrough: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var unitID uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&unitID, &sum); err != nil {
			return nil, fmt.Errorf("SumNonDeductionsThrough: scan: %w", err)
		}
		sums[unitID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumNonDeductionsThrough: rows: %w", err)
	}
	return sums, nil
}

// SumRecharges aggregates real incoming money per unit: RECHARGE entries
// only, with no date bound. Adjustments are excluded so intra-group moves do
// not count as revenue twice.
func (r *TransactionRepository) SumRecharges(ctx context.Context, tx *sql.Tx) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT unit_id, COALESCE(SUM(amount), 0)
		FROM account_transactions
		WHERE type = $1
		GROUP BY unit_id`,
		domain.TransactionTypeRecharge,
	)
	if err != nil {
		return nil, fmt.Errorf("SumRecharges: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var unitID uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&unitID, &sum); err != nil {
			return nil, fmt.Errorf("SumRecharges: scan: %w", err)
		}
		sums[unitID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumRecharges: rows: %w", err)
	}
	return sums, nil
}

// SumDeductionsThrough aggregates deduction amounts per billed unit whose
// linked reading is dated on or before the cutoff.
func (r *TransactionRepository) SumDeductionsThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT t.unit_id, COALESCE(SUM(t.amount), 0)
		FROM account_transactions t
		JOIN meter_readings m ON m.id = t.related_reading_id
		WHERE t.type = $1 AND m.reading_date <= $2
		GROUP BY t.unit_id`,
		domain.TransactionTypeDeduction, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("SumDeductionsThrough: %w", err)
	}
	defer rows.Close()

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var unitID uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&unitID, &sum); err != nil {
			return nil, fmt.Errorf("SumDeductionsThrough: scan: %w", err)
		}
		sums[unitID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumDeductionsThrough: rows: %w", err)
	}
	return sums, nil
}

func (r *TransactionRepository) Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM account_transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Delete: %w", domain.ErrTransactionNotFound)
	}
	return nil
}

func (r *TransactionRepository) DeleteByUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM account_transactions WHERE unit_id = $1`, unitID)
	if err != nil {
		return fmt.Errorf("DeleteByUnit: %w", err)
	}
	return nil
}

// DeleteByRelatedUnitReadings removes transactions linked to any of a unit's
// readings, wherever they were posted. A child's deductions live on the
// parent's account, so deleting by unit_id alone leaves rows that still
// reference the child's readings.
func (r *TransactionRepository) DeleteByRelatedUnitReadings(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM account_transactions
		WHERE related_reading_id IN (SELECT id FROM meter_readings WHERE unit_id = $1)`,
		unitID,
	)
	if err != nil {
		return fmt.Errorf("DeleteByRelatedUnitReadings: %w", err)
	}
	return nil
}

func scanTransaction(s scanner) (*domain.AccountTransaction, error) {
	var t domain.AccountTransaction
	err := s.Scan(
		&t.ID, &t.UnitID, &t.Type, &t.Date, &t.Amount, &t.BalanceAfter,
		&t.RelatedReadingID, &t.Summary, &t.Remarks, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

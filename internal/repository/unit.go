package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
)

const unitColumns = `id, name, code, contact_info, area, unit_price,
	account_balance, initial_balance, base_temp, status, parent_unit_id,
	version, remarks, created_at`

type UnitRepository struct {
	db *sql.DB
}

func NewUnitRepository(db *sql.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx reads a unit through an open transaction without locking the row.
func (r *UnitRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error) {
	return r.getByID(ctx, tx, id)
}

func (r *UnitRepository) getByID(ctx context.Context, q querier, id uuid.UUID) (*domain.Unit, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1`, id,
	)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrUnitNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return u, nil
}

func (r *UnitRepository) GetByName(ctx context.Context, name string) (*domain.Unit, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE name = $1`, name,
	)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByName: %w", domain.ErrUnitNotFound)
		}
		return nil, fmt.Errorf("GetByName: %w", err)
	}
	return u, nil
}

func (r *UnitRepository) List(ctx context.Context) ([]domain.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows, "List")
}

// ListTx reads all units through an open transaction. Snapshot
// reconstruction uses it so the unit set and the transaction sums come from
// the same consistent view.
func (r *UnitRepository) ListTx(ctx context.Context, tx *sql.Tx) ([]domain.Unit, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListTx: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows, "ListTx")
}

func (r *UnitRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE parent_unit_id = $1 ORDER BY name`, parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListChildren: %w", err)
	}
	defer rows.Close()

	return collectUnits(rows, "ListChildren")
}

func (r *UnitRepository) HasChildren(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM units WHERE parent_unit_id = $1`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("HasChildren: %w", err)
	}
	return count > 0, nil
}

func (r *UnitRepository) Create(ctx context.Context, tx *sql.Tx, unit *domain.Unit) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO units (
			id, name, code, contact_info, area, unit_price,
			account_balance, initial_balance, base_temp, status, parent_unit_id,
			version, remarks, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		unit.ID, unit.Name, unit.Code, unit.ContactInfo, unit.Area, unit.UnitPrice,
		unit.AccountBalance, unit.InitialBalance, unit.BaseTemp, unit.Status,
		unit.ParentUnitID, unit.Version, unit.Remarks, unit.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Create: %w", domain.ErrUnitNameExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateFields writes the editable descriptive fields of a unit. Balance,
// status and parent are never touched here; they move only through the
// ledger operations.
func (r *UnitRepository) UpdateFields(ctx context.Context, tx *sql.Tx, unit *domain.Unit) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE units SET name = $1, code = $2, contact_info = $3, area = $4,
			unit_price = $5, initial_balance = $6, base_temp = $7, remarks = $8
		 WHERE id = $9`,
		unit.Name, unit.Code, unit.ContactInfo, unit.Area,
		unit.UnitPrice, unit.InitialBalance, unit.BaseTemp, unit.Remarks,
		unit.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("UpdateFields: %w", domain.ErrUnitNameExists)
		}
		return fmt.Errorf("UpdateFields: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateFields: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateFields: %w", domain.ErrUnitNotFound)
	}
	return nil
}

func (r *UnitRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1 FOR UPDATE`, id,
	)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrUnitNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return u, nil
}

func (r *UnitRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE units SET account_balance = $1, version = $2 WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *UnitRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.UnitStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE units SET status = $1 WHERE id = $2`, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

func (r *UnitRepository) UpdateChildStatuses(ctx context.Context, tx *sql.Tx, parentID uuid.UUID, status domain.UnitStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE units SET status = $1 WHERE parent_unit_id = $2`, status, parentID,
	)
	if err != nil {
		return fmt.Errorf("UpdateChildStatuses: %w", err)
	}
	return nil
}

func (r *UnitRepository) SetParent(ctx context.Context, tx *sql.Tx, childID uuid.UUID, parentID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE units SET parent_unit_id = $1 WHERE id = $2`, parentID, childID,
	)
	if err != nil {
		return fmt.Errorf("SetParent: %w", err)
	}
	return nil
}

func (r *UnitRepository) Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Delete: %w", domain.ErrUnitNotFound)
	}
	return nil
}

func collectUnits(rows *sql.Rows, op string) ([]domain.Unit, error) {
	var units []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		units = append(units, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return units, nil
}

func scanUnit(s scanner) (*domain.Unit, error) {
	var u domain.Unit
	err := s.Scan(
		&u.ID, &u.Name, &u.Code, &u.ContactInfo, &u.Area, &u.UnitPrice,
		&u.AccountBalance, &u.InitialBalance, &u.BaseTemp, &u.Status,
		&u.ParentUnitID, &u.Version, &u.Remarks, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

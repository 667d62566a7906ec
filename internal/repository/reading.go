package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yankun-li/heatledger/internal/domain"
)

const readingColumns = `id, unit_id, reading_date, reading_value, heat_usage,
	cost_amount, daily_avg_temp, is_billed, remarks, created_at`

type ReadingRepository struct {
	db *sql.DB
}

func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func (r *ReadingRepository) Create(ctx context.Context, tx *sql.Tx, reading *domain.MeterReading) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meter_readings (
			id, unit_id, reading_date, reading_value, heat_usage,
			cost_amount, daily_avg_temp, is_billed, remarks, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reading.ID, reading.UnitID, reading.ReadingDate, reading.ReadingValue,
		reading.HeatUsage, reading.CostAmount, reading.DailyAvgTemp,
		reading.IsBilled, reading.Remarks, reading.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateReading)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ReadingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MeterReading, error) {
	return r.getByID(ctx, r.db, id)
}

func (r *ReadingRepository) GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.MeterReading, error) {
	return r.getByID(ctx, tx, id)
}

func (r *ReadingRepository) getByID(ctx context.Context, q querier, id uuid.UUID) (*domain.MeterReading, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM meter_readings WHERE id = $1`, id,
	)
	m, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrReadingNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

// GetLatestForUnit returns the reading with the maximum date for a unit, or
// domain.ErrReadingNotFound when the unit has none.
func (r *ReadingRepository) GetLatestForUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) (*domain.MeterReading, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM meter_readings
		WHERE unit_id = $1 ORDER BY reading_date DESC LIMIT 1`, unitID,
	)
	m, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetLatestForUnit: %w", domain.ErrReadingNotFound)
		}
		return nil, fmt.Errorf("GetLatestForUnit: %w", err)
	}
	return m, nil
}

// GetPreviousBefore returns the closest reading strictly before date for the
// unit, or domain.ErrReadingNotFound when this would be the first reading.
func (r *ReadingRepository) GetPreviousBefore(ctx context.Context, tx *sql.Tx, unitID uuid.UUID, date time.Time) (*domain.MeterReading, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM meter_readings
		WHERE unit_id = $1 AND reading_date < $2
		ORDER BY reading_date DESC LIMIT 1`, unitID, date,
	)
	m, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetPreviousBefore: %w", domain.ErrReadingNotFound)
		}
		return nil, fmt.Errorf("GetPreviousBefore: %w", err)
	}
	return m, nil
}

// EarliestSince returns, per unit, the first reading dated on or after the
// given day. Units with no such reading are absent from the map.
func (r *ReadingRepository) EarliestSince(ctx context.Context, tx *sql.Tx, date time.Time) (map[uuid.UUID]domain.MeterReading, error) {
	return r.boundaryReadings(ctx, tx,
		`SELECT DISTINCT ON (unit_id) `+readingColumns+` FROM meter_readings
		WHERE reading_date >= $1
		ORDER BY unit_id, reading_date ASC`, date, "EarliestSince")
}

// LatestThrough returns, per unit, the last reading dated on or before the
// given instant.
func (r *ReadingRepository) LatestThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]domain.MeterReading, error) {
	return r.boundaryReadings(ctx, tx,
		`SELECT DISTINCT ON (unit_id) `+readingColumns+` FROM meter_readings
		WHERE reading_date <= $1
		ORDER BY unit_id, reading_date DESC`, cutoff, "LatestThrough")
}

func (r *ReadingRepository) boundaryReadings(ctx context.Context, tx *sql.Tx, query string, bound time.Time, op string) (map[uuid.UUID]domain.MeterReading, error) {
	rows, err := tx.QueryContext(ctx, query, bound)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]domain.MeterReading)
	for rows.Next() {
		m, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out[m.UnitID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func (r *ReadingRepository) ListByUnit(ctx context.Context, unitID uuid.UUID) ([]domain.MeterReading, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM meter_readings
		WHERE unit_id = $1 ORDER BY reading_date DESC`, unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUnit: %w", err)
	}
	defer rows.Close()

	var readings []domain.MeterReading
	for rows.Next() {
		m, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUnit: scan: %w", err)
		}
		readings = append(readings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUnit: rows: %w", err)
	}
	return readings, nil
}

// UpdateComputed rewrites the value-derived columns of a reading after an
// edit. The reading date never changes.
func (r *ReadingRepository) UpdateComputed(ctx context.Context, tx *sql.Tx, reading *domain.MeterReading) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE meter_readings
		SET reading_value = $1, heat_usage = $2, cost_amount = $3, is_billed = $4
		WHERE id = $5`,
		reading.ReadingValue, reading.HeatUsage, reading.CostAmount,
		reading.IsBilled, reading.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateComputed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateComputed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateComputed: %w", domain.ErrReadingNotFound)
	}
	return nil
}

func (r *ReadingRepository) SetBilled(ctx context.Context, tx *sql.Tx, id uuid.UUID, billed bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE meter_readings SET is_billed = $1 WHERE id = $2`, billed, id,
	)
	if err != nil {
		return fmt.Errorf("SetBilled: %w", err)
	}
	return nil
}

func (r *ReadingRepository) Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM meter_readings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (r *ReadingRepository) DeleteByUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM meter_readings WHERE unit_id = $1`, unitID)
	if err != nil {
		return fmt.Errorf("DeleteByUnit: %w", err)
	}
	return nil
}

func scanReading(s scanner) (*domain.MeterReading, error) {
	var m domain.MeterReading
	err := s.Scan(
		&m.ID, &m.UnitID, &m.ReadingDate, &m.ReadingValue, &m.HeatUsage,
		&m.CostAmount, &m.DailyAvgTemp, &m.IsBilled, &m.Remarks, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

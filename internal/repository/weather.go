package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DailyWeather is one cached day of temperature data keyed by calendar date.
type DailyWeather struct {
	Date    time.Time
	Temp    decimal.Decimal
	MinTemp *decimal.Decimal
	MaxTemp *decimal.Decimal
}

type WeatherRepository struct {
	db *sql.DB
}

func NewWeatherRepository(db *sql.DB) *WeatherRepository {
	return &WeatherRepository{db: db}
}

// GetByDate returns (nil, nil) on a cache miss.
func (r *WeatherRepository) GetByDate(ctx context.Context, date time.Time) (*DailyWeather, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT date, temp, min_temp, max_temp FROM daily_weather WHERE date = $1`, date,
	)
	var w DailyWeather
	err := row.Scan(&w.Date, &w.Temp, &w.MinTemp, &w.MaxTemp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetByDate: %w", err)
	}
	return &w, nil
}

func (r *WeatherRepository) Upsert(ctx context.Context, w *DailyWeather) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO daily_weather (date, temp, min_temp, max_temp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET temp = $2, min_temp = $3, max_temp = $4`,
		w.Date, w.Temp, w.MinTemp, w.MaxTemp,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

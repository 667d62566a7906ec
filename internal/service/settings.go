package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
)

// Settings keys understood by the system. Unknown keys are rejected so typos
// do not silently create orphan rows.
const (
	SettingDefaultUnitPrice = "default_unit_price"
	SettingDefaultBaseTemp  = "default_base_temp"
	SettingBillingSeason    = "billing_season"
	SettingCityConfig       = "city_config"
)

var knownSettings = map[string]bool{
	SettingDefaultUnitPrice: true,
	SettingDefaultBaseTemp:  true,
	SettingBillingSeason:    true,
	SettingCityConfig:       true,
}

// CityConfig locates the weather station the billing engine queries.
type CityConfig struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

type settingRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Upsert(ctx context.Context, key, value string) error
}

// SettingsService stores operator-tunable defaults such as the fallback unit
// price applied to imported units that carry no price of their own.
type SettingsService struct {
	settings settingRepo
}

func NewSettingsService(settings settingRepo) *SettingsService {
	return &SettingsService{settings: settings}
}

func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	if !knownSettings[key] {
		return "", fmt.Errorf("GetSetting: unknown key %q: %w", key, domain.ErrValidation)
	}
	value, err := s.settings.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("GetSetting: %w", err)
	}
	return value, nil
}

func (s *SettingsService) PutSetting(ctx context.Context, key, value string) error {
	log := logging.FromContext(ctx)

	if !knownSettings[key] {
		return fmt.Errorf("PutSetting: unknown key %q: %w", key, domain.ErrValidation)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("PutSetting: empty value: %w", domain.ErrValidation)
	}
	if key == SettingDefaultUnitPrice || key == SettingDefaultBaseTemp {
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("PutSetting: %s must be numeric: %w", key, domain.ErrValidation)
		}
	}
	if key == SettingCityConfig {
		var cfg CityConfig
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			return fmt.Errorf("PutSetting: %s must be JSON: %w", key, domain.ErrValidation)
		}
		if cfg.Name == "" || cfg.Lat < -90 || cfg.Lat > 90 || cfg.Lon < -180 || cfg.Lon > 180 {
			return fmt.Errorf("PutSetting: %s needs a name and valid coordinates: %w", key, domain.ErrValidation)
		}
	}

	if err := s.settings.Upsert(ctx, key, value); err != nil {
		return fmt.Errorf("PutSetting: %w", err)
	}

	log.Info("setting updated", "key", key)
	return nil
}

// DefaultUnitPrice returns the configured fallback price, or zero when none
// has been set.
func (s *SettingsService) DefaultUnitPrice(ctx context.Context) (decimal.Decimal, error) {
	value, err := s.settings.Get(ctx, SettingDefaultUnitPrice)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("DefaultUnitPrice: %w", err)
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("DefaultUnitPrice: %w", err)
	}
	return price, nil
}
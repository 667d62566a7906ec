package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/service"
	"github.com/yankun-li/heatledger/internal/testutil"
)

func TestSettings_PutGetRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewSettingRepository(db))
	ctx := context.Background()

	err := svc.PutSetting(ctx, service.SettingDefaultUnitPrice, "11.25")
	require.NoError(t, err)

	value, err := svc.GetSetting(ctx, service.SettingDefaultUnitPrice)
	require.NoError(t, err)
	assert.Equal(t, "11.25", value)

	// Upsert overwrites.
	require.NoError(t, svc.PutSetting(ctx, service.SettingDefaultUnitPrice, "12"))
	value, err = svc.GetSetting(ctx, service.SettingDefaultUnitPrice)
	require.NoError(t, err)
	assert.Equal(t, "12", value)
}

func TestSettings_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewSettingRepository(db))
	ctx := context.Background()

	err := svc.PutSetting(ctx, "no_such_setting", "1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.PutSetting(ctx, service.SettingDefaultUnitPrice, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.PutSetting(ctx, service.SettingBillingSeason, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.GetSetting(ctx, "no_such_setting")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSettings_DefaultUnitPriceFallsBackToZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewSettingRepository(db))
	ctx := context.Background()

	price, err := svc.DefaultUnitPrice(ctx)
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestSettings_CityConfig(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := service.NewSettingsService(repository.NewSettingRepository(db))
	ctx := context.Background()

	err := svc.PutSetting(ctx, service.SettingCityConfig, `{"lat": 36.81, "lon": 118.05, "name": "Zibo"}`)
	require.NoError(t, err)

	value, err := svc.GetSetting(ctx, service.SettingCityConfig)
	require.NoError(t, err)
	assert.Contains(t, value, "Zibo")

	err = svc.PutSetting(ctx, service.SettingCityConfig, "not json")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.PutSetting(ctx, service.SettingCityConfig, `{"lat": 136.81, "lon": 118.05, "name": "Zibo"}`)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.PutSetting(ctx, service.SettingCityConfig, `{"lat": 36.81, "lon": 118.05}`)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
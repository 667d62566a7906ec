package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/weather"
)

// memCache is an in-memory stand-in for the daily_weather table.
type memCache struct {
	mu   sync.Mutex
	data map[string]*repository.DailyWeather
}

func newMemCache() *memCache {
	return &memCache{data: map[string]*repository.DailyWeather{}}
}

func (c *memCache) GetByDate(ctx context.Context, date time.Time) (*repository.DailyWeather, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[date.Format("2006-01-02")], nil
}

func (c *memCache) Upsert(ctx context.Context, w *repository.DailyWeather) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[w.Date.Format("2006-01-02")] = w
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTemperatureForDate_FetchesAndCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "2024-01-15", r.URL.Query().Get("start_date"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"time":["2024-01-15"],"temperature_2m_max":[4.0],"temperature_2m_min":[-6.0]}}`))
	}))
	defer srv.Close()

	cache := newMemCache()
	client := weather.NewClient(srv.URL, 36.81, 118.05, 2*time.Second, cache, nil)

	temp := client.TemperatureForDate(context.Background(), day(2024, 1, 15))
	require.NotNil(t, temp)
	assert.True(t, decimal.NewFromInt(-1).Equal(*temp), "average of max 4 and min -6")

	// Second lookup must come from the cache.
	temp = client.TemperatureForDate(context.Background(), day(2024, 1, 15))
	require.NotNil(t, temp)
	assert.True(t, decimal.NewFromInt(-1).Equal(*temp))
	assert.Equal(t, 1, calls)
}

func TestTemperatureForDate_DegradesToNilOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := weather.NewClient(srv.URL, 36.81, 118.05, 2*time.Second, newMemCache(), nil)

	assert.Nil(t, client.TemperatureForDate(context.Background(), day(2024, 1, 15)))
}

func TestTemperatureForDate_DegradesToNilOnEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"time":[],"temperature_2m_max":[],"temperature_2m_min":[]}}`))
	}))
	defer srv.Close()

	client := weather.NewClient(srv.URL, 36.81, 118.05, 2*time.Second, newMemCache(), nil)

	assert.Nil(t, client.TemperatureForDate(context.Background(), day(2024, 1, 15)))
}

func TestTemperatureForDate_DegradesToNilOnUnreachableHost(t *testing.T) {
	client := weather.NewClient("http://127.0.0.1:1", 36.81, 118.05, 500*time.Millisecond, newMemCache(), nil)

	assert.Nil(t, client.TemperatureForDate(context.Background(), day(2024, 1, 15)))
}

// memSettings is a settings table stand-in keyed by setting name.
type memSettings map[string]string

func (s memSettings) Get(ctx context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func TestTemperatureForDate_UsesStoredCityConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "39.9", r.URL.Query().Get("latitude"))
		assert.Equal(t, "116.4", r.URL.Query().Get("longitude"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"time":["2024-01-15"],"temperature_2m_max":[2.0],"temperature_2m_min":[-4.0]}}`))
	}))
	defer srv.Close()

	settings := memSettings{
		"city_config": `{"lat": 39.9, "lon": 116.4, "name": "Beijing"}`,
	}
	client := weather.NewClient(srv.URL, 36.81, 118.05, 2*time.Second, newMemCache(), settings)

	temp := client.TemperatureForDate(context.Background(), day(2024, 1, 15))
	require.NotNil(t, temp)
	assert.True(t, decimal.NewFromInt(-1).Equal(*temp))
}

func TestTemperatureForDate_FallsBackToDefaultCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "36.81", r.URL.Query().Get("latitude"))
		assert.Equal(t, "118.05", r.URL.Query().Get("longitude"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"time":["2024-01-15"],"temperature_2m_max":[2.0],"temperature_2m_min":[-4.0]}}`))
	}))
	defer srv.Close()

	// No city_config row stored, so the constructor defaults apply.
	client := weather.NewClient(srv.URL, 36.81, 118.05, 2*time.Second, newMemCache(), memSettings{})

	temp := client.TemperatureForDate(context.Background(), day(2024, 1, 15))
	require.NotNil(t, temp)
}

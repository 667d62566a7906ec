package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/repository"
)

// weatherCache is the daily_weather table; lookups hit it before the API and
// successful fetches are written back.
type weatherCache interface {
	GetByDate(ctx context.Context, date time.Time) (*repository.DailyWeather, error)
	Upsert(ctx context.Context, w *repository.DailyWeather) error
}

// settingSource resolves the city_config setting. A nil source or a missing
// row means the configured default coordinates apply.
type settingSource interface {
	Get(ctx context.Context, key string) (string, error)
}

const cityConfigKey = "city_config"

type cityConfig struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}

type Client struct {
	baseURL    string
	lat, lon   float64
	settings   settingSource
	cache      weatherCache
	httpClient *http.Client
}

func NewClient(baseURL string, lat, lon float64, timeout time.Duration, cache weatherCache, settings settingSource) *Client {
	return &Client{
		baseURL:  baseURL,
		lat:      lat,
		lon:      lon,
		settings: settings,
		cache:    cache,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// coords returns the coordinates to query, preferring the stored city_config
// over the static defaults so an operator can move the station without a
// redeploy.
func (c *Client) coords(ctx context.Context) (lat, lon float64) {
	if c.settings == nil {
		return c.lat, c.lon
	}
	raw, err := c.settings.Get(ctx, cityConfigKey)
	if err != nil {
		return c.lat, c.lon
	}
	var cfg cityConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		logging.FromContext(ctx).Warn("malformed city_config, using default coordinates", "error", err)
		return c.lat, c.lon
	}
	return cfg.Lat, cfg.Lon
}

type forecastResponse struct {
	Daily struct {
		Time    []string   `json:"time"`
		TempMax []*float64 `json:"temperature_2m_max"`
		TempMin []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// TemperatureForDate returns the daily average temperature for a date, or nil
// when neither the cache nor the weather API can provide one. A failed fetch
// is a degradation, not an error: it is logged and nil is returned so billing
// proceeds with the temperature absent.
func (c *Client) TemperatureForDate(ctx context.Context, date time.Time) *decimal.Decimal {
	log := logging.FromContext(ctx)

	cached, err := c.cache.GetByDate(ctx, date)
	if err != nil {
		log.Warn("weather cache lookup failed", "date", date.Format("2006-01-02"), "error", err)
	} else if cached != nil {
		return &cached.Temp
	}

	temp, minT, maxT, err := c.fetch(ctx, date)
	if err != nil {
		log.Warn("weather fetch degraded, storing temperature as absent",
			"date", date.Format("2006-01-02"), "error", err)
		return nil
	}
	if temp == nil {
		return nil
	}

	if err := c.cache.Upsert(ctx, &repository.DailyWeather{
		Date:    date,
		Temp:    *temp,
		MinTemp: minT,
		MaxTemp: maxT,
	}); err != nil {
		log.Warn("weather cache write failed", "date", date.Format("2006-01-02"), "error", err)
	}

	return temp
}

func (c *Client) fetch(ctx context.Context, date time.Time) (temp, minT, maxT *decimal.Decimal, err error) {
	dateStr := date.Format("2006-01-02")
	lat, lon := c.coords(ctx)

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", lat))
	q.Set("longitude", fmt.Sprintf("%g", lon))
	q.Set("daily", "temperature_2m_max,temperature_2m_min")
	q.Set("start_date", dateStr)
	q.Set("end_date", dateStr)

	reqURL := c.baseURL + "/v1/forecast?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, nil, fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, nil, fmt.Errorf("fetch: decode: %w", err)
	}

	if len(payload.Daily.Time) == 0 ||
		len(payload.Daily.TempMax) == 0 || len(payload.Daily.TempMin) == 0 {
		return nil, nil, nil, nil
	}

	maxV, minV := payload.Daily.TempMax[0], payload.Daily.TempMin[0]
	if maxV == nil || minV == nil {
		return nil, nil, nil, nil
	}

	maxD := decimal.NewFromFloat(*maxV)
	minD := decimal.NewFromFloat(*minV)
	avg := maxD.Add(minD).Div(decimal.NewFromInt(2)).Round(2)

	return &avg, &minD, &maxD, nil
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/logging"
)

type settingsService interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

type temperatureSource interface {
	TemperatureForDate(ctx context.Context, date time.Time) *decimal.Decimal
}

type SettingHandler struct {
	settings settingsService
	weather  temperatureSource
}

func NewSettingHandler(settings settingsService, weather temperatureSource) *SettingHandler {
	return &SettingHandler{settings: settings, weather: weather}
}

func (h *SettingHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := h.settings.GetSetting(r.Context(), key)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": value,
	})
}

func (h *SettingHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.settings.PutSetting(r.Context(), key, req.Value); err != nil {
		logging.FromContext(r.Context()).Error("failed to update setting", "error", err, "key", key)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": req.Value,
	})
}

// TestWeather fetches today's temperature so an operator can verify the
// configured city before the season starts.
func (h *SettingHandler) TestWeather(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC()

	temp := h.weather.TemperatureForDate(r.Context(), today)
	if temp == nil {
		RespondAppError(w, ErrWeatherUnavailable, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{
		"date":        today.Format(dateLayout),
		"temperature": temp.String(),
	})
}
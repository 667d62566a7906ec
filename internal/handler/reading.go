package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/service/billing"
)

type billingService interface {
	SubmitReading(ctx context.Context, req billing.SubmitReadingRequest) (*domain.MeterReading, error)
	UpdateReading(ctx context.Context, readingID uuid.UUID, newValue decimal.Decimal) error
	DeleteReading(ctx context.Context, readingID uuid.UUID) error
	SubmitBatch(ctx context.Context, entries []billing.BatchEntry) (*billing.BatchResult, error)
	ListReadings(ctx context.Context, unitID uuid.UUID) ([]domain.MeterReading, error)
}

type ReadingHandler struct {
	billing billingService
}

func NewReadingHandler(billing billingService) *ReadingHandler {
	return &ReadingHandler{billing: billing}
}

const dateLayout = "2006-01-02"

type submitReadingRequest struct {
	UnitID       uuid.UUID        `json:"unitId"`
	ReadingDate  string           `json:"readingDate"`
	ReadingValue decimal.Decimal  `json:"readingValue"`
	DailyAvgTemp *decimal.Decimal `json:"dailyAvgTemp"`
	Remarks      *string          `json:"remarks"`
}

func (r submitReadingRequest) Validate() []FieldError {
	var errs []FieldError
	if r.UnitID == uuid.Nil {
		errs = append(errs, FieldError{Field: "unitId", Message: "required"})
	}
	if r.ReadingDate == "" {
		errs = append(errs, FieldError{Field: "readingDate", Message: "required"})
	} else if _, err := time.Parse(dateLayout, r.ReadingDate); err != nil {
		errs = append(errs, FieldError{Field: "readingDate", Message: "must be YYYY-MM-DD"})
	}
	if r.ReadingValue.IsNegative() {
		errs = append(errs, FieldError{Field: "readingValue", Message: "must not be negative"})
	}
	return errs
}

type readingDTO struct {
	ID           uuid.UUID        `json:"id"`
	UnitID       uuid.UUID        `json:"unitId"`
	ReadingDate  string           `json:"readingDate"`
	ReadingValue decimal.Decimal  `json:"readingValue"`
	HeatUsage    decimal.Decimal  `json:"heatUsage"`
	CostAmount   decimal.Decimal  `json:"costAmount"`
	DailyAvgTemp *decimal.Decimal `json:"dailyAvgTemp"`
	IsBilled     bool             `json:"isBilled"`
	Remarks      *string          `json:"remarks"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func toReadingDTO(m *domain.MeterReading) readingDTO {
	return readingDTO{
		ID:           m.ID,
		UnitID:       m.UnitID,
		ReadingDate:  m.ReadingDate.Format(dateLayout),
		ReadingValue: m.ReadingValue,
		HeatUsage:    m.HeatUsage,
		CostAmount:   m.CostAmount,
		DailyAvgTemp: m.DailyAvgTemp,
		IsBilled:     m.IsBilled,
		Remarks:      m.Remarks,
		CreatedAt:    m.CreatedAt,
	}
}

func (h *ReadingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	date, _ := time.Parse(dateLayout, req.ReadingDate)
	reading, err := h.billing.SubmitReading(r.Context(), billing.SubmitReadingRequest{
		UnitID:       req.UnitID,
		ReadingDate:  date,
		ReadingValue: req.ReadingValue,
		DailyAvgTemp: req.DailyAvgTemp,
		Remarks:      req.Remarks,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to submit reading", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toReadingDTO(reading))
}

type updateReadingRequest struct {
	ReadingValue decimal.Decimal `json:"readingValue"`
}

func (h *ReadingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.ReadingValue.IsNegative() {
		RespondValidationError(w, []FieldError{{Field: "readingValue", Message: "must not be negative"}})
		return
	}

	if err := h.billing.UpdateReading(r.Context(), id, req.ReadingValue); err != nil {
		logging.FromContext(r.Context()).Error("failed to update reading", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

func (h *ReadingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.billing.DeleteReading(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Error("failed to delete reading", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

func (h *ReadingHandler) ListByUnit(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	readings, err := h.billing.ListReadings(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]readingDTO, len(readings))
	for i := range readings {
		dtos[i] = toReadingDTO(&readings[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

type batchEntryRequest struct {
	UnitID       uuid.UUID        `json:"unitId"`
	ReadingDate  string           `json:"readingDate"`
	ReadingValue decimal.Decimal  `json:"readingValue"`
	DailyAvgTemp *decimal.Decimal `json:"dailyAvgTemp"`
	Remarks      *string          `json:"remarks"`
}

type submitBatchRequest struct {
	Entries []batchEntryRequest `json:"entries"`
}

func (r submitBatchRequest) Validate() []FieldError {
	var errs []FieldError
	if len(r.Entries) == 0 {
		errs = append(errs, FieldError{Field: "entries", Message: "required"})
	}
	for _, e := range r.Entries {
		if e.UnitID == uuid.Nil {
			errs = append(errs, FieldError{Field: "entries", Message: "unitId required"})
			break
		}
		if _, err := time.Parse(dateLayout, e.ReadingDate); err != nil {
			errs = append(errs, FieldError{Field: "entries", Message: "readingDate must be YYYY-MM-DD"})
			break
		}
	}
	return errs
}

func (h *ReadingHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entries := make([]billing.BatchEntry, len(req.Entries))
	for i, e := range req.Entries {
		date, _ := time.Parse(dateLayout, e.ReadingDate)
		entries[i] = billing.BatchEntry{
			UnitID:       e.UnitID,
			ReadingDate:  date,
			ReadingValue: e.ReadingValue,
			DailyAvgTemp: e.DailyAvgTemp,
			Remarks:      e.Remarks,
		}
	}

	result, err := h.billing.SubmitBatch(r.Context(), entries)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to submit batch", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}

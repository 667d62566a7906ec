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
	"github.com/yankun-li/heatledger/internal/service"
)

type unitService interface {
	CreateUnit(ctx context.Context, req service.CreateUnitRequest) (*domain.Unit, error)
	UpdateUnit(ctx context.Context, id uuid.UUID, req service.UpdateUnitRequest) (*domain.Unit, error)
	DeleteUnit(ctx context.Context, id uuid.UUID) error
	GetUnit(ctx context.Context, id uuid.UUID) (*domain.Unit, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Unit, error)
	DashboardStats(ctx context.Context) (*service.DashboardStats, error)
}

type hierarchyService interface {
	LinkParent(ctx context.Context, childID, parentID uuid.UUID) error
	UnlinkParent(ctx context.Context, childID uuid.UUID) error
}

type UnitHandler struct {
	units     unitService
	hierarchy hierarchyService
}

func NewUnitHandler(units unitService, hierarchy hierarchyService) *UnitHandler {
	return &UnitHandler{units: units, hierarchy: hierarchy}
}

func idFromPath(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrInvalidRequest
	}
	return id, nil
}

type createUnitRequest struct {
	Name           string           `json:"name"`
	Code           *string          `json:"code"`
	ContactInfo    *string          `json:"contactInfo"`
	Area           *decimal.Decimal `json:"area"`
	UnitPrice      decimal.Decimal  `json:"unitPrice"`
	InitialBalance decimal.Decimal  `json:"initialBalance"`
	BaseTemp       *decimal.Decimal `json:"baseTemp"`
	Remarks        *string          `json:"remarks"`
}

func (r createUnitRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if r.UnitPrice.IsNegative() {
		errs = append(errs, FieldError{Field: "unitPrice", Message: "must not be negative"})
	}
	return errs
}

type unitDTO struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Code           *string          `json:"code"`
	ContactInfo    *string          `json:"contactInfo"`
	Area           *decimal.Decimal `json:"area"`
	UnitPrice      decimal.Decimal  `json:"unitPrice"`
	AccountBalance decimal.Decimal  `json:"accountBalance"`
	InitialBalance decimal.Decimal  `json:"initialBalance"`
	Status         string           `json:"status"`
	ParentUnitID   *uuid.UUID       `json:"parentUnitId"`
	Remarks        *string          `json:"remarks"`
	CreatedAt      time.Time        `json:"createdAt"`
}

func toUnitDTO(u *domain.Unit) unitDTO {
	return unitDTO{
		ID:             u.ID,
		Name:           u.Name,
		Code:           u.Code,
		ContactInfo:    u.ContactInfo,
		Area:           u.Area,
		UnitPrice:      u.UnitPrice,
		AccountBalance: u.AccountBalance,
		InitialBalance: u.InitialBalance,
		Status:         string(u.Status),
		ParentUnitID:   u.ParentUnitID,
		Remarks:        u.Remarks,
		CreatedAt:      u.CreatedAt,
	}
}

func toUnitDTOs(units []domain.Unit) []unitDTO {
	dtos := make([]unitDTO, len(units))
	for i := range units {
		dtos[i] = toUnitDTO(&units[i])
	}
	return dtos
}

func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	unit, err := h.units.CreateUnit(r.Context(), service.CreateUnitRequest{
		Name:           req.Name,
		Code:           req.Code,
		ContactInfo:    req.ContactInfo,
		Area:           req.Area,
		UnitPrice:      req.UnitPrice,
		InitialBalance: req.InitialBalance,
		BaseTemp:       req.BaseTemp,
		Remarks:        req.Remarks,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create unit", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toUnitDTO(unit))
}

type updateUnitRequest struct {
	Name           *string          `json:"name"`
	Code           *string          `json:"code"`
	ContactInfo    *string          `json:"contactInfo"`
	Area           *decimal.Decimal `json:"area"`
	UnitPrice      *decimal.Decimal `json:"unitPrice"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
	BaseTemp       *decimal.Decimal `json:"baseTemp"`
	Remarks        *string          `json:"remarks"`
}

func (h *UnitHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	unit, err := h.units.UpdateUnit(r.Context(), id, service.UpdateUnitRequest{
		Name:           req.Name,
		Code:           req.Code,
		ContactInfo:    req.ContactInfo,
		Area:           req.Area,
		UnitPrice:      req.UnitPrice,
		InitialBalance: req.InitialBalance,
		BaseTemp:       req.BaseTemp,
		Remarks:        req.Remarks,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to update unit", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toUnitDTO(unit))
}

func (h *UnitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.units.DeleteUnit(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Error("failed to delete unit", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	unit, err := h.units.GetUnit(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toUnitDTO(unit))
}

func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ListUnits(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list units", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toUnitDTOs(units))
}

func (h *UnitHandler) Children(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	children, err := h.units.ListChildren(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toUnitDTOs(children))
}

func (h *UnitHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.units.DashboardStats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to compute stats", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, stats)
}

type linkParentRequest struct {
	ParentUnitID uuid.UUID `json:"parentUnitId"`
}

func (h *UnitHandler) LinkParent(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req linkParentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.ParentUnitID == uuid.Nil {
		RespondValidationError(w, []FieldError{{Field: "parentUnitId", Message: "required"}})
		return
	}

	if err := h.hierarchy.LinkParent(r.Context(), id, req.ParentUnitID); err != nil {
		logging.FromContext(r.Context()).Error("failed to link parent", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

func (h *UnitHandler) UnlinkParent(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.hierarchy.UnlinkParent(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Error("failed to unlink parent", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/repository"
)

type ledgerService interface {
	Recharge(ctx context.Context, unitID uuid.UUID, amount decimal.Decimal, date time.Time, remarks *string) (*domain.AccountTransaction, error)
	AdjustBalance(ctx context.Context, unitID uuid.UUID, amount decimal.Decimal, date time.Time, remarks *string) (*domain.AccountTransaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ListTransactions(ctx context.Context, f repository.TransactionFilter) ([]domain.AccountTransaction, int, error)
}

type TransactionHandler struct {
	ledger ledgerService
}

func NewTransactionHandler(ledger ledgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

type postAmountRequest struct {
	UnitID  uuid.UUID       `json:"unitId"`
	Amount  decimal.Decimal `json:"amount"`
	Date    string          `json:"date"`
	Remarks *string         `json:"remarks"`
}

func (r postAmountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.UnitID == uuid.Nil {
		errs = append(errs, FieldError{Field: "unitId", Message: "required"})
	}
	if r.Date != "" {
		if _, err := time.Parse(dateLayout, r.Date); err != nil {
			errs = append(errs, FieldError{Field: "date", Message: "must be YYYY-MM-DD"})
		}
	}
	return errs
}

// date returns the entry date, which the caller may backdate; an omitted
// date means today.
func (r postAmountRequest) date() time.Time {
	if r.Date == "" {
		return time.Time{}
	}
	d, _ := time.Parse(dateLayout, r.Date)
	return d
}

type transactionDTO struct {
	ID               uuid.UUID       `json:"id"`
	UnitID           uuid.UUID       `json:"unitId"`
	Type             string          `json:"type"`
	Date             string          `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	BalanceAfter     decimal.Decimal `json:"balanceAfter"`
	RelatedReadingID *uuid.UUID      `json:"relatedReadingId"`
	Summary          string          `json:"summary"`
	Remarks          *string         `json:"remarks"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func toTransactionDTO(t *domain.AccountTransaction) transactionDTO {
	return transactionDTO{
		ID:               t.ID,
		UnitID:           t.UnitID,
		Type:             string(t.Type),
		Date:             t.Date.Format(dateLayout),
		Amount:           t.Amount,
		BalanceAfter:     t.BalanceAfter,
		RelatedReadingID: t.RelatedReadingID,
		Summary:          t.Summary,
		Remarks:          t.Remarks,
		CreatedAt:        t.CreatedAt,
	}
}

func (h *TransactionHandler) Recharge(w http.ResponseWriter, r *http.Request) {
	var req postAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.ledger.Recharge(r.Context(), req.UnitID, req.Amount, req.date(), req.Remarks)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to recharge", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *TransactionHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req postAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.ledger.AdjustBalance(r.Context(), req.UnitID, req.Amount, req.date(), req.Remarks)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to adjust balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransactionDTO(t))
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, appErr := idFromPath(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	if err := h.ledger.DeleteTransaction(r.Context(), id); err != nil {
		logging.FromContext(r.Context()).Error("failed to delete transaction", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, nil)
}

type transactionListResponse struct {
	Items []transactionDTO `json:"items"`
	Total int              `json:"total"`
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	f := repository.TransactionFilter{Limit: 50}
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := domain.TransactionType(v)
		f.Type = &t
	}
	if v := q.Get("unitId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
		f.UnitID = &id
	}
	if v := q.Get("startDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
		f.StartDate = &d
	}
	if v := q.Get("endDate"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
		f.EndDate = &d
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	txs, total, err := h.ledger.ListTransactions(r.Context(), f)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	RespondSuccess(w, http.StatusOK, transactionListResponse{Items: dtos, Total: total})
}

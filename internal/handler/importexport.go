package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/service"
	"github.com/yankun-li/heatledger/internal/xlsx"
)

// 10 MB is plenty for a season's worth of readings.
const maxUploadBytes = 10 << 20

type importService interface {
	ImportUnits(ctx context.Context, rows []service.UnitImportRow) (*service.ImportResult, error)
	ImportReadings(ctx context.Context, rows []service.ReadingImportRow) (*service.ImportResult, error)
}

type exportUnitLister interface {
	ListUnits(ctx context.Context) ([]domain.Unit, error)
}

type exportTransactionLister interface {
	ListAllTransactions(ctx context.Context) ([]domain.AccountTransaction, error)
}

type settlementReporter interface {
	SettlementReport(ctx context.Context, start, end time.Time) ([]service.SettlementRow, error)
}

type ImportExportHandler struct {
	importer    importService
	units       exportUnitLister
	ledger      exportTransactionLister
	settlements settlementReporter
}

func NewImportExportHandler(importer importService, units exportUnitLister, ledger exportTransactionLister, settlements settlementReporter) *ImportExportHandler {
	return &ImportExportHandler{importer: importer, units: units, ledger: ledger, settlements: settlements}
}

func (h *ImportExportHandler) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "file", Message: "required"}})
		return nil, false
	}
	return file, true
}

func (h *ImportExportHandler) ImportUnits(w http.ResponseWriter, r *http.Request) {
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	rows, err := xlsx.ParseUnits(file)
	if err != nil {
		logging.FromContext(r.Context()).Warn("unit import file rejected", "error", err)
		RespondAppError(w, ErrInvalidRequest, err.Error())
		return
	}

	result, err := h.importer.ImportUnits(r.Context(), rows)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to import units", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}

func (h *ImportExportHandler) ImportReadings(w http.ResponseWriter, r *http.Request) {
	file, ok := h.uploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	rows, err := xlsx.ParseReadings(file)
	if err != nil {
		logging.FromContext(r.Context()).Warn("reading import file rejected", "error", err)
		RespondAppError(w, ErrInvalidRequest, err.Error())
		return
	}

	result, err := h.importer.ImportReadings(r.Context(), rows)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to import readings", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, result)
}

func (h *ImportExportHandler) ExportUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ListUnits(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to export units", "error", err)
		RespondDomainError(w, err)
		return
	}

	f, err := xlsx.BuildUnitsWorkbook(units)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build unit workbook", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	sendWorkbook(w, r, f, fmt.Sprintf("units-%s.xlsx", time.Now().Format(dateLayout)))
}

func (h *ImportExportHandler) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ListUnits(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to export transactions", "error", err)
		RespondDomainError(w, err)
		return
	}
	txs, err := h.ledger.ListAllTransactions(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to export transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	f, err := xlsx.BuildTransactionsWorkbook(units, txs)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build transaction workbook", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	sendWorkbook(w, r, f, fmt.Sprintf("transactions-%s.xlsx", time.Now().Format(dateLayout)))
}

func (h *ImportExportHandler) ExportSettlement(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(dateLayout, r.URL.Query().Get("startDate"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "startDate", Message: "must be a date in YYYY-MM-DD format"}})
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("endDate"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "endDate", Message: "must be a date in YYYY-MM-DD format"}})
		return
	}

	rows, err := h.settlements.SettlementReport(r.Context(), start, end)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build settlement report", "error", err)
		RespondDomainError(w, err)
		return
	}

	f, err := xlsx.BuildSettlementWorkbook(rows)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build settlement workbook", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}
	sendWorkbook(w, r, f, fmt.Sprintf("settlement-%s-%s.xlsx", start.Format(dateLayout), end.Format(dateLayout)))
}

func sendWorkbook(w http.ResponseWriter, r *http.Request, f *excelize.File, name string) {
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := f.Write(w); err != nil {
		logging.FromContext(r.Context()).Error("failed to stream workbook", "error", err)
	}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
	"github.com/yankun-li/heatledger/internal/service/billing"
)

type unitCreator interface {
	CreateUnit(ctx context.Context, req CreateUnitRequest) (*domain.Unit, error)
}

type readingSubmitter interface {
	SubmitReading(ctx context.Context, req billing.SubmitReadingRequest) (*domain.MeterReading, error)
}

type priceDefaulter interface {
	DefaultUnitPrice(ctx context.Context) (decimal.Decimal, error)
}

// ImportService loads units and readings in bulk, typically from spreadsheet
// uploads. Rows are processed independently: a bad row is reported and the
// rest of the file still goes through.
type ImportService struct {
	units        unitRepo
	transactions transactionRepo
	creator      unitCreator
	submitter    readingSubmitter
	defaults     priceDefaulter
	db           *sql.DB
}

func NewImportService(units unitRepo, transactions transactionRepo, creator unitCreator, submitter readingSubmitter, defaults priceDefaulter, db *sql.DB) *ImportService {
	return &ImportService{
		units:        units,
		transactions: transactions,
		creator:      creator,
		submitter:    submitter,
		defaults:     defaults,
		db:           db,
	}
}

type UnitImportRow struct {
	Name           string
	Code           *string
	ContactInfo    *string
	Area           *decimal.Decimal
	UnitPrice      decimal.Decimal
	InitialBalance decimal.Decimal
	Remarks        *string
}

type ReadingImportRow struct {
	UnitName     string
	ReadingDate  time.Time
	ReadingValue decimal.Decimal
}

type ImportResult struct {
	CreatedCount  int      `json:"createdCount"`
	RepairedCount int      `json:"repairedCount"`
	SkippedCount  int      `json:"skippedCount"`
	ErrorCount    int      `json:"errorCount"`
	Errors        []string `json:"errors,omitempty"`
}

// ImportUnits creates the units that do not exist yet. For a unit that
// already exists, descriptive fields are refreshed from the row, and a unit
// with a non-zero initial balance but no INITIAL ledger entry gets the
// missing entry backfilled so snapshot reconstruction has its base. Balances
// are never touched for existing units.
func (s *ImportService) ImportUnits(ctx context.Context, rows []UnitImportRow) (*ImportResult, error) {
	log := logging.FromContext(ctx)

	result := &ImportResult{}
	for i, row := range rows {
		outcome, err := s.importUnit(ctx, row)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", i+1, row.Name, err))
			continue
		}
		switch outcome {
		case unitCreated:
			result.CreatedCount++
		case unitRepaired:
			result.RepairedCount++
		default:
			result.SkippedCount++
		}
	}

	log.Info("units imported",
		"total", len(rows),
		"created", result.CreatedCount,
		"repaired", result.RepairedCount,
		"skipped", result.SkippedCount,
		"failed", result.ErrorCount,
	)
	return result, nil
}

type importOutcome int

const (
	unitSkipped importOutcome = iota
	unitCreated
	unitRepaired
)

func (s *ImportService) importUnit(ctx context.Context, row UnitImportRow) (importOutcome, error) {
	existing, err := s.units.GetByName(ctx, row.Name)
	if err != nil {
		if !errors.Is(err, domain.ErrUnitNotFound) {
			return unitSkipped, fmt.Errorf("importUnit: %w", err)
		}
		price := row.UnitPrice
		if price.IsZero() && s.defaults != nil {
			price, err = s.defaults.DefaultUnitPrice(ctx)
			if err != nil {
				return unitSkipped, fmt.Errorf("importUnit: %w", err)
			}
		}
		_, err := s.creator.CreateUnit(ctx, CreateUnitRequest{
			Name:           row.Name,
			Code:           row.Code,
			ContactInfo:    row.ContactInfo,
			Area:           row.Area,
			UnitPrice:      price,
			InitialBalance: row.InitialBalance,
			Remarks:        row.Remarks,
		})
		if err != nil {
			return unitSkipped, fmt.Errorf("importUnit: %w", err)
		}
		return unitCreated, nil
	}

	repaired, err := s.refreshExisting(ctx, existing, row)
	if err != nil {
		return unitSkipped, fmt.Errorf("importUnit: %w", err)
	}
	if repaired {
		return unitRepaired, nil
	}
	return unitSkipped, nil
}

// refreshExisting updates an existing unit's descriptive fields from the
// import row and backfills the INITIAL transaction for a unit that predates
// ledger bookkeeping. Check and create run in one transaction, so a repeated
// import never doubles the entry.
func (s *ImportService) refreshExisting(ctx context.Context, unit *domain.Unit, row UnitImportRow) (bool, error) {
	if row.Code != nil {
		unit.Code = row.Code
	}
	if row.ContactInfo != nil {
		unit.ContactInfo = row.ContactInfo
	}
	if row.Area != nil {
		unit.Area = row.Area
	}
	if row.Remarks != nil {
		unit.Remarks = row.Remarks
	}
	if row.UnitPrice.IsPositive() {
		unit.UnitPrice = row.UnitPrice
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("refreshExisting: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.units.UpdateFields(ctx, tx, unit); err != nil {
		return false, fmt.Errorf("refreshExisting: %w", err)
	}

	repaired := false
	if !unit.InitialBalance.IsZero() {
		has, err := s.transactions.HasInitial(ctx, tx, unit.ID)
		if err != nil {
			return false, fmt.Errorf("refreshExisting: %w", err)
		}
		if !has {
			now := time.Now().UTC()
			t := &domain.AccountTransaction{
				ID:           uuid.New(),
				UnitID:       unit.ID,
				Type:         domain.TransactionTypeInitial,
				Date:         unit.CreatedAt.Truncate(24 * time.Hour),
				Amount:       unit.InitialBalance,
				BalanceAfter: unit.InitialBalance,
				Summary:      "opening balance",
				CreatedAt:    now,
			}
			if err := s.transactions.Create(ctx, tx, t); err != nil {
				return false, fmt.Errorf("refreshExisting: %w", err)
			}
			repaired = true
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("refreshExisting: commit: %w", err)
	}
	return repaired, nil
}

// ImportReadings posts historical readings through the regular billing path,
// oldest first, so every row is charged against the correct predecessor.
func (s *ImportService) ImportReadings(ctx context.Context, rows []ReadingImportRow) (*ImportResult, error) {
	log := logging.FromContext(ctx)

	sorted := make([]ReadingImportRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ReadingDate.Before(sorted[j].ReadingDate)
	})

	result := &ImportResult{}
	for _, row := range sorted {
		unit, err := s.units.GetByName(ctx, row.UnitName)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s, %s: %v", row.UnitName, row.ReadingDate.Format("2006-01-02"), err))
			continue
		}
		_, err = s.submitter.SubmitReading(ctx, billing.SubmitReadingRequest{
			UnitID:       unit.ID,
			ReadingDate:  row.ReadingDate,
			ReadingValue: row.ReadingValue,
		})
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s, %s: %v", row.UnitName, row.ReadingDate.Format("2006-01-02"), err))
			continue
		}
		result.CreatedCount++
	}

	log.Info("readings imported", "total", len(rows), "created", result.CreatedCount, "failed", result.ErrorCount)
	return result, nil
}

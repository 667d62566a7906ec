package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
)

// UnitService manages the unit registry: creation with the opening balance
// entry, descriptive edits, and full removal of a unit with its history.
type UnitService struct {
	units        unitRepo
	readings     readingRepo
	transactions transactionRepo
	db           *sql.DB
}

func NewUnitService(units unitRepo, readings readingRepo, transactions transactionRepo, db *sql.DB) *UnitService {
	return &UnitService{
		units:        units,
		readings:     readings,
		transactions: transactions,
		db:           db,
	}
}

type CreateUnitRequest struct {
	Name           string
	Code           *string
	ContactInfo    *string
	Area           *decimal.Decimal
	UnitPrice      decimal.Decimal
	InitialBalance decimal.Decimal
	BaseTemp       *decimal.Decimal
	Remarks        *string
}

// CreateUnit registers a unit and opens its account. A non-zero initial
// balance is recorded as an INITIAL transaction so that historical
// reconstruction has an explicit base entry.
func (s *UnitService) CreateUnit(ctx context.Context, req CreateUnitRequest) (*domain.Unit, error) {
	log := logging.FromContext(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("CreateUnit: name is required: %w", domain.ErrValidation)
	}
	if req.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("CreateUnit: unit price: %w", domain.ErrValidation)
	}

	now := time.Now().UTC()
	unit := &domain.Unit{
		ID:             uuid.New(),
		Name:           name,
		Code:           req.Code,
		ContactInfo:    req.ContactInfo,
		Area:           req.Area,
		UnitPrice:      req.UnitPrice,
		AccountBalance: req.InitialBalance,
		InitialBalance: req.InitialBalance,
		BaseTemp:       req.BaseTemp,
		Status:         domain.StatusForBalance(req.InitialBalance),
		Version:        1,
		Remarks:        req.Remarks,
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateUnit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.units.Create(ctx, tx, unit); err != nil {
		return nil, fmt.Errorf("CreateUnit: %w", err)
	}

	if !req.InitialBalance.IsZero() {
		t := &domain.AccountTransaction{
			ID:           uuid.New(),
			UnitID:       unit.ID,
			Type:         domain.TransactionTypeInitial,
			Date:         now.Truncate(24 * time.Hour),
			Amount:       req.InitialBalance,
			BalanceAfter: req.InitialBalance,
			Summary:      "opening balance",
			CreatedAt:    now,
		}
		if err := s.transactions.Create(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("CreateUnit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateUnit: commit: %w", err)
	}

	log.Info("unit created", "unit_id", unit.ID, "name", unit.Name, "initial_balance", unit.InitialBalance)
	return unit, nil
}

type UpdateUnitRequest struct {
	Name           *string
	Code           *string
	ContactInfo    *string
	Area           *decimal.Decimal
	UnitPrice      *decimal.Decimal
	InitialBalance *decimal.Decimal
	BaseTemp       *decimal.Decimal
	Remarks        *string
}

// UpdateUnit edits descriptive fields. Changing the unit price affects future
// charges only; balance, status and parent are off limits here.
func (s *UnitService) UpdateUnit(ctx context.Context, id uuid.UUID, req UpdateUnitRequest) (*domain.Unit, error) {
	unit, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateUnit: %w", err)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("UpdateUnit: name is required: %w", domain.ErrValidation)
		}
		unit.Name = name
	}
	if req.Code != nil {
		unit.Code = req.Code
	}
	if req.ContactInfo != nil {
		unit.ContactInfo = req.ContactInfo
	}
	if req.Area != nil {
		unit.Area = req.Area
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("UpdateUnit: unit price: %w", domain.ErrValidation)
		}
		unit.UnitPrice = *req.UnitPrice
	}
	if req.InitialBalance != nil {
		unit.InitialBalance = *req.InitialBalance
	}
	if req.BaseTemp != nil {
		unit.BaseTemp = req.BaseTemp
	}
	if req.Remarks != nil {
		unit.Remarks = req.Remarks
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateUnit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.units.UpdateFields(ctx, tx, unit); err != nil {
		return nil, fmt.Errorf("UpdateUnit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateUnit: commit: %w", err)
	}
	return unit, nil
}

// DeleteUnit removes a unit together with its readings and transactions.
// A unit that still has linked children cannot be deleted; unlink them first.
func (s *UnitService) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteUnit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.units.GetForUpdate(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}

	hasChildren, err := s.units.HasChildren(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}
	if hasChildren {
		return fmt.Errorf("DeleteUnit: %w", domain.ErrUnitHasChildren)
	}

	if err := s.transactions.DeleteByUnit(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}
	// A linked child's deductions sit on the parent's account; they still
	// reference the child's readings and must go before the readings do.
	if err := s.transactions.DeleteByRelatedUnitReadings(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}
	if err := s.readings.DeleteByUnit(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}
	if err := s.units.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("DeleteUnit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteUnit: commit: %w", err)
	}

	log.Info("unit deleted", "unit_id", id)
	return nil
}

func (s *UnitService) GetUnit(ctx context.Context, id uuid.UUID) (*domain.Unit, error) {
	unit, err := s.units.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetUnit: %w", err)
	}
	return unit, nil
}

func (s *UnitService) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	units, err := s.units.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListUnits: %w", err)
	}
	return units, nil
}

func (s *UnitService) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Unit, error) {
	children, err := s.units.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("ListChildren: %w", err)
	}
	return children, nil
}

type DashboardStats struct {
	TotalUnits   int             `json:"totalUnits"`
	ArrearsUnits int             `json:"arrearsUnits"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
}

func (s *UnitService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	units, err := s.units.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("DashboardStats: %w", err)
	}

	stats := &DashboardStats{TotalBalance: decimal.Zero}
	for _, u := range units {
		stats.TotalUnits++
		if u.Status == domain.UnitStatusArrears {
			stats.ArrearsUnits++
		}
		stats.TotalBalance = stats.TotalBalance.Add(u.AccountBalance)
	}
	return stats, nil
}

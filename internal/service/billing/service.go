package billing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
)

type unitRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.UnitStatus) error
	UpdateChildStatuses(ctx context.Context, tx *sql.Tx, parentID uuid.UUID, status domain.UnitStatus) error
}

type readingRepo interface {
	Create(ctx context.Context, tx *sql.Tx, reading *domain.MeterReading) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MeterReading, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.MeterReading, error)
	GetLatestForUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) (*domain.MeterReading, error)
	GetPreviousBefore(ctx context.Context, tx *sql.Tx, unitID uuid.UUID, date time.Time) (*domain.MeterReading, error)
	ListByUnit(ctx context.Context, unitID uuid.UUID) ([]domain.MeterReading, error)
	UpdateComputed(ctx context.Context, tx *sql.Tx, reading *domain.MeterReading) error
	Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.AccountTransaction) error
	GetByRelatedReading(ctx context.Context, tx *sql.Tx, readingID uuid.UUID) (*domain.AccountTransaction, error)
	Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

// temperatureProvider is the weather collaborator. A nil result means the
// temperature could not be determined; submission proceeds without it.
type temperatureProvider interface {
	TemperatureForDate(ctx context.Context, date time.Time) *decimal.Decimal
}

// Service is the billing engine: it turns meter readings into deductions on
// the correct billing unit and keeps balances and arrears statuses
// consistent under edits and deletions.
type Service struct {
	units        unitRepo
	readings     readingRepo
	transactions transactionRepo
	temps        temperatureProvider
	db           *sql.DB
	locks        *unitLocks
	maxInFlight  int
}

func NewService(
	units unitRepo,
	readings readingRepo,
	transactions transactionRepo,
	temps temperatureProvider,
	db *sql.DB,
	maxInFlight int,
) *Service {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Service{
		units:        units,
		readings:     readings,
		transactions: transactions,
		temps:        temps,
		db:           db,
		locks:        newUnitLocks(),
		maxInFlight:  maxInFlight,
	}
}

// unitLocks serializes all in-process writers that resolve to the same
// billing unit. The dependent/independent batch split keeps throughput up;
// this lock is what actually guarantees single-writer semantics, including
// the case of a parent submitting its own reading concurrently with a child.
type unitLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newUnitLocks() *unitLocks {
	return &unitLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *unitLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// cascadeGroupStatus recomputes the arrears status of a unit's billing group
// from the root's balance and writes it to the root and every direct child.
// Must run inside the same transaction as the balance mutation it follows.
func (s *Service) cascadeGroupStatus(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error {
	u, err := s.units.GetByIDTx(ctx, tx, unitID)
	if err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}

	root := u
	if u.ParentUnitID != nil {
		root, err = s.units.GetByIDTx(ctx, tx, *u.ParentUnitID)
		if err != nil {
			return fmt.Errorf("cascadeGroupStatus: root: %w", err)
		}
	}

	status := domain.StatusForBalance(root.AccountBalance)
	if err := s.units.UpdateStatus(ctx, tx, root.ID, status); err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}
	if err := s.units.UpdateChildStatuses(ctx, tx, root.ID, status); err != nil {
		return fmt.Errorf("cascadeGroupStatus: %w", err)
	}
	return nil
}

// ListReadings returns a unit's readings, newest first.
func (s *Service) ListReadings(ctx context.Context, unitID uuid.UUID) ([]domain.MeterReading, error) {
	readings, err := s.readings.ListByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("ListReadings: %w", err)
	}
	return readings, nil
}

package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
)

type unitRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error)
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error)
	GetByName(ctx context.Context, name string) (*domain.Unit, error)
	List(ctx context.Context) ([]domain.Unit, error)
	ListTx(ctx context.Context, tx *sql.Tx) ([]domain.Unit, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Unit, error)
	HasChildren(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	Create(ctx context.Context, tx *sql.Tx, unit *domain.Unit) error
	UpdateFields(ctx context.Context, tx *sql.Tx, unit *domain.Unit) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Unit, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.UnitStatus) error
	UpdateChildStatuses(ctx context.Context, tx *sql.Tx, parentID uuid.UUID, status domain.UnitStatus) error
	SetParent(ctx context.Context, tx *sql.Tx, childID uuid.UUID, parentID *uuid.UUID) error
	Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type readingRepo interface {
	ListByUnit(ctx context.Context, unitID uuid.UUID) ([]domain.MeterReading, error)
	EarliestSince(ctx context.Context, tx *sql.Tx, date time.Time) (map[uuid.UUID]domain.MeterReading, error)
	LatestThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]domain.MeterReading, error)
	SetBilled(ctx context.Context, tx *sql.Tx, id uuid.UUID, billed bool) error
	DeleteByUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error
}

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.AccountTransaction) error
	GetByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.AccountTransaction, error)
	HasInitial(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) (bool, error)
	List(ctx context.Context, f repository.TransactionFilter) ([]domain.AccountTransaction, int, error)
	ListAll(ctx context.Context) ([]domain.AccountTransaction, error)
	SumRecharges(ctx context.Context, tx *sql.Tx) (map[uuid.UUID]decimal.Decimal, error)
	SumNonDeductionsThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]decimal.Decimal, error)
	SumDeductionsThrough(ctx context.Context, tx *sql.Tx, cutoff time.Time) (map[uuid.UUID]decimal.Decimal, error)
	Delete(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	DeleteByUnit(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error
	DeleteByRelatedUnitReadings(ctx context.Context, tx *sql.Tx, unitID uuid.UUID) error
}

package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
)

// SeedUnit inserts a unit with the given price and balance. The balance also
// becomes the initial balance, matching how units are created through the
// service.
func SeedUnit(t *testing.T, db *sql.DB, name string, unitPrice, balance decimal.Decimal) *domain.Unit {
	t.Helper()

	u := &domain.Unit{
		ID:             uuid.New(),
		Name:           name,
		UnitPrice:      unitPrice,
		AccountBalance: balance,
		InitialBalance: balance,
		Status:         domain.StatusForBalance(balance),
		Version:        1,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO units (id, name, unit_price, account_balance, initial_balance, status, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.UnitPrice, u.AccountBalance, u.InitialBalance, u.Status, u.Version, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed unit %s: %v", name, err)
	}
	return u
}

// SeedChildUnit inserts a unit already linked to a parent, with a zero
// balance as a real link operation would leave it.
func SeedChildUnit(t *testing.T, db *sql.DB, name string, unitPrice decimal.Decimal, parentID uuid.UUID) *domain.Unit {
	t.Helper()

	u := &domain.Unit{
		ID:           uuid.New(),
		Name:         name,
		UnitPrice:    unitPrice,
		Status:       domain.UnitStatusNormal,
		ParentUnitID: &parentID,
		Version:      1,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO units (id, name, unit_price, account_balance, initial_balance, status, parent_unit_id, version, created_at)
		 VALUES ($1, $2, $3, 0, 0, $4, $5, $6, $7)`,
		u.ID, u.Name, u.UnitPrice, u.Status, u.ParentUnitID, u.Version, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed child unit %s: %v", name, err)
	}
	return u
}

func GetUnitBalance(t *testing.T, db *sql.DB, unitID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT account_balance FROM units WHERE id = $1`, unitID).Scan(&balance)
	if err != nil {
		t.Fatalf("get unit balance %s: %v", unitID, err)
	}
	return balance
}

func GetUnitStatus(t *testing.T, db *sql.DB, unitID uuid.UUID) string {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM units WHERE id = $1`, unitID).Scan(&status)
	if err != nil {
		t.Fatalf("get unit status %s: %v", unitID, err)
	}
	return status
}

func CountTransactions(t *testing.T, db *sql.DB, unitID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM account_transactions WHERE unit_id = $1`, unitID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for unit %s: %v", unitID, err)
	}
	return count
}

func CountReadings(t *testing.T, db *sql.DB, unitID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM meter_readings WHERE unit_id = $1`, unitID).Scan(&count)
	if err != nil {
		t.Fatalf("count readings for unit %s: %v", unitID, err)
	}
	return count
}

package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/service"
	"github.com/yankun-li/heatledger/internal/service/billing"
	"github.com/yankun-li/heatledger/internal/testutil"
)

func findSettlementRow(t *testing.T, rows []service.SettlementRow, name string) service.SettlementRow {
	t.Helper()
	for _, r := range rows {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no settlement row for %s", name)
	return service.SettlementRow{}
}

func decEqual(t *testing.T, want string, got *decimal.Decimal) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, dec(want).Equal(*got), "want %s, got %s", want, got)
}

func TestSettlementReport_UsageAndCostFromBoundaryReadings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSnapshotService(t, db)
	ledger := setupLedgerService(t, db)
	engine := billing.NewService(
		repository.NewUnitRepository(db),
		repository.NewReadingRepository(db),
		repository.NewTransactionRepository(db),
		nil,
		db,
		10,
	)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("1000"))

	// First in-period reading is billed against the seeded baseline.
	_, err := engine.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 5), ReadingValue: dec("100"),
	})
	require.NoError(t, err)
	_, err = engine.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 25), ReadingValue: dec("130"),
	})
	require.NoError(t, err)

	// Recharge inside the period; an adjustment must not count as revenue.
	_, err = ledger.Recharge(ctx, unit.ID, dec("200"), day(2024, 1, 10), nil)
	require.NoError(t, err)
	_, err = ledger.AdjustBalance(ctx, unit.ID, dec("50"), day(2024, 1, 12), nil)
	require.NoError(t, err)

	rows, err := svc.SettlementReport(ctx, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	row := findSettlementRow(t, rows, "Building A")

	// 1000 initial + 200 recharge; the 50 adjustment stays out.
	assert.True(t, dec("1200").Equal(row.TotalRecharge))
	// 1000 + 200 + 50 - 100*10 - 30*10.
	assert.True(t, dec("-50").Equal(row.EndBalance))
	decEqual(t, "100", row.StartReading)
	decEqual(t, "130", row.EndReading)
	decEqual(t, "30", row.Usage)
	decEqual(t, "300", row.Cost)
	// Jan 1 has no reading, so the start value comes from Jan 5.
	assert.Contains(t, row.Remarks, "2024-01-05")
}

func TestSettlementReport_NotesMissingBoundaryReadings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSnapshotService(t, db)
	ctx := context.Background()

	testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	rows, err := svc.SettlementReport(ctx, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	row := findSettlementRow(t, rows, "Building A")

	assert.Nil(t, row.StartReading)
	assert.Nil(t, row.EndReading)
	assert.Nil(t, row.Usage)
	assert.Nil(t, row.Cost)
	assert.Contains(t, row.Remarks, "no reading on or after the start date")
	assert.Contains(t, row.Remarks, "no reading on or before the end date")
	assert.True(t, dec("500").Equal(row.TotalRecharge))
	assert.True(t, dec("500").Equal(row.EndBalance))
}

func TestSettlementReport_EndBalanceStopsAtCutoff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSnapshotService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))
	seedTransaction(t, db, unit.ID, domain.TransactionTypeRecharge, day(2024, 2, 15), dec("400"))

	rows, err := svc.SettlementReport(ctx, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	row := findSettlementRow(t, rows, "Building A")

	// Recharges count as revenue regardless of date; the end balance replay
	// stops at the period cutoff, before the February payment.
	assert.True(t, dec("500").Equal(row.TotalRecharge))
	assert.True(t, dec("100").Equal(row.EndBalance))
}

func TestSettlementReport_RejectsInvertedRange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSnapshotService(t, db)

	_, err := svc.SettlementReport(context.Background(), day(2024, 2, 1), day(2024, 1, 1))
	require.ErrorIs(t, err, domain.ErrValidation)
}

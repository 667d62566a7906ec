package service_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/service"
	"github.com/yankun-li/heatledger/internal/service/billing"
	"github.com/yankun-li/heatledger/internal/testutil"
)

func setupLedgerService(t *testing.T, db *sql.DB) *service.LedgerService {
	t.Helper()
	return service.NewLedgerService(
		repository.NewUnitRepository(db),
		repository.NewReadingRepository(db),
		repository.NewTransactionRepository(db),
		db,
	)
}

func TestRecharge_CreditsAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("-100"))
	_, err := db.Exec(`UPDATE units SET status = 'ARREARS' WHERE id = $1`, unit.ID)
	require.NoError(t, err)

	tx, err := svc.Recharge(ctx, unit.ID, dec("500"), day(2024, 2, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeRecharge, tx.Type)
	assert.True(t, dec("400").Equal(tx.BalanceAfter))
	assert.True(t, dec("400").Equal(testutil.GetUnitBalance(t, db, unit.ID)))

	// Paying off the debt clears the arrears flag in the same operation.
	assert.Equal(t, string(domain.UnitStatusNormal), testutil.GetUnitStatus(t, db, unit.ID))
}

func TestRecharge_RejectsNonPositiveAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	_, err := svc.Recharge(ctx, unit.ID, dec("0"), day(2024, 2, 1), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Recharge(ctx, unit.ID, dec("-50"), day(2024, 2, 1), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, 0, testutil.CountTransactions(t, db, unit.ID))
}

func TestRecharge_ChildRoutesToParentWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("1000"))
	child := testutil.SeedChildUnit(t, db, "Branch", dec("10"), parent.ID)

	tx, err := svc.Recharge(ctx, child.ID, dec("200"), day(2024, 2, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, parent.ID, tx.UnitID)
	require.NotNil(t, tx.Remarks)
	assert.Contains(t, *tx.Remarks, "on behalf of Branch")

	assert.True(t, dec("1200").Equal(testutil.GetUnitBalance(t, db, parent.ID)))
	assert.True(t, testutil.GetUnitBalance(t, db, child.ID).IsZero())
}

func TestAdjustBalance_AllowsNegativeAmounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	tx, err := svc.AdjustBalance(ctx, unit.ID, dec("-150"), day(2024, 2, 1), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionTypeAdjustment, tx.Type)
	assert.True(t, dec("-50").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, string(domain.UnitStatusArrears), testutil.GetUnitStatus(t, db, unit.ID))

	_, err = svc.AdjustBalance(ctx, unit.ID, dec("0"), day(2024, 2, 1), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDeleteTransaction_ReversesRecharge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	tx, err := svc.Recharge(ctx, unit.ID, dec("500"), day(2024, 2, 1), nil)
	require.NoError(t, err)
	require.True(t, dec("600").Equal(testutil.GetUnitBalance(t, db, unit.ID)))

	err = svc.DeleteTransaction(ctx, tx.ID)
	require.NoError(t, err)

	assert.True(t, dec("100").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, unit.ID))

	err = svc.DeleteTransaction(ctx, tx.ID)
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestDeleteTransaction_DeductionResetsReadingBilled(t *testing.T) {
	db := testutil.SetupTestDB(t)
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

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := engine.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)
	reading, err := engine.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)
	require.True(t, reading.IsBilled)

	var txID string
	err = db.QueryRow(`SELECT id FROM account_transactions WHERE related_reading_id = $1`, reading.ID).Scan(&txID)
	require.NoError(t, err)

	err = ledger.DeleteTransaction(ctx, mustUUID(t, txID))
	require.NoError(t, err)

	// Deduction amount was negative, so deleting it credits the account.
	assert.True(t, dec("500").Equal(testutil.GetUnitBalance(t, db, unit.ID)))

	var billed bool
	err = db.QueryRow(`SELECT is_billed FROM meter_readings WHERE id = $1`, reading.ID).Scan(&billed)
	require.NoError(t, err)
	assert.False(t, billed)
}

func TestRecharge_BackdatedEntryKeepsItsDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	tx, err := svc.Recharge(ctx, unit.ID, dec("300"), day(2023, 11, 5), nil)
	require.NoError(t, err)
	assert.Equal(t, day(2023, 11, 5), tx.Date.UTC())

	// A backdated payment must land in the period it belongs to.
	snapshots := setupSnapshotService(t, db)
	atNov := snapshotBalance(t, snapshots, ctx, day(2023, 11, 30), unit.ID)
	assert.True(t, dec("400").Equal(atNov))
	atOct := snapshotBalance(t, snapshots, ctx, day(2023, 10, 31), unit.ID)
	assert.True(t, dec("100").Equal(atOct))
}

func TestAdjustBalance_BackdatedEntryKeepsItsDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupLedgerService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	tx, err := svc.AdjustBalance(ctx, unit.ID, dec("-40"), day(2023, 12, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, day(2023, 12, 10), tx.Date.UTC())
}

package billing_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/repository"
	"github.com/yankun-li/heatledger/internal/service/billing"
	"github.com/yankun-li/heatledger/internal/testutil"
)

func setupBillingService(t *testing.T, db *sql.DB) *billing.Service {
	t.Helper()
	return billing.NewService(
		repository.NewUnitRepository(db),
		repository.NewReadingRepository(db),
		repository.NewTransactionRepository(db),
		nil,
		db,
		10,
	)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSubmitReading_FirstReadingEstablishesBaseline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	reading, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID:       unit.ID,
		ReadingDate:  day(2024, 1, 10),
		ReadingValue: dec("50"),
	})

	require.NoError(t, err)
	assert.True(t, reading.HeatUsage.IsZero(), "first reading must not produce usage")
	assert.True(t, reading.CostAmount.IsZero(), "first reading must not produce cost")
	assert.False(t, reading.IsBilled)

	assert.True(t, dec("500").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, unit.ID))
}

func TestSubmitReading_SecondReadingCharges(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	reading, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	assert.True(t, dec("30").Equal(reading.HeatUsage))
	assert.True(t, dec("300").Equal(reading.CostAmount))
	assert.True(t, reading.IsBilled)

	assert.True(t, dec("200").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, unit.ID))
	assert.Equal(t, string(domain.UnitStatusNormal), testutil.GetUnitStatus(t, db, unit.ID))
}

func TestSubmitReading_NegativeDeltaClampsToZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	// Meter replaced: new cumulative value is lower than the previous one.
	reading, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("5"),
	})
	require.NoError(t, err)

	assert.True(t, reading.HeatUsage.IsZero())
	assert.False(t, reading.IsBilled)
	assert.True(t, dec("500").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, unit.ID))
}

func TestSubmitReading_OverdraftFlipsStatusToArrears(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("100"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	assert.True(t, dec("-200").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, string(domain.UnitStatusArrears), testutil.GetUnitStatus(t, db, unit.ID))
}

func TestSubmitReading_ChildBillsParentWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("1000"))
	child := testutil.SeedChildUnit(t, db, "Child Branch", dec("10"), parent.ID)
	other := testutil.SeedUnit(t, db, "Unrelated", dec("10"), dec("300"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	// Charge lands on the parent; the child and the unrelated unit keep
	// their balances.
	assert.True(t, dec("700").Equal(testutil.GetUnitBalance(t, db, parent.ID)))
	assert.True(t, testutil.GetUnitBalance(t, db, child.ID).IsZero())
	assert.True(t, dec("300").Equal(testutil.GetUnitBalance(t, db, other.ID)))

	assert.Equal(t, 1, testutil.CountTransactions(t, db, parent.ID))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, child.ID))
	assert.Equal(t, 2, testutil.CountReadings(t, db, child.ID))
}

func TestSubmitReading_ParentArrearsCascadesToChildren(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("100"))
	child := testutil.SeedChildUnit(t, db, "Child Branch", dec("10"), parent.ID)

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.UnitStatusArrears), testutil.GetUnitStatus(t, db, parent.ID))
	assert.Equal(t, string(domain.UnitStatusArrears), testutil.GetUnitStatus(t, db, child.ID))
}

func TestSubmitReading_RejectsOutOfOrderDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("60"),
	})
	require.ErrorIs(t, err, domain.ErrOutOfOrderReading)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("60"),
	})
	require.ErrorIs(t, err, domain.ErrOutOfOrderReading)

	assert.Equal(t, 1, testutil.CountReadings(t, db, unit.ID))
}

func TestUpdateReading_RebillsAgainstSamePrevious(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	second, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)
	require.True(t, dec("200").Equal(testutil.GetUnitBalance(t, db, unit.ID)))

	err = svc.UpdateReading(ctx, second.ID, dec("70"))
	require.NoError(t, err)

	// Old charge of 300 reversed, new charge of 200 posted.
	assert.True(t, dec("300").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, unit.ID))
}

func TestUpdateReading_RejectsNonLatest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	first, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	err = svc.UpdateReading(ctx, first.ID, dec("55"))
	require.ErrorIs(t, err, domain.ErrNotLatestReading)

	err = svc.DeleteReading(ctx, first.ID)
	require.ErrorIs(t, err, domain.ErrNotLatestReading)

	// Nothing moved.
	assert.True(t, dec("200").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 2, testutil.CountReadings(t, db, unit.ID))
	assert.Equal(t, 1, testutil.CountTransactions(t, db, unit.ID))
}

func TestDeleteReading_ReversesCharge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Building A", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	second, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)

	err = svc.DeleteReading(ctx, second.ID)
	require.NoError(t, err)

	assert.True(t, dec("500").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
	assert.Equal(t, 0, testutil.CountTransactions(t, db, unit.ID))
	assert.Equal(t, 1, testutil.CountReadings(t, db, unit.ID))
	assert.Equal(t, string(domain.UnitStatusNormal), testutil.GetUnitStatus(t, db, unit.ID))
}

func TestDeleteReading_ChildReadingCreditsParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("1000"))
	child := testutil.SeedChildUnit(t, db, "Child Branch", dec("10"), parent.ID)

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("50"),
	})
	require.NoError(t, err)

	second, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: child.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("80"),
	})
	require.NoError(t, err)
	require.True(t, dec("700").Equal(testutil.GetUnitBalance(t, db, parent.ID)))

	err = svc.DeleteReading(ctx, second.ID)
	require.NoError(t, err)

	// The reversal must credit the parent, where the deduction was posted,
	// not the child whose meter produced it.
	assert.True(t, dec("1000").Equal(testutil.GetUnitBalance(t, db, parent.ID)))
	assert.True(t, testutil.GetUnitBalance(t, db, child.ID).IsZero())
	assert.Equal(t, 0, testutil.CountTransactions(t, db, parent.ID))
}

func TestSubmitBatch_PartialFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	a := testutil.SeedUnit(t, db, "Unit A", dec("10"), dec("500"))
	b := testutil.SeedUnit(t, db, "Unit B", dec("10"), dec("500"))

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: b.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("100"),
	})
	require.NoError(t, err)

	result, err := svc.SubmitBatch(ctx, []billing.BatchEntry{
		{UnitID: a.ID, ReadingDate: day(2024, 1, 21), ReadingValue: dec("10")},
		// Dated before Unit B's latest reading: rejected, but must not sink
		// the rest of the batch.
		{UnitID: b.ID, ReadingDate: day(2024, 1, 15), ReadingValue: dec("110")},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, 1, testutil.CountReadings(t, db, a.ID))
	assert.Equal(t, 1, testutil.CountReadings(t, db, b.ID))
}

func TestSubmitBatch_SiblingsShareParentSafely(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("10000"))
	c1 := testutil.SeedChildUnit(t, db, "Child 1", dec("10"), parent.ID)
	c2 := testutil.SeedChildUnit(t, db, "Child 2", dec("10"), parent.ID)
	solo := testutil.SeedUnit(t, db, "Solo", dec("10"), dec("500"))

	seed := []billing.BatchEntry{
		{UnitID: c1.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("0")},
		{UnitID: c2.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("0")},
		{UnitID: solo.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("0")},
	}
	result, err := svc.SubmitBatch(ctx, seed)
	require.NoError(t, err)
	require.Equal(t, 3, result.SuccessCount)

	round := []billing.BatchEntry{
		{UnitID: c1.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("30")},
		{UnitID: c2.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("20")},
		{UnitID: solo.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("10")},
	}
	result, err = svc.SubmitBatch(ctx, round)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)

	// 30 GJ + 20 GJ at price 10 against the shared wallet.
	assert.True(t, dec("9500").Equal(testutil.GetUnitBalance(t, db, parent.ID)))
	assert.True(t, dec("400").Equal(testutil.GetUnitBalance(t, db, solo.ID)))
	assert.Equal(t, 2, testutil.CountTransactions(t, db, parent.ID))
}

func TestSubmitBatch_SameUnitEntriesKeepDateOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	unit := testutil.SeedUnit(t, db, "Unit A", dec("10"), dec("500"))

	// Two entries for the same standalone unit in one batch. Run concurrently
	// the later one could land first and the earlier one would be rejected as
	// out of order.
	result, err := svc.SubmitBatch(ctx, []billing.BatchEntry{
		{UnitID: unit.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("30")},
		{UnitID: unit.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("10")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)

	assert.Equal(t, 2, testutil.CountReadings(t, db, unit.ID))
	// 10 GJ then 20 GJ at price 10.
	assert.True(t, dec("200").Equal(testutil.GetUnitBalance(t, db, unit.ID)))
}

func TestSubmitReading_ConcurrentSiblingsSerializeOnParent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupBillingService(t, db)
	ctx := context.Background()

	parent := testutil.SeedUnit(t, db, "Parent Co", dec("10"), dec("10000"))
	c1 := testutil.SeedChildUnit(t, db, "Child 1", dec("10"), parent.ID)
	c2 := testutil.SeedChildUnit(t, db, "Child 2", dec("10"), parent.ID)

	_, err := svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: c1.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("0"),
	})
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, billing.SubmitReadingRequest{
		UnitID: c2.ID, ReadingDate: day(2024, 1, 10), ReadingValue: dec("0"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, entry := range []billing.SubmitReadingRequest{
		{UnitID: c1.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("30")},
		{UnitID: c2.ID, ReadingDate: day(2024, 1, 20), ReadingValue: dec("20")},
	} {
		wg.Add(1)
		go func(req billing.SubmitReadingRequest) {
			defer wg.Done()
			_, err := svc.SubmitReading(ctx, req)
			errs <- err
		}(entry)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, dec("9500").Equal(testutil.GetUnitBalance(t, db, parent.ID)))
}

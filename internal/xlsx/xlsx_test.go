package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/yankun-li/heatledger/internal/domain"
)

func sheetBytes(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i := range rows {
		require.NoError(t, writeRow(f, sheet, i+1, rows[i]))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestParseUnits(t *testing.T) {
	buf := sheetBytes(t, [][]any{
		{"Name", "Code", "Contact", "Area", "Unit Price", "Initial Balance", "Remarks"},
		{"North Plant", "NP-01", "555-1231", "1200.5", "12.50", "800", "keyholder on site"},
		{"", "ignored", "", "", "", "", ""},
		{"South Plant", "", "", "", "10", "", ""},
	})

	rows, err := ParseUnits(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "North Plant", first.Name)
	require.NotNil(t, first.Code)
	assert.Equal(t, "NP-01", *first.Code)
	require.NotNil(t, first.Area)
	assert.True(t, decimal.RequireFromString("1200.5").Equal(*first.Area))
	assert.True(t, decimal.RequireFromString("12.50").Equal(first.UnitPrice))
	assert.True(t, decimal.RequireFromString("800").Equal(first.InitialBalance))

	second := rows[1]
	assert.Equal(t, "South Plant", second.Name)
	assert.Nil(t, second.Code)
	assert.True(t, second.InitialBalance.IsZero())
}

func TestParseUnits_BadNumberFails(t *testing.T) {
	buf := sheetBytes(t, [][]any{
		{"Name", "Code", "Contact", "Area", "Unit Price", "Initial Balance", "Remarks"},
		{"Broken", "", "", "", "not-a-number", "", ""},
	})

	_, err := ParseUnits(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestParseReadings(t *testing.T) {
	buf := sheetBytes(t, [][]any{
		{"Unit", "Date", "Value"},
		{"North Plant", "2026-01-15", "120.5"},
		{"North Plant", "2026/02/01", "140"},
	})

	rows, err := ParseReadings(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].ReadingDate)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), rows[1].ReadingDate)
	assert.True(t, decimal.RequireFromString("120.5").Equal(rows[0].ReadingValue))
}

func TestParseReadings_EmptySheet(t *testing.T) {
	buf := sheetBytes(t, [][]any{
		{"Unit", "Date", "Value"},
	})

	_, err := ParseReadings(buf)
	require.Error(t, err)
}

func TestBuildUnitsWorkbook(t *testing.T) {
	parentID := uuid.New()
	code := "NP-01"
	units := []domain.Unit{
		{
			ID:             parentID,
			Name:           "North Plant",
			Code:           &code,
			UnitPrice:      decimal.RequireFromString("12.5"),
			AccountBalance: decimal.RequireFromString("-30"),
			Status:         domain.UnitStatusArrears,
		},
		{
			ID:           uuid.New(),
			Name:         "Branch",
			ParentUnitID: &parentID,
			UnitPrice:    decimal.RequireFromString("12.5"),
			Status:       domain.UnitStatusNormal,
		},
	}

	f, err := BuildUnitsWorkbook(units)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "North Plant", rows[1][0])
	assert.Equal(t, "-30.00", rows[1][5])
	assert.Equal(t, string(domain.UnitStatusArrears), rows[1][6])

	// The child row names its parent instead of repeating the UUID.
	assert.Equal(t, "North Plant", rows[2][7])
}

func TestBuildTransactionsWorkbook(t *testing.T) {
	unit := domain.Unit{ID: uuid.New(), Name: "North Plant"}
	txs := []domain.AccountTransaction{
		{
			ID:           uuid.New(),
			UnitID:       unit.ID,
			Type:         domain.TransactionTypeRecharge,
			Date:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Amount:       decimal.RequireFromString("200"),
			BalanceAfter: decimal.RequireFromString("350"),
			Summary:      "account recharge",
		},
	}

	f, err := BuildTransactionsWorkbook([]domain.Unit{unit}, txs)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-01", rows[1][0])
	assert.Equal(t, "North Plant", rows[1][1])
	assert.Equal(t, "200.00", rows[1][3])
}
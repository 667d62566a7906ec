// Package xlsx translates between spreadsheet files and the import/export
// row types. Parsing is positional: the first sheet, a header row, then one
// record per row.
package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/service"
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01-02-06", "1/2/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parseDate: unrecognized date %q", s)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ParseUnits reads a unit import sheet. Expected columns: name, code,
// contact, area, unit price, initial balance, remarks.
func ParseUnits(r io.Reader) ([]service.UnitImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ParseUnits: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("ParseUnits: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("ParseUnits: sheet has no data rows")
	}

	var out []service.UnitImportRow
	for i, row := range rows[1:] {
		name := cell(row, 0)
		if name == "" {
			continue
		}
		area, err := optDecimal(cell(row, 3))
		if err != nil {
			return nil, fmt.Errorf("ParseUnits: row %d: area: %w", i+2, err)
		}
		price, err := decimalOrZero(cell(row, 4))
		if err != nil {
			return nil, fmt.Errorf("ParseUnits: row %d: unit price: %w", i+2, err)
		}
		initial, err := decimalOrZero(cell(row, 5))
		if err != nil {
			return nil, fmt.Errorf("ParseUnits: row %d: initial balance: %w", i+2, err)
		}
		out = append(out, service.UnitImportRow{
			Name:           name,
			Code:           optString(cell(row, 1)),
			ContactInfo:    optString(cell(row, 2)),
			Area:           area,
			UnitPrice:      price,
			InitialBalance: initial,
			Remarks:        optString(cell(row, 6)),
		})
	}
	return out, nil
}

// ParseReadings reads a meter reading import sheet. Expected columns: unit
// name, reading date, reading value.
func ParseReadings(r io.Reader) ([]service.ReadingImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ParseReadings: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("ParseReadings: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("ParseReadings: sheet has no data rows")
	}

	var out []service.ReadingImportRow
	for i, row := range rows[1:] {
		name := cell(row, 0)
		if name == "" {
			continue
		}
		date, err := parseDate(cell(row, 1))
		if err != nil {
			return nil, fmt.Errorf("ParseReadings: row %d: %w", i+2, err)
		}
		value, err := decimalOrZero(cell(row, 2))
		if err != nil {
			return nil, fmt.Errorf("ParseReadings: row %d: reading value: %w", i+2, err)
		}
		out = append(out, service.ReadingImportRow{
			UnitName:     name,
			ReadingDate:  date,
			ReadingValue: value,
		})
	}
	return out, nil
}

func writeRow(f *excelize.File, sheet string, rowIdx int, values []any) error {
	cellRef, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cellRef, &values)
}

// BuildUnitsWorkbook renders the unit registry, one row per unit with its
// current balance and status.
func BuildUnitsWorkbook(units []domain.Unit) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	header := []any{"Name", "Code", "Contact", "Area", "Unit Price", "Balance", "Status", "Parent", "Remarks"}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, fmt.Errorf("BuildUnitsWorkbook: %w", err)
	}

	names := make(map[string]string, len(units))
	for _, u := range units {
		names[u.ID.String()] = u.Name
	}

	for i, u := range units {
		parent := ""
		if u.ParentUnitID != nil {
			parent = names[u.ParentUnitID.String()]
		}
		row := []any{
			u.Name,
			deref(u.Code),
			deref(u.ContactInfo),
			decimalCell(u.Area),
			u.UnitPrice.StringFixed(2),
			u.AccountBalance.StringFixed(2),
			string(u.Status),
			parent,
			deref(u.Remarks),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, fmt.Errorf("BuildUnitsWorkbook: %w", err)
		}
	}
	return f, nil
}

// BuildTransactionsWorkbook renders the full ledger for the financial report.
func BuildTransactionsWorkbook(units []domain.Unit, txs []domain.AccountTransaction) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	header := []any{"Date", "Unit", "Type", "Amount", "Balance After", "Summary", "Remarks"}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, fmt.Errorf("BuildTransactionsWorkbook: %w", err)
	}

	names := make(map[string]string, len(units))
	for _, u := range units {
		names[u.ID.String()] = u.Name
	}

	for i, t := range txs {
		row := []any{
			t.Date.Format("2006-01-02"),
			names[t.UnitID.String()],
			string(t.Type),
			t.Amount.StringFixed(2),
			t.BalanceAfter.StringFixed(2),
			t.Summary,
			deref(t.Remarks),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, fmt.Errorf("BuildTransactionsWorkbook: %w", err)
		}
	}
	return f, nil
}

// BuildSettlementWorkbook renders the period settlement, one row per unit.
func BuildSettlementWorkbook(rows []service.SettlementRow) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	header := []any{"Name", "Total Recharge", "End Balance", "Start Reading", "End Reading", "Usage", "Cost", "Remarks"}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return nil, fmt.Errorf("BuildSettlementWorkbook: %w", err)
	}

	for i, r := range rows {
		row := []any{
			r.Name,
			r.TotalRecharge.StringFixed(2),
			r.EndBalance.StringFixed(2),
			decimalCell(r.StartReading),
			decimalCell(r.EndReading),
			decimalCell(r.Usage),
			decimalCell(r.Cost),
			r.Remarks,
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return nil, fmt.Errorf("BuildSettlementWorkbook: %w", err)
		}
	}
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

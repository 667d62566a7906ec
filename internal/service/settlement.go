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

// SettlementRow is one unit's line in the period settlement report. The
// boundary readings are the closest real readings inside the period: the
// first on or after the start date and the last on or before the end date.
// Nil reading fields mean the unit had no reading on that side of the period.
type SettlementRow struct {
	UnitID        uuid.UUID        `json:"unitId"`
	Name          string           `json:"name"`
	TotalRecharge decimal.Decimal  `json:"totalRecharge"`
	EndBalance    decimal.Decimal  `json:"endBalance"`
	StartReading  *decimal.Decimal `json:"startReading"`
	EndReading    *decimal.Decimal `json:"endReading"`
	Usage         *decimal.Decimal `json:"usage"`
	Cost          *decimal.Decimal `json:"cost"`
	Remarks       string           `json:"remarks"`
}

// SettlementReport builds the per-unit settlement for a date range. Total
// recharge counts initial balance plus RECHARGE entries only, so wallet
// moves between linked units never inflate revenue. The end balance is the
// effective-date replay through the end of the period, the same rule
// SnapshotAt uses.
func (s *SnapshotService) SettlementReport(ctx context.Context, start, end time.Time) ([]SettlementRow, error) {
	log := logging.FromContext(ctx)

	if end.Before(start) {
		return nil, fmt.Errorf("SettlementReport: end before start: %w", domain.ErrValidation)
	}

	startDay := startOfDay(start)
	cutoff := endOfDay(end)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: begin tx: %w", err)
	}
	defer tx.Rollback()

	units, err := s.units.ListTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}
	recharges, err := s.transactions.SumRecharges(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}
	nonDeductions, err := s.transactions.SumNonDeductionsThrough(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}
	deductions, err := s.transactions.SumDeductionsThrough(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}
	startReadings, err := s.readings.EarliestSince(ctx, tx, startDay)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}
	endReadings, err := s.readings.LatestThrough(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("SettlementReport: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SettlementReport: commit: %w", err)
	}

	rows := make([]SettlementRow, 0, len(units))
	for _, u := range units {
		row := SettlementRow{
			UnitID:        u.ID,
			Name:          u.Name,
			TotalRecharge: u.InitialBalance,
			EndBalance:    u.InitialBalance,
		}
		if sum, ok := recharges[u.ID]; ok {
			row.TotalRecharge = row.TotalRecharge.Add(sum)
		}
		if sum, ok := nonDeductions[u.ID]; ok {
			row.EndBalance = row.EndBalance.Add(sum)
		}
		if sum, ok := deductions[u.ID]; ok {
			row.EndBalance = row.EndBalance.Add(sum)
		}

		var notes []string
		startR, hasStart := startReadings[u.ID]
		if !hasStart {
			notes = append(notes, "no reading on or after the start date")
		} else {
			v := startR.ReadingValue
			row.StartReading = &v
			if startR.ReadingDate.After(startDay) {
				notes = append(notes, fmt.Sprintf("start value taken from %s", startR.ReadingDate.Format("2006-01-02")))
			}
		}
		endR, hasEnd := endReadings[u.ID]
		if !hasEnd {
			notes = append(notes, "no reading on or before the end date")
		} else {
			v := endR.ReadingValue
			row.EndReading = &v
			if endR.ReadingDate.Before(startOfDay(end)) {
				notes = append(notes, fmt.Sprintf("end value taken from %s", endR.ReadingDate.Format("2006-01-02")))
			}
		}

		if hasStart && hasEnd {
			if !startR.ReadingDate.After(endR.ReadingDate) {
				usage := endR.ReadingValue.Sub(startR.ReadingValue)
				cost := usage.Mul(u.UnitPrice).Round(2)
				row.Usage = &usage
				row.Cost = &cost
			} else {
				notes = append(notes, "start reading dated after end reading")
			}
		}

		row.Remarks = strings.Join(notes, "; ")
		rows = append(rows, row)
	}

	log.Info("settlement report built",
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"units", len(rows),
	)
	return rows, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}


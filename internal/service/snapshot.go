package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yankun-li/heatledger/internal/domain"
	"github.com/yankun-li/heatledger/internal/logging"
)

// UnitSnapshot is a unit's reconstructed account state at a past date.
type UnitSnapshot struct {
	UnitID         uuid.UUID         `json:"unitId"`
	Name           string            `json:"name"`
	ParentUnitID   *uuid.UUID        `json:"parentUnitId,omitempty"`
	AccountBalance decimal.Decimal   `json:"accountBalance"`
	Status         domain.UnitStatus `json:"status"`
}

// SnapshotService reconstructs historical balances from the transaction log
// and derives the period settlement report from the same effective-date
// replay.
type SnapshotService struct {
	units        unitRepo
	readings     readingRepo
	transactions transactionRepo
	db           *sql.DB
}

func NewSnapshotService(units unitRepo, readings readingRepo, transactions transactionRepo, db *sql.DB) *SnapshotService {
	return &SnapshotService{units: units, readings: readings, transactions: transactions, db: db}
}

// SnapshotAt replays the ledger up to the end of the given day and returns
// every unit's balance and status as of that point. The effective date of a
// deduction is its reading's date, not the day the reading was entered, so a
// late-entered reading lands in the period it actually belongs to. All reads
// go through a single repeatable-read transaction so concurrent writes cannot
// skew the sums against the unit list.
func (s *SnapshotService) SnapshotAt(ctx context.Context, asOf time.Time) ([]UnitSnapshot, error) {
	log := logging.FromContext(ctx)

	cutoff := endOfDay(asOf)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("SnapshotAt: begin tx: %w", err)
	}
	defer tx.Rollback()

	units, err := s.units.ListTx(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("SnapshotAt: %w", err)
	}
	nonDeductions, err := s.transactions.SumNonDeductionsThrough(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("SnapshotAt: %w", err)
	}
	deductions, err := s.transactions.SumDeductionsThrough(ctx, tx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("SnapshotAt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SnapshotAt: commit: %w", err)
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(units))
	var included []domain.Unit
	for _, u := range units {
		if u.CreatedAt.After(cutoff) {
			continue
		}
		balance := u.InitialBalance
		if sum, ok := nonDeductions[u.ID]; ok {
			balance = balance.Add(sum)
		}
		if sum, ok := deductions[u.ID]; ok {
			// Deduction amounts are stored negative.
			balance = balance.Add(sum)
		}
		balances[u.ID] = balance
		included = append(included, u)
	}

	snapshots := make([]UnitSnapshot, 0, len(included))
	for _, u := range included {
		// Status follows the wallet that actually pays: a linked child is in
		// arrears exactly when its parent's reconstructed balance is.
		rootBalance := balances[u.ID]
		if u.ParentUnitID != nil {
			if b, ok := balances[*u.ParentUnitID]; ok {
				rootBalance = b
			}
		}
		snapshots = append(snapshots, UnitSnapshot{
			UnitID:         u.ID,
			Name:           u.Name,
			ParentUnitID:   u.ParentUnitID,
			AccountBalance: balances[u.ID],
			Status:         domain.StatusForBalance(rootBalance),
		})
	}

	log.Info("snapshot reconstructed", "as_of", asOf.Format("2006-01-02"), "units", len(snapshots))
	return snapshots, nil
}

// endOfDay pushes a date to the last instant of its day so a cutoff of
// 2024-01-16 includes everything dated that day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, t.Location())
}

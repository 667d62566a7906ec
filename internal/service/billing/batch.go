package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yankun-li/heatledger/internal/logging"
)

// BatchEntry is one reading inside a batch submission.
type BatchEntry struct {
	UnitID       uuid.UUID
	ReadingDate  time.Time
	ReadingValue decimal.Decimal
	DailyAvgTemp *decimal.Decimal
	Remarks      *string
}

// BatchResult reports the outcome of a batch submission. Individual entry
// failures are collected, never propagated: one bad row must not block the
// rest of the batch.
type BatchResult struct {
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	Errors       []string `json:"errors,omitempty"`
}

// SubmitBatch posts a set of readings. Entries for units without a parent
// only touch their own account, so those units run concurrently, with each
// unit's own entries submitted in date order. Entries for units in a
// shared-wallet group all contend on their parents' balances and run
// sequentially after the independent ones.
func (s *Service) SubmitBatch(ctx context.Context, entries []BatchEntry) (*BatchResult, error) {
	log := logging.FromContext(ctx)

	sorted := make([]BatchEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ReadingDate.Before(sorted[j].ReadingDate)
	})

	// Independent entries are grouped per unit so two readings for the same
	// unit keep their date order instead of racing each other.
	independent := make(map[uuid.UUID][]BatchEntry)
	var independentOrder []uuid.UUID
	var dependent []BatchEntry
	for _, e := range sorted {
		unit, err := s.units.GetByID(ctx, e.UnitID)
		if err != nil {
			dependent = append(dependent, e)
			continue
		}
		if unit.ParentUnitID == nil {
			if _, seen := independent[e.UnitID]; !seen {
				independentOrder = append(independentOrder, e.UnitID)
			}
			independent[e.UnitID] = append(independent[e.UnitID], e)
		} else {
			dependent = append(dependent, e)
		}
	}

	result := &BatchResult{}
	var mu sync.Mutex
	record := func(e BatchEntry, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("unit %s, date %s: %v", e.UnitID, e.ReadingDate.Format("2006-01-02"), err))
			return
		}
		result.SuccessCount++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxInFlight)
	for _, id := range independentOrder {
		group := independent[id]
		g.Go(func() error {
			for _, e := range group {
				_, err := s.SubmitReading(gctx, SubmitReadingRequest{
					UnitID:       e.UnitID,
					ReadingDate:  e.ReadingDate,
					ReadingValue: e.ReadingValue,
					DailyAvgTemp: e.DailyAvgTemp,
					Remarks:      e.Remarks,
				})
				record(e, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("SubmitBatch: %w", err)
	}

	for _, e := range dependent {
		_, err := s.SubmitReading(ctx, SubmitReadingRequest{
			UnitID:       e.UnitID,
			ReadingDate:  e.ReadingDate,
			ReadingValue: e.ReadingValue,
			DailyAvgTemp: e.DailyAvgTemp,
			Remarks:      e.Remarks,
		})
		record(e, err)
	}

	log.Info("batch submitted",
		"total", len(entries),
		"success", result.SuccessCount,
		"failed", result.ErrorCount,
	)
	return result, nil
}

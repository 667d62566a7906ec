package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeInitial    TransactionType = "INITIAL"
	TransactionTypeRecharge   TransactionType = "RECHARGE"
	TransactionTypeDeduction  TransactionType = "DEDUCTION"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// AccountTransaction is one movement on a unit's balance. UnitID is the unit
// the amount was actually posted to, which for a deduction on a child unit is
// the parent. Transactions are immutable; undoing one means reversing its
// numeric effect and deleting the row.
type AccountTransaction struct {
	ID               uuid.UUID
	UnitID           uuid.UUID
	Type             TransactionType
	Date             time.Time
	Amount           decimal.Decimal
	BalanceAfter     decimal.Decimal
	RelatedReadingID *uuid.UUID
	Summary          string
	Remarks          *string
	CreatedAt        time.Time
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UnitStatus string

const (
	UnitStatusNormal  UnitStatus = "NORMAL"
	UnitStatusArrears UnitStatus = "ARREARS"
)

// Unit is a billable heating account. A unit may be linked to at most one
// parent unit; when linked, all billing lands on the parent's balance.
// Hierarchy depth is capped at one level: a parent never has a parent itself.
type Unit struct {
	ID             uuid.UUID
	Name           string
	Code           *string
	ContactInfo    *string
	Area           *decimal.Decimal
	UnitPrice      decimal.Decimal
	AccountBalance decimal.Decimal
	InitialBalance decimal.Decimal
	BaseTemp       *decimal.Decimal
	Status         UnitStatus
	ParentUnitID   *uuid.UUID
	Version        int64
	Remarks        *string
	CreatedAt      time.Time
}

// BillingUnitID is the account actually debited for this unit's readings:
// the parent if linked, otherwise the unit itself.
func (u *Unit) BillingUnitID() uuid.UUID {
	if u.ParentUnitID != nil {
		return *u.ParentUnitID
	}
	return u.ID
}

func StatusForBalance(balance decimal.Decimal) UnitStatus {
	if balance.IsNegative() {
		return UnitStatusArrears
	}
	return UnitStatusNormal
}

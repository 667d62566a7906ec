package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnitNotFound        = errors.New("unit not found")
	ErrReadingNotFound     = errors.New("reading not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUnitNameExists      = errors.New("unit name already exists")
	ErrUnitHasChildren     = errors.New("unit still has linked children")
	ErrNotLatestReading    = errors.New("only the latest reading may be modified")
	ErrDuplicateReading    = errors.New("reading already exists for this date")
	ErrOutOfOrderReading   = errors.New("reading date must be after the unit's latest reading")
	ErrSelfParent          = errors.New("unit cannot be its own parent")
	ErrParentCycle         = errors.New("prospective parent is a child of this unit")
	ErrParentDepth         = errors.New("prospective parent is itself a child unit")
	ErrParentNotFound      = errors.New("parent unit not found")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrValidation          = errors.New("validation failed")
	ErrVersionConflict     = errors.New("optimistic lock conflict")
)

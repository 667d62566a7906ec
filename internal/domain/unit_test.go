package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUsage(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		want     string
	}{
		{"normal consumption", "50", "80", "30"},
		{"no consumption", "50", "50", "0"},
		{"meter reset clamps to zero", "50", "5", "0"},
		{"fractional values", "10.25", "12.75", "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := decimal.RequireFromString(tt.previous)
			cur := decimal.RequireFromString(tt.current)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(Usage(prev, cur)))
		})
	}
}

func TestStatusForBalance(t *testing.T) {
	assert.Equal(t, UnitStatusNormal, StatusForBalance(decimal.NewFromInt(100)))
	assert.Equal(t, UnitStatusNormal, StatusForBalance(decimal.Zero))
	assert.Equal(t, UnitStatusArrears, StatusForBalance(decimal.NewFromInt(-1)))
}

func TestBillingUnitID(t *testing.T) {
	parentID := uuid.New()

	standalone := Unit{ID: uuid.New()}
	assert.Equal(t, standalone.ID, standalone.BillingUnitID())

	child := Unit{ID: uuid.New(), ParentUnitID: &parentID}
	assert.Equal(t, parentID, child.BillingUnitID())
}

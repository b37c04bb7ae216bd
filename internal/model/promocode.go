package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Promocode is the stored form of a discount code. AppliesTo is a comma separated
// component list.
type Promocode struct {
	Code            string          `gorm:"primaryKey;size:64"`
	Kind            string          `gorm:"size:32;not null"`
	Value           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AppliesTo       string          `gorm:"size:64"`
	PayHours        int
	FreeHours       int
	TargetProductID string `gorm:"size:128"`
	ItemMode        string `gorm:"size:32"`
	Status          string `gorm:"size:16;not null"`
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	UpdatedAt       time.Time
}

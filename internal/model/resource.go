package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resource is a rentable table or hall. Tables that belong to a hall carry the
// hall's name and their number inside it.
type Resource struct {
	ID                 string `gorm:"primaryKey;size:128"`
	Name               string `gorm:"uniqueIndex;size:256;not null"`
	Kind               string `gorm:"size:16;not null;index"`
	Hall               string `gorm:"size:256;index"`
	Seq                int
	FirstHourRate      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SubsequentHourRate decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SessionID          *string         `gorm:"size:64;index"` // reserving session, nil when free
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Product is a sellable item with its shelf stock.
type Product struct {
	ID        string          `gorm:"primaryKey;size:128"`
	Name      string          `gorm:"size:256;not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock     int             `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revenue is one accepted order line recorded at the moment of sale.
type Revenue struct {
	ID         int64           `gorm:"primaryKey;autoIncrement:false"`
	Amount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Note       string          `gorm:"size:512;not null"`
	RecordedAt time.Time       `gorm:"not null;index"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OpenSession is a running session (hot table). State holds the whole aggregate as
// JSON; Version is bumped on every write.
type OpenSession struct {
	ID        string         `gorm:"primaryKey;size:64"`
	Kind      string         `gorm:"size:16;not null"`
	Model     string         `gorm:"size:32;not null"`
	State     datatypes.JSON `gorm:"not null"`
	Version   int64          `gorm:"not null"`
	StartedAt time.Time      `gorm:"not null;index"`
	UpdatedAt time.Time
}

// ActiveMembership maps a member to the one session they are active in.
type ActiveMembership struct {
	MemberID  string    `gorm:"primaryKey;size:128"`
	SessionID string    `gorm:"size:64;not null;index"`
	JoinedAt  time.Time `gorm:"not null"`
}

// Member is a known customer.
type Member struct {
	ID          string `gorm:"primaryKey;size:128"`
	DisplayName string `gorm:"size:256;not null"`
	Contact     string `gorm:"size:256"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HistoryRecord is the receipt of an ended session (cold table).
type HistoryRecord struct {
	ID             string          `gorm:"primaryKey;size:64"`
	Kind           string          `gorm:"size:16;not null"`
	Model          string          `gorm:"size:32;not null"`
	ResourceNames  string          `gorm:"size:1024"`
	StartedAt      time.Time       `gorm:"not null"`
	EndedAt        time.Time       `gorm:"not null;index"`
	TimeCost       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	OrdersCost     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Discount       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	GrandTotal     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SettledEarlier decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AmountDue      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaymentMethod  string          `gorm:"size:64"`
	PromocodeCode  string          `gorm:"size:64"`
	Receipt        datatypes.JSON  `gorm:"not null"`
}

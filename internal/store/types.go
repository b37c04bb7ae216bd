package store

import (
	"time"

	"github.com/shopspring/decimal"

	"venue-billing-backend/internal/billing"
)

// Catalog is the desired set of resources, products and promocodes.
type Catalog struct {
	Resources  []CatalogResource
	Products   []CatalogProduct
	Promocodes []billing.Promocode
}

// CatalogResource describes one table or hall. An empty ID is derived from Name.
type CatalogResource struct {
	ID                 string
	Name               string
	Kind               billing.Kind
	FirstHourRate      decimal.Decimal
	SubsequentHourRate decimal.Decimal
}

// CatalogProduct describes one product. Stock only seeds new products.
type CatalogProduct struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// ResourceStatus is a resource with its current reservation.
type ResourceStatus struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Kind               billing.Kind    `json:"kind"`
	Hall               string          `json:"hall,omitempty"`
	Seq                int             `json:"seq,omitempty"`
	FirstHourRate      decimal.Decimal `json:"first_hour_rate"`
	SubsequentHourRate decimal.Decimal `json:"subsequent_hour_rate"`
	IsAvailable        bool            `json:"isAvailable"`
	SessionID          string          `json:"session_id,omitempty"`
}

// HallSummary aggregates the tables of one hall.
type HallSummary struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	TotalTables int64  `json:"totalTables"`
	FreeTables  int64  `json:"freeTables"`
}

// ProductStatus is a product with its remaining stock.
type ProductStatus struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// HistoryFilter bounds a history query by end time. Zero bounds are open.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

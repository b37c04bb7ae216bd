package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Resource is a bookable table or hall as seen by the engine.
type Resource struct {
	ID    string
	Name  string
	Kind  Kind
	Tier  PricingTier
	Units []string
}

// ResourceDirectory resolves resources and keeps their reservations. Reservation is
// per unit so that a hall releases every one of its tables individually.
type ResourceDirectory interface {
	Resolve(ctx context.Context, resourceID string) (Resource, error)
	IsAvailable(ctx context.Context, unitID string) (bool, error)
	Reserve(ctx context.Context, unitID, sessionID string) error
	Release(ctx context.Context, unitID string) error
}

// MemberInfo identifies a person joining a session.
type MemberInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact,omitempty"`
}

// MemberDirectory answers the cross-session uniqueness question.
type MemberDirectory interface {
	FindActiveSessionFor(ctx context.Context, memberID string) (sessionID string, found bool, err error)
	Lookup(ctx context.Context, memberID string) (MemberInfo, error)
}

// Inventory is notified about consumed products.
type Inventory interface {
	CheckStock(ctx context.Context, productID string, qty int) (bool, error)
	ReduceStock(ctx context.Context, productID string, qty int) error
	RecordRevenue(ctx context.Context, amount decimal.Decimal, note string) error
}

// PromocodeStore looks promocodes up by their code.
type PromocodeStore interface {
	FindByCode(ctx context.Context, code string) (Promocode, bool, error)
}

// HistoryStore persists closed sessions and reloads open ones after a restart.
type HistoryStore interface {
	SaveHistory(ctx context.Context, history HistorySession) error
	LoadActiveSessions(ctx context.Context) ([]*Session, error)
}

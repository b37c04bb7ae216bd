package store

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"venue-billing-backend/internal/billing"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: record not found")

// SessionRepository keeps open sessions with an optimistic version counter.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *billing.Session) error
	GetSession(ctx context.Context, id string) (*billing.Session, int64, error)
	UpdateSession(ctx context.Context, s *billing.Session, version int64) error
	CloseSession(ctx context.Context, history billing.HistorySession, version int64) error
}

// Store defines the interface for all database operations.
type Store interface {
	billing.ResourceDirectory
	billing.MemberDirectory
	billing.Inventory
	billing.PromocodeStore
	billing.HistoryStore
	SessionRepository

	SyncCatalog(ctx context.Context, catalog Catalog) error
	RememberMember(ctx context.Context, info billing.MemberInfo) error
	Restock(ctx context.Context, productID string, qty int) (int, error)
	Product(ctx context.Context, productID string) (ProductStatus, error)
	ListResources(ctx context.Context, hall string) ([]ResourceStatus, error)
	ListHalls(ctx context.Context) ([]HallSummary, error)
	ListProducts(ctx context.Context) ([]ProductStatus, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]billing.HistorySession, error)

	// Transaction runs fn against a Store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time
}

// NewGormStore creates a new GORM-backed store. node generates revenue entry ids.
func NewGormStore(db *gorm.DB, node *snowflake.Node) Store {
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	return &gormStore{db: db, node: node, now: time.Now}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, node: s.node, now: s.now})
	})
}

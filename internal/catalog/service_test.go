package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue-billing-backend/config"
	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/db"
	"venue-billing-backend/internal/store"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return store.NewGormStore(gormDB, nil)
}

func TestConvert(t *testing.T) {
	got := Convert(config.CatalogConfig{
		Resources: []config.ResourceEntry{
			{Name: " Hall B-4 ", FirstHourRate: decimal.NewFromInt(20)},
			{Name: "Hall B", Kind: billing.KindHall},
		},
		Products:   []config.ProductEntry{{Name: "Tea", Price: decimal.NewFromInt(3), Stock: 4}},
		Promocodes: []config.PromocodeEntry{{Code: " spring ", Kind: billing.DiscountFixedAmount, Value: decimal.NewFromInt(5)}},
	})

	require.Len(t, got.Resources, 2)
	assert.Equal(t, "Hall B-4", got.Resources[0].Name)
	assert.Equal(t, billing.KindTable, got.Resources[0].Kind)
	assert.Equal(t, billing.KindHall, got.Resources[1].Kind)
	require.Len(t, got.Products, 1)
	assert.Equal(t, 4, got.Products[0].Stock)
	require.Len(t, got.Promocodes, 1)
	assert.Equal(t, "SPRING", got.Promocodes[0].Code)
	assert.Equal(t, billing.PromoActive, got.Promocodes[0].Status)
}

func TestService_SyncOnceInline(t *testing.T) {
	s := newStore(t)
	cfg := &config.Config{Catalog: config.CatalogConfig{
		Resources: []config.ResourceEntry{
			{Name: "Hall A", Kind: billing.KindHall, FirstHourRate: decimal.NewFromInt(10), SubsequentHourRate: decimal.NewFromInt(10)},
			{Name: "Hall A-1", Kind: billing.KindTable, FirstHourRate: decimal.NewFromInt(25), SubsequentHourRate: decimal.NewFromInt(15)},
		},
		Products: []config.ProductEntry{{ID: "cola", Name: "Cola", Price: decimal.NewFromInt(5), Stock: 3}},
	}}
	svc := NewService(cfg, s)
	ctx := context.Background()

	require.NoError(t, svc.SyncOnce(ctx))

	resources, err := s.ListResources(ctx, "Hall A")
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	require.NoError(t, s.ReduceStock(ctx, "cola", 2))

	// A second sync must not reset stock that was consumed.
	cfg.Catalog.Products[0].Stock = 50
	require.NoError(t, svc.SyncOnce(ctx))
	product, err := s.Product(ctx, "cola")
	require.NoError(t, err)
	assert.Equal(t, 1, product.Stock)
}

func TestService_SyncOnceFromFile(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
resources:
  - name: "Terrace-1"
    kind: table
    first_hour_rate: "12.50"
    subsequent_hour_rate: "8"
products:
  - id: chips
    name: Chips
    price: "2.5"
    stock: 10
promocodes:
  - code: welcome
    kind: percentage
    value: "15"
    applies_to: [time]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	svc := NewService(&config.Config{Catalog: config.CatalogConfig{File: path}}, s)
	require.NoError(t, svc.SyncOnce(context.Background()))

	resource, err := s.Resolve(context.Background(), "terrace-1")
	require.NoError(t, err)
	assert.Equal(t, "12.5", resource.Tier.FirstHourRate.String())

	code, found, err := s.FindByCode(context.Background(), "WELCOME")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, billing.DiscountPercentage, code.Kind)
}

func TestService_SyncOnceMissingFile(t *testing.T) {
	svc := NewService(&config.Config{Catalog: config.CatalogConfig{File: "/nonexistent/catalog.yaml"}}, newStore(t))
	assert.Error(t, svc.SyncOnce(context.Background()))
}

func TestService_RunReturnsWithoutFile(t *testing.T) {
	svc := NewService(&config.Config{}, newStore(t))
	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()
	<-done
}

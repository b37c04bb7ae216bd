package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
)

func (s *gormStore) CheckStock(ctx context.Context, productID string, qty int) (bool, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).Select("stock").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return false, fmt.Errorf("failed to load product %s: %w", productID, err)
	}
	return product.Stock >= qty, nil
}

// ReduceStock decrements stock only while enough is left.
func (s *gormStore) ReduceStock(ctx context.Context, productID string, qty int) error {
	res := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("failed to reduce stock of %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s x%d: %w", productID, qty, billing.ErrInsufficientStock)
	}
	return nil
}

func (s *gormStore) RecordRevenue(ctx context.Context, amount decimal.Decimal, note string) error {
	entry := model.Revenue{
		ID:         s.node.Generate().Int64(),
		Amount:     amount,
		Note:       note,
		RecordedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record revenue: %w", err)
	}
	return nil
}

// Restock adds qty to a product's shelf and returns the new stock.
func (s *gormStore) Restock(ctx context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, billing.ErrInvalidQuantity
	}
	var stock int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).
			Where("id = ?", productID).
			Update("stock", gorm.Expr("stock + ?", qty))
		if res.Error != nil {
			return fmt.Errorf("failed to restock %s: %w", productID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		var product model.Product
		if err := tx.Select("stock").First(&product, "id = ?", productID).Error; err != nil {
			return fmt.Errorf("failed to reload product %s: %w", productID, err)
		}
		stock = product.Stock
		return nil
	})
	return stock, err
}

// Product returns one product with its price and stock.
func (s *gormStore) Product(ctx context.Context, productID string) (ProductStatus, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductStatus{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return ProductStatus{}, fmt.Errorf("failed to load product %s: %w", productID, err)
	}
	return ProductStatus{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}, nil
}

func (s *gormStore) ListProducts(ctx context.Context) ([]ProductStatus, error) {
	var rows []model.Product
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make([]ProductStatus, 0, len(rows))
	for _, p := range rows {
		products = append(products, ProductStatus{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock})
	}
	return products, nil
}

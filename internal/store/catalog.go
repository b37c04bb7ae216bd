package store

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
	"venue-billing-backend/internal/parse"
)

// SyncCatalog upserts resources, products and promocodes. Reservations and product
// stock already in the database are left alone.
func (s *gormStore) SyncCatalog(ctx context.Context, catalog Catalog) error {
	existing, err := s.fetchAllResources(ctx)
	if err != nil {
		log.Printf("Warning: could not pre-fetch resources: %v", err)
		existing = make(map[string]model.Resource)
	}

	var resourcesToUpsert []model.Resource
	for _, item := range catalog.Resources {
		resource, err := prepareResource(item)
		if err != nil {
			log.Printf("Error preparing resource %q: %v", item.Name, err)
			continue
		}
		if resourceChanged(resource, existing) {
			resourcesToUpsert = append(resourcesToUpsert, resource)
		}
	}

	var productsToUpsert []model.Product
	for _, item := range catalog.Products {
		if item.ID == "" {
			item.ID = parse.Slug(item.Name)
		}
		if item.ID == "" || item.Name == "" {
			log.Printf("Error: product without id or name skipped: %+v", item)
			continue
		}
		productsToUpsert = append(productsToUpsert, model.Product{ID: item.ID, Name: item.Name, Price: item.Price, Stock: item.Stock})
	}

	var promocodesToUpsert []model.Promocode
	for _, code := range catalog.Promocodes {
		if normalizeCode(code.Code) == "" {
			log.Printf("Error: promocode without code skipped")
			continue
		}
		promocodesToUpsert = append(promocodesToUpsert, promocodeToRow(code))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(resourcesToUpsert) > 0 {
			log.Printf("Batch upserting %d resources...", len(resourcesToUpsert))
			if err := batchUpsertResources(tx, resourcesToUpsert); err != nil {
				return fmt.Errorf("batch upsert resources failed: %w", err)
			}
		}
		if len(productsToUpsert) > 0 {
			log.Printf("Batch upserting %d products...", len(productsToUpsert))
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "price", "updated_at"}),
			}).Create(&productsToUpsert).Error; err != nil {
				return fmt.Errorf("batch upsert products failed: %w", err)
			}
		}
		if len(promocodesToUpsert) > 0 {
			log.Printf("Batch upserting %d promocodes...", len(promocodesToUpsert))
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "code"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"kind", "value", "applies_to", "pay_hours", "free_hours",
					"target_product_id", "item_mode", "status", "valid_from", "valid_until", "updated_at",
				}),
			}).Create(&promocodesToUpsert).Error; err != nil {
				return fmt.Errorf("batch upsert promocodes failed: %w", err)
			}
		}
		return nil
	})
}

func (s *gormStore) fetchAllResources(ctx context.Context) (map[string]model.Resource, error) {
	var resources []model.Resource
	if err := s.db.WithContext(ctx).Find(&resources).Error; err != nil {
		return nil, err
	}
	resourceMap := make(map[string]model.Resource, len(resources))
	for _, r := range resources {
		resourceMap[r.ID] = r
	}
	return resourceMap, nil
}

// prepareResource fills in the id, hall and number of a catalog entry. A hall is
// its own hall; a table takes both from its name.
func prepareResource(item CatalogResource) (model.Resource, error) {
	if item.Name == "" {
		return model.Resource{}, fmt.Errorf("resource has no name")
	}
	if !item.Kind.Valid() {
		return model.Resource{}, fmt.Errorf("unknown resource kind %q", item.Kind)
	}

	resource := model.Resource{
		ID:                 item.ID,
		Name:               item.Name,
		Kind:               string(item.Kind),
		FirstHourRate:      item.FirstHourRate,
		SubsequentHourRate: item.SubsequentHourRate,
	}
	if resource.ID == "" {
		resource.ID = parse.Slug(item.Name)
	}

	switch item.Kind {
	case billing.KindHall:
		resource.Hall = item.Name
	case billing.KindTable:
		parsed, err := parse.ParseName(item.Name)
		if err != nil {
			return model.Resource{}, err
		}
		resource.Hall = parsed.Hall
		resource.Seq = parsed.Seq
	}
	return resource, nil
}

func resourceChanged(r model.Resource, existing map[string]model.Resource) bool {
	old, ok := existing[r.ID]
	if !ok {
		return true
	}
	return old.Name != r.Name ||
		old.Kind != r.Kind ||
		old.Hall != r.Hall ||
		old.Seq != r.Seq ||
		!old.FirstHourRate.Equal(r.FirstHourRate) ||
		!old.SubsequentHourRate.Equal(r.SubsequentHourRate)
}

func batchUpsertResources(tx *gorm.DB, resources []model.Resource) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "hall", "seq", "first_hour_rate", "subsequent_hour_rate", "updated_at"}),
	}).Create(&resources).Error
}

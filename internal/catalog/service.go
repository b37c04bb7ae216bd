package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"venue-billing-backend/config"
	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/store"
)

// Service keeps the resources, products and promocodes tables in line with the
// configured catalog.
type Service struct {
	cfg   *config.Config
	store store.Store
}

// NewService creates a catalog sync service.
func NewService(cfg *config.Config, store store.Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Run syncs once immediately and then on every interval until ctx is cancelled.
// Without a catalog file there is nothing to re-read, so it returns after the first sync.
func (s *Service) Run(ctx context.Context) {
	log.Println("Starting catalog sync service...")
	if err := s.SyncOnce(ctx); err != nil {
		log.Printf("Error syncing catalog: %v", err)
	}
	if s.cfg.Catalog.File == "" {
		return
	}

	timer := time.NewTimer(s.cfg.Catalog.SyncInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Catalog sync service shutting down.")
			return
		case <-timer.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.Printf("Error syncing catalog: %v", err)
			}
			timer.Reset(s.cfg.Catalog.SyncInterval)
		}
	}
}

// SyncOnce loads the catalog and upserts it.
func (s *Service) SyncOnce(ctx context.Context) error {
	source := s.cfg.Catalog
	if source.File != "" {
		loaded, err := config.LoadCatalog(source.File)
		if err != nil {
			return fmt.Errorf("failed to load catalog file: %w", err)
		}
		source = loaded
	}

	catalog := Convert(source)
	start := time.Now()
	if err := s.store.SyncCatalog(ctx, catalog); err != nil {
		return fmt.Errorf("failed to sync catalog: %w", err)
	}
	log.Printf("Catalog synced: %d resources, %d products, %d promocodes in %s",
		len(catalog.Resources), len(catalog.Products), len(catalog.Promocodes), time.Since(start))
	return nil
}

// Convert maps the YAML catalog onto the store's catalog types.
func Convert(source config.CatalogConfig) store.Catalog {
	var catalog store.Catalog
	for _, r := range source.Resources {
		kind := r.Kind
		if kind == "" {
			kind = billing.KindTable
		}
		catalog.Resources = append(catalog.Resources, store.CatalogResource{
			ID:                 r.ID,
			Name:               strings.TrimSpace(r.Name),
			Kind:               kind,
			FirstHourRate:      r.FirstHourRate,
			SubsequentHourRate: r.SubsequentHourRate,
		})
	}
	for _, p := range source.Products {
		catalog.Products = append(catalog.Products, store.CatalogProduct{
			ID:    p.ID,
			Name:  strings.TrimSpace(p.Name),
			Price: p.Price,
			Stock: p.Stock,
		})
	}
	for _, p := range source.Promocodes {
		status := p.Status
		if status == "" {
			status = billing.PromoActive
		}
		catalog.Promocodes = append(catalog.Promocodes, billing.Promocode{
			Code:            strings.ToUpper(strings.TrimSpace(p.Code)),
			Kind:            p.Kind,
			Value:           p.Value,
			AppliesTo:       p.AppliesTo,
			PayHours:        p.PayHours,
			FreeHours:       p.FreeHours,
			TargetProductID: p.TargetProductID,
			ItemMode:        p.ItemMode,
			Status:          status,
			ValidFrom:       p.ValidFrom,
			ValidUntil:      p.ValidUntil,
		})
	}
	return catalog
}

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
)

// Resolve loads a table or hall. A hall's units are its tables ordered by number.
func (s *gormStore) Resolve(ctx context.Context, resourceID string) (billing.Resource, error) {
	var row model.Resource
	if err := s.db.WithContext(ctx).First(&row, "id = ?", resourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Resource{}, fmt.Errorf("resource %s: %w", resourceID, billing.ErrResourceUnavailable)
		}
		return billing.Resource{}, fmt.Errorf("failed to load resource %s: %w", resourceID, err)
	}

	resource := billing.Resource{
		ID:   row.ID,
		Name: row.Name,
		Kind: billing.Kind(row.Kind),
		Tier: billing.PricingTier{
			FirstHourRate:      row.FirstHourRate,
			SubsequentHourRate: row.SubsequentHourRate,
		},
	}

	if resource.Kind == billing.KindHall {
		var units []string
		if err := s.db.WithContext(ctx).
			Model(&model.Resource{}).
			Where("kind = ? AND hall = ?", string(billing.KindTable), row.Name).
			Order("seq").
			Pluck("id", &units).Error; err != nil {
			return billing.Resource{}, fmt.Errorf("failed to load tables of hall %s: %w", row.Name, err)
		}
		resource.Units = units
	}
	return resource, nil
}

func (s *gormStore) IsAvailable(ctx context.Context, unitID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ? AND session_id IS NULL", unitID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check availability of %s: %w", unitID, err)
	}
	return count > 0, nil
}

// Reserve claims a unit only if nobody holds it.
func (s *gormStore) Reserve(ctx context.Context, unitID, sessionID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ? AND session_id IS NULL", unitID).
		Update("session_id", sessionID)
	if res.Error != nil {
		return fmt.Errorf("failed to reserve %s: %w", unitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("unit %s: %w", unitID, billing.ErrResourceUnavailable)
	}
	return nil
}

func (s *gormStore) Release(ctx context.Context, unitID string) error {
	if err := s.db.WithContext(ctx).
		Model(&model.Resource{}).
		Where("id = ?", unitID).
		Update("session_id", nil).Error; err != nil {
		return fmt.Errorf("failed to release %s: %w", unitID, err)
	}
	return nil
}

// ListResources returns every resource, or only those of one hall. A hall is
// available when none of its tables is reserved.
func (s *gormStore) ListResources(ctx context.Context, hall string) ([]ResourceStatus, error) {
	query := s.db.WithContext(ctx).Order("hall").Order("seq").Order("name")
	if hall != "" {
		query = query.Where("hall = ?", hall)
	}
	var rows []model.Resource
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	busyHalls := make(map[string]bool)
	for _, r := range rows {
		if r.Kind == string(billing.KindTable) && r.SessionID != nil && r.Hall != "" {
			busyHalls[r.Hall] = true
		}
	}

	statuses := make([]ResourceStatus, 0, len(rows))
	for _, r := range rows {
		status := ResourceStatus{
			ID:                 r.ID,
			Name:               r.Name,
			Kind:               billing.Kind(r.Kind),
			Hall:               r.Hall,
			Seq:                r.Seq,
			FirstHourRate:      r.FirstHourRate,
			SubsequentHourRate: r.SubsequentHourRate,
			IsAvailable:        r.SessionID == nil,
		}
		if r.SessionID != nil {
			status.SessionID = *r.SessionID
		}
		if status.Kind == billing.KindHall && busyHalls[r.Name] {
			status.IsAvailable = false
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// ListHalls aggregates table counts per hall in one query.
func (s *gormStore) ListHalls(ctx context.Context) ([]HallSummary, error) {
	var halls []model.Resource
	if err := s.db.WithContext(ctx).Where("kind = ?", string(billing.KindHall)).Order("name").Find(&halls).Error; err != nil {
		return nil, fmt.Errorf("failed to list halls: %w", err)
	}

	type aggRow struct {
		Hall        string
		TotalTables int64
		FreeTables  int64
	}
	var aggs []aggRow
	if err := s.db.WithContext(ctx).
		Model(&model.Resource{}).
		Select("hall as hall, COUNT(*) as total_tables, SUM(CASE WHEN session_id IS NULL THEN 1 ELSE 0 END) as free_tables").
		Where("kind = ? AND hall <> ''", string(billing.KindTable)).
		Group("hall").
		Scan(&aggs).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate tables: %w", err)
	}

	aggMap := make(map[string]aggRow, len(aggs))
	for _, a := range aggs {
		aggMap[a.Hall] = a
	}

	summaries := make([]HallSummary, 0, len(halls))
	seen := make(map[string]bool, len(halls))
	for _, h := range halls {
		a := aggMap[h.Name]
		summaries = append(summaries, HallSummary{ID: h.ID, Name: h.Name, TotalTables: a.TotalTables, FreeTables: a.FreeTables})
		seen[h.Name] = true
	}
	// tables grouped under a name that has no hall row of its own
	for _, a := range aggs {
		if !seen[a.Hall] {
			summaries = append(summaries, HallSummary{Name: a.Hall, TotalTables: a.TotalTables, FreeTables: a.FreeTables})
		}
	}
	return summaries, nil
}

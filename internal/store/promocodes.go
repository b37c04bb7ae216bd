package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
)

// FindByCode looks a promocode up case-insensitively.
func (s *gormStore) FindByCode(ctx context.Context, code string) (billing.Promocode, bool, error) {
	var row model.Promocode
	err := s.db.WithContext(ctx).First(&row, "code = ?", normalizeCode(code)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.Promocode{}, false, nil
	}
	if err != nil {
		return billing.Promocode{}, false, fmt.Errorf("failed to load promocode %q: %w", code, err)
	}
	return promocodeFromRow(row), true, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func promocodeFromRow(row model.Promocode) billing.Promocode {
	code := billing.Promocode{
		Code:            row.Code,
		Kind:            billing.DiscountKind(row.Kind),
		Value:           row.Value,
		PayHours:        row.PayHours,
		FreeHours:       row.FreeHours,
		TargetProductID: row.TargetProductID,
		ItemMode:        billing.ItemMode(row.ItemMode),
		Status:          billing.PromoStatus(row.Status),
	}
	for _, c := range strings.Split(row.AppliesTo, ",") {
		if c = strings.TrimSpace(c); c != "" {
			code.AppliesTo = append(code.AppliesTo, billing.Component(c))
		}
	}
	if row.ValidFrom != nil {
		code.ValidFrom = *row.ValidFrom
	}
	if row.ValidUntil != nil {
		code.ValidUntil = *row.ValidUntil
	}
	return code
}

func promocodeToRow(code billing.Promocode) model.Promocode {
	components := make([]string, 0, len(code.AppliesTo))
	for _, c := range code.AppliesTo {
		components = append(components, string(c))
	}
	row := model.Promocode{
		Code:            normalizeCode(code.Code),
		Kind:            string(code.Kind),
		Value:           code.Value,
		AppliesTo:       strings.Join(components, ","),
		PayHours:        code.PayHours,
		FreeHours:       code.FreeHours,
		TargetProductID: code.TargetProductID,
		ItemMode:        string(code.ItemMode),
		Status:          string(code.Status),
		ValidFrom:       optionalTime(code.ValidFrom),
		ValidUntil:      optionalTime(code.ValidUntil),
	}
	if row.Status == "" {
		row.Status = string(billing.PromoActive)
	}
	return row
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

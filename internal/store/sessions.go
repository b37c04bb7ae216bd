package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
)

// CreateSession stores a new session at version 1 together with its memberships.
func (s *gormStore) CreateSession(ctx context.Context, session *billing.Session) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.OpenSession{
			ID:        session.ID,
			Kind:      string(session.Kind),
			Model:     string(session.Model),
			State:     state,
			Version:   1,
			StartedAt: session.StartedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create session %s: %w", session.ID, err)
		}
		return syncMemberships(tx, session)
	})
}

// GetSession returns the session and the version it was read at. A session that
// has already been moved to history yields billing.ErrAlreadyClosed.
func (s *gormStore) GetSession(ctx context.Context, id string) (*billing.Session, int64, error) {
	var row model.OpenSession
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var closed int64
			if err := s.db.WithContext(ctx).Model(&model.HistoryRecord{}).Where("id = ?", id).Count(&closed).Error; err != nil {
				return nil, 0, fmt.Errorf("failed to look up history for session %s: %w", id, err)
			}
			if closed > 0 {
				return nil, 0, fmt.Errorf("session %s: %w", id, billing.ErrAlreadyClosed)
			}
			return nil, 0, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	session, err := decodeSession(row)
	if err != nil {
		return nil, 0, err
	}
	return session, row.Version, nil
}

// UpdateSession writes the session if nobody else wrote it since version was read.
func (s *gormStore) UpdateSession(ctx context.Context, session *billing.Session, version int64) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.OpenSession{}).
			Where("id = ? AND version = ?", session.ID, version).
			Updates(map[string]any{
				"state":      datatypes.JSON(state),
				"version":    version + 1,
				"updated_at": s.now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update session %s: %w", session.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %s at version %d: %w", session.ID, version, billing.ErrConflict)
		}
		return syncMemberships(tx, session)
	})
}

// CloseSession moves a session from the open table into history.
func (s *gormStore) CloseSession(ctx context.Context, history billing.HistorySession, version int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND version = ?", history.ID, version).Delete(&model.OpenSession{})
		if res.Error != nil {
			return fmt.Errorf("failed to close session %s: %w", history.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session %s at version %d: %w", history.ID, version, billing.ErrConflict)
		}
		if err := tx.Where("session_id = ?", history.ID).Delete(&model.ActiveMembership{}).Error; err != nil {
			return fmt.Errorf("failed to clear memberships of session %s: %w", history.ID, err)
		}
		return saveHistory(tx, history)
	})
}

func (s *gormStore) SaveHistory(ctx context.Context, history billing.HistorySession) error {
	return saveHistory(s.db.WithContext(ctx), history)
}

func (s *gormStore) LoadActiveSessions(ctx context.Context) ([]*billing.Session, error) {
	var rows []model.OpenSession
	if err := s.db.WithContext(ctx).Order("started_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load open sessions: %w", err)
	}
	sessions := make([]*billing.Session, 0, len(rows))
	for _, row := range rows {
		session, err := decodeSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// ListHistory returns receipts newest first.
func (s *gormStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]billing.HistorySession, error) {
	query := s.db.WithContext(ctx).Order("ended_at DESC")
	if !filter.From.IsZero() {
		query = query.Where("ended_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("ended_at < ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []model.HistoryRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	receipts := make([]billing.HistorySession, 0, len(rows))
	for _, row := range rows {
		var receipt billing.HistorySession
		if err := json.Unmarshal(row.Receipt, &receipt); err != nil {
			return nil, fmt.Errorf("failed to decode receipt %s: %w", row.ID, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func saveHistory(tx *gorm.DB, history billing.HistorySession) error {
	receipt, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode receipt %s: %w", history.ID, err)
	}

	names := make([]string, 0, len(history.Resources))
	for _, span := range history.Resources {
		names = append(names, span.ResourceName)
	}

	record := model.HistoryRecord{
		ID:             history.ID,
		Kind:           string(history.Kind),
		Model:          string(history.Model),
		ResourceNames:  strings.Join(names, " > "),
		StartedAt:      history.StartedAt.UTC(),
		EndedAt:        history.EndedAt.UTC(),
		TimeCost:       history.TimeCost,
		OrdersCost:     history.OrdersCost,
		Discount:       history.Discount,
		GrandTotal:     history.GrandTotal,
		SettledEarlier: history.SettledEarlier,
		AmountDue:      history.AmountDue,
		PaymentMethod:  history.PaymentMethod,
		PromocodeCode:  history.PromocodeCode,
		Receipt:        receipt,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to archive session %s: %w", history.ID, err)
	}
	return nil
}

func decodeSession(row model.OpenSession) (*billing.Session, error) {
	var session billing.Session
	if err := json.Unmarshal(row.State, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", row.ID, err)
	}
	return &session, nil
}

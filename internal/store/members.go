package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/model"
)

func (s *gormStore) FindActiveSessionFor(ctx context.Context, memberID string) (string, bool, error) {
	var membership model.ActiveMembership
	err := s.db.WithContext(ctx).First(&membership, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up membership of %s: %w", memberID, err)
	}
	return membership.SessionID, true, nil
}

func (s *gormStore) Lookup(ctx context.Context, memberID string) (billing.MemberInfo, error) {
	var member model.Member
	if err := s.db.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.MemberInfo{}, fmt.Errorf("member %s: %w", memberID, ErrNotFound)
		}
		return billing.MemberInfo{}, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}
	return billing.MemberInfo{ID: member.ID, DisplayName: member.DisplayName, Contact: member.Contact}, nil
}

// RememberMember registers a customer or refreshes their name and contact.
func (s *gormStore) RememberMember(ctx context.Context, info billing.MemberInfo) error {
	member := model.Member{ID: info.ID, DisplayName: info.DisplayName, Contact: info.Contact}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "contact", "updated_at"}),
	}).Create(&member).Error; err != nil {
		return fmt.Errorf("failed to save member %s: %w", info.ID, err)
	}
	return nil
}

// syncMemberships makes the membership table match the active members of s. A
// member already active in another session fails the whole write.
func syncMemberships(tx *gorm.DB, s *billing.Session) error {
	if err := tx.Where("session_id = ?", s.ID).Delete(&model.ActiveMembership{}).Error; err != nil {
		return fmt.Errorf("failed to clear memberships of session %s: %w", s.ID, err)
	}
	if s.Closed() {
		return nil
	}

	for _, m := range s.ActiveMembers() {
		var existing model.ActiveMembership
		err := tx.First(&existing, "member_id = ?", m.ID).Error
		if err == nil {
			return fmt.Errorf("member %s is in session %s: %w", m.ID, existing.SessionID, billing.ErrMemberBusyElsewhere)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check membership of %s: %w", m.ID, err)
		}

		membership := model.ActiveMembership{MemberID: m.ID, SessionID: s.ID, JoinedAt: m.JoinedAt}
		if err := tx.Create(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("member %s: %w", m.ID, billing.ErrMemberBusyElsewhere)
			}
			return fmt.Errorf("failed to save membership of %s: %w", m.ID, err)
		}
	}
	return nil
}

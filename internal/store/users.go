package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

// UsedSlotIDs returns every sensor slot currently assigned to a user.
func (s *gormStore) UsedSlotIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("slot_id IS NOT NULL").
		Pluck("slot_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load used slot ids: %w", err)
	}
	return ids, nil
}

func (s *gormStore) FindUserByMSV(ctx context.Context, msv string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("msv = ?", msv).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) FindUserByExternalID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) FindActiveUserBySlot(ctx context.Context, slotID int) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).
		Where("slot_id = ? AND is_active = ?", slotID, true).
		First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// UpdateUser applies the non-nil fields of upd. Slot and external id are immutable here.
func (s *gormStore) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*model.User, error) {
	user, err := s.FindUserByExternalID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if upd.Name != nil {
		changes["name"] = strings.TrimSpace(*upd.Name)
	}
	if upd.MSV != nil {
		changes["msv"] = strings.TrimSpace(*upd.MSV)
	}
	if upd.IsActive != nil {
		changes["is_active"] = *upd.IsActive
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", userID, translate(err))
	}
	return s.FindUserByExternalID(ctx, userID)
}

// DeactivateUser marks a user inactive and optionally releases the sensor slot.
func (s *gormStore) DeactivateUser(ctx context.Context, userID string, clearSlot bool) (*model.User, error) {
	user, err := s.FindUserByExternalID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"is_active": false}
	if clearSlot {
		changes["slot_id"] = nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to deactivate user %s: %w", userID, translate(err))
	}
	return s.FindUserByExternalID(ctx, userID)
}

func (s *gormStore) ListUsers(ctx context.Context, filter UserFilter) ([]model.User, int64, error) {
	page, limit := NormalizePage(filter.Page, filter.Limit, DefaultUserPageSize)

	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.User{})
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if term := strings.TrimSpace(filter.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(msv) LIKE ? OR LOWER(user_id) LIKE ?", like, like, like)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []model.User
	if err := query().Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

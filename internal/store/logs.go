package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

// LatestLogBetween returns the newest log of a user within [from, to], or ErrNotFound.
func (s *gormStore) LatestLogBetween(ctx context.Context, userID uint, from, to time.Time) (*model.AttendanceLog, error) {
	var entry model.AttendanceLog
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND scanned_at >= ? AND scanned_at <= ?", userID, from.UTC(), to.UTC()).
		Order("scanned_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (s *gormStore) CreateLog(ctx context.Context, entry *model.AttendanceLog) error {
	entry.Timestamp = entry.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Omit("User").Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create attendance log: %w", err)
	}
	return nil
}

// ListLogs returns a page of logs, newest first, with the owning user preloaded.
// An unknown external user id yields an empty page rather than an error.
func (s *gormStore) ListLogs(ctx context.Context, filter LogFilter) ([]model.AttendanceLog, int64, error) {
	page, size := NormalizePage(filter.Page, filter.PageSize, DefaultLogPageSize)

	var ownerID uint
	if filter.UserID != "" {
		user, err := s.FindUserByExternalID(ctx, filter.UserID)
		if errors.Is(err, ErrNotFound) {
			return []model.AttendanceLog{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		ownerID = user.ID
	}

	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.AttendanceLog{})
		if ownerID != 0 {
			q = q.Where("user_id = ?", ownerID)
		}
		if filter.From != nil {
			q = q.Where("scanned_at >= ?", filter.From.UTC())
		}
		if filter.To != nil {
			q = q.Where("scanned_at <= ?", filter.To.UTC())
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attendance logs: %w", err)
	}

	var logs []model.AttendanceLog
	if err := query().
		Preload("User").
		Order("scanned_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attendance logs: %w", err)
	}
	return logs, total, nil
}

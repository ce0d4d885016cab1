package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	UsedSlotIDs(ctx context.Context) ([]int, error)
	FindUserByMSV(ctx context.Context, msv string) (*model.User, error)
	FindUserByExternalID(ctx context.Context, userID string) (*model.User, error)
	FindActiveUserBySlot(ctx context.Context, slotID int) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*model.User, error)
	DeactivateUser(ctx context.Context, userID string, clearSlot bool) (*model.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]model.User, int64, error)

	LatestLogBetween(ctx context.Context, userID uint, from, to time.Time) (*model.AttendanceLog, error)
	CreateLog(ctx context.Context, entry *model.AttendanceLog) error
	ListLogs(ctx context.Context, filter LogFilter) ([]model.AttendanceLog, int64, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for callers that need raw access.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

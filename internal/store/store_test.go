package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore returns a store over a private in-memory database.
func newSQLiteStore(t *testing.T) (Store, *gorm.DB) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&model.User{}, &model.AttendanceLog{}, &model.PushSubscription{}))
	return NewGormStore(gormDB), gormDB
}

func intPtr(v int) *int { return &v }

func TestGormStore_UsedSlotIDs(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT "slot_id" FROM "users" WHERE slot_id IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow(1).AddRow(2).AddRow(7))

	ids, err := s.UsedSlotIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 7}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindActiveUserBySlot(t *testing.T) {
	testCases := []struct {
		name     string
		rows     *sqlmock.Rows
		wantErr  error
		wantName string
	}{
		{
			name:     "active user found",
			rows:     sqlmock.NewRows([]string{"id", "user_id", "slot_id", "name", "is_active"}).AddRow(1, "u-1", 5, "Alice", true),
			wantName: "Alice",
		},
		{
			name:    "no user for slot",
			rows:    sqlmock.NewRows([]string{"id"}),
			wantErr: ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			s := NewGormStore(gormDB)

			mock.ExpectQuery(`SELECT \* FROM "users" WHERE slot_id = \$1 AND is_active = \$2 ORDER BY "users"."id" LIMIT \$[0-9]+`).
				WithArgs(5, true, 1).
				WillReturnRows(tc.rows)

			user, err := s.FindActiveUserBySlot(context.Background(), 5)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.wantName, user.Name)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_DeleteSubscription(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
		WithArgs("https://push.example/1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteSubscription(context.Background(), "https://push.example/1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UserLifecycle(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	alice := &model.User{UserID: "u-alice", Name: "Alice", MSV: "B20DCCN001", SlotID: intPtr(3), IsActive: true}
	bob := &model.User{UserID: "u-bob", Name: "Bob", MSV: "B20DCCN002", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	ids, err := s.UsedSlotIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids)

	found, err := s.FindUserByMSV(ctx, "B20DCCN002")
	require.NoError(t, err)
	assert.Equal(t, "u-bob", found.UserID)

	_, err = s.FindUserByMSV(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	bySlot, err := s.FindActiveUserBySlot(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Alice", bySlot.Name)

	newName := "Alice Nguyen"
	updated, err := s.UpdateUser(ctx, "u-alice", UserUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Alice Nguyen", updated.Name)
	require.NotNil(t, updated.SlotID)
	assert.Equal(t, 3, *updated.SlotID)

	deactivated, err := s.DeactivateUser(ctx, "u-alice", true)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Nil(t, deactivated.SlotID)

	_, err = s.FindActiveUserBySlot(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	ids, err = s.UsedSlotIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = s.DeactivateUser(ctx, "u-nobody", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_ListUsers(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	for i, name := range []string{"Alice", "Bob", "Carol"} {
		require.NoError(t, s.CreateUser(ctx, &model.User{
			UserID:   fmt.Sprintf("u-%d", i),
			Name:     name,
			MSV:      fmt.Sprintf("MSV%d", i),
			IsActive: i != 2,
		}))
	}
	// is_active defaults to true in the schema, so force Carol inactive explicitly.
	inactive := false
	_, err := s.UpdateUser(ctx, "u-2", UserUpdate{IsActive: &inactive})
	require.NoError(t, err)

	active := true
	users, total, err := s.ListUsers(ctx, UserFilter{IsActive: &active})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, users, 2)

	users, total, err = s.ListUsers(ctx, UserFilter{Search: "car"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "Carol", users[0].Name)

	users, total, err = s.ListUsers(ctx, UserFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, users, 1)
}

func TestGormStore_Logs(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	user := &model.User{UserID: "u-1", Name: "Alice", SlotID: intPtr(1), IsActive: true}
	require.NoError(t, s.CreateUser(ctx, user))

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateLog(ctx, &model.AttendanceLog{UserID: user.ID, Timestamp: day.Add(8 * time.Hour), EventType: model.EventCheckIn, SlotID: 1}))
	require.NoError(t, s.CreateLog(ctx, &model.AttendanceLog{UserID: user.ID, Timestamp: day.Add(17 * time.Hour), EventType: model.EventCheckOut, SlotID: 1}))
	require.NoError(t, s.CreateLog(ctx, &model.AttendanceLog{UserID: user.ID, Timestamp: day.Add(32 * time.Hour), EventType: model.EventCheckIn, SlotID: 1}))

	latest, err := s.LatestLogBetween(ctx, user.ID, day, day.Add(24*time.Hour-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.EventCheckOut, latest.EventType)

	_, err = s.LatestLogBetween(ctx, user.ID, day.Add(-48*time.Hour), day.Add(-24*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	logs, total, err := s.ListLogs(ctx, LogFilter{UserID: "u-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 3)
	assert.Equal(t, model.EventCheckIn, logs[0].EventType)
	assert.Equal(t, "Alice", logs[0].User.Name)

	to := day.Add(24 * time.Hour)
	_, total, err = s.ListLogs(ctx, LogFilter{From: &day, To: &to})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	logs, total, err = s.ListLogs(ctx, LogFilter{UserID: "unknown"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "e1", P256DH: "k1", Auth: "a1"}))
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{Endpoint: "e1", P256DH: "k2", Auth: "a2"}))

	sub, err := s.GetSubscription(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "k2", sub.P256DH)

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, s.DeleteSubscription(ctx, "e1"))
	_, err = s.GetSubscription(ctx, "e1")
	assert.ErrorIs(t, err, ErrNotFound)
}

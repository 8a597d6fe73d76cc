package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
)

func newNotificationFixture(t *testing.T) (*NotificationService, sqlmock.Sqlmock) {
	t.Helper()
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	return NewNotificationService(NewSimpleNotificationRepository(pg), nil), mock
}

var notificationRowColumns = []string{"id", "user_id", "title", "content", "notification_type", "is_read",
	"related_event_id", "push_status", "created_at", "updated_at"}

func TestNotificationService_Notify(t *testing.T) {
	svc, mock := newNotificationFixture(t)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "walid", "New event", "Flood relief", "event_created",
			sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Notify(context.Background(), "walid", "New event", "Flood relief", "event_created", "event-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationService_NotifyUnknownUser(t *testing.T) {
	svc, mock := newNotificationFixture(t)
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(&pq.Error{Code: "23503"})

	err := svc.Notify(context.Background(), "ghost", "t", "c", "info", "")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestNotificationService_List(t *testing.T) {
	svc, mock := newNotificationFixture(t)
	now := time.Now()
	mock.ExpectQuery("FROM notifications WHERE user_id = \\$1 AND is_read = FALSE").
		WithArgs("walid", 50, 0).
		WillReturnRows(sqlmock.NewRows(notificationRowColumns).
			AddRow("n-1", "walid", "New event", "Flood relief", "event_created", false, "event-1", "sent", now, now))

	list, err := svc.List(context.Background(), authz.Identity{UserID: "walid"}, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, db.PushStatusSent, list[0].PushStatus)
	assert.Equal(t, "event-1", list[0].RelatedEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationService_ScopedToCaller(t *testing.T) {
	ctx := context.Background()
	walid := authz.Identity{UserID: "walid"}

	t.Run("mark read of someone else's notification", func(t *testing.T) {
		svc, mock := newNotificationFixture(t)
		mock.ExpectExec("UPDATE notifications SET is_read = TRUE").
			WithArgs("n-9", "walid").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, svc.MarkRead(ctx, walid, "n-9"), authz.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		svc, mock := newNotificationFixture(t)
		mock.ExpectExec("DELETE FROM notifications").
			WithArgs("n-1", "walid").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.Delete(ctx, walid, "n-1"))
	})

	t.Run("mark all read", func(t *testing.T) {
		svc, mock := newNotificationFixture(t)
		mock.ExpectExec("UPDATE notifications SET is_read = TRUE").
			WithArgs("walid").
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := svc.MarkAllRead(ctx, walid)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		svc, _ := newNotificationFixture(t)
		_, err := svc.UnreadCount(ctx, authz.Identity{})
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})
}

func TestNotificationService_RegisterDevice(t *testing.T) {
	ctx := context.Background()
	walid := authz.Identity{UserID: "walid"}

	svc, mock := newNotificationFixture(t)
	mock.ExpectExec("INSERT INTO device_tokens").
		WithArgs("fcm-token", "walid", "ios", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := svc.RegisterDevice(ctx, walid, db.RegisterDeviceRequest{Token: " fcm-token ", Platform: "iOS"})
	require.NoError(t, err)
	assert.Equal(t, "ios", d.Platform)

	_, err = svc.RegisterDevice(ctx, walid, db.RegisterDeviceRequest{Token: "  "})
	assert.ErrorIs(t, err, authz.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimpleNotificationRepository_RemoveTokens(t *testing.T) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pg.Close()
	repo := NewSimpleNotificationRepository(pg)

	require.NoError(t, repo.RemoveTokens(context.Background(), nil))

	mock.ExpectExec("DELETE FROM device_tokens WHERE token = ANY").
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.RemoveTokens(context.Background(), []string{"a", "b"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/frontend/internal/transport/transporttest"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
)

type MockNotificationAPI struct {
	ListNotificationsFunc     func(ctx context.Context) ([]domain.Notification, error)
	MarkNotificationsReadFunc func(ctx context.Context) error
	markCalls                 int
}

func (m *MockNotificationAPI) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	if m.ListNotificationsFunc != nil {
		return m.ListNotificationsFunc(ctx)
	}
	return []domain.Notification{}, nil
}

func (m *MockNotificationAPI) MarkNotificationsRead(ctx context.Context) error {
	m.markCalls++
	if m.MarkNotificationsReadFunc != nil {
		return m.MarkNotificationsReadFunc(ctx)
	}
	return nil
}

func TestFeed(t *testing.T) {
	mock := &MockNotificationAPI{
		ListNotificationsFunc: func(context.Context) ([]domain.Notification, error) {
			return []domain.Notification{
				{ID: "n2", Text: "Lead assigned", IsRead: false},
				{ID: "n1", Text: "Task due", IsRead: true},
			}, nil
		},
	}
	feed := NewFeed(mock)
	require.NoError(t, feed.Load(context.Background()))
	assert.Equal(t, 1, feed.Unread())

	src := transporttest.New()
	feed.Listen(src)
	var pushed []domain.Notification
	feed.OnNew(func(n domain.Notification) { pushed = append(pushed, n) })

	src.Push(api.EventNotification, `{"_id":"n3","text":"New message","link":"/contacts/9"}`)

	items := feed.Items()
	require.Len(t, items, 3)
	assert.Equal(t, domain.ID("n3"), items[0].ID)
	assert.Equal(t, 2, feed.Unread())
	require.Len(t, pushed, 1)
	assert.Equal(t, "/contacts/9", pushed[0].Link)

	require.NoError(t, feed.MarkAllRead(context.Background()))
	assert.Equal(t, 0, feed.Unread())
	assert.Equal(t, 1, mock.markCalls)

	require.NoError(t, feed.MarkAllRead(context.Background()))
	assert.Equal(t, 1, mock.markCalls, "nothing unread, no request")

	feed.Close()
	src.Push(api.EventNotification, `{"_id":"n4"}`)
	assert.Len(t, feed.Items(), 3)
}

func TestFeedMarkReadFailure(t *testing.T) {
	mock := &MockNotificationAPI{
		ListNotificationsFunc: func(context.Context) ([]domain.Notification, error) {
			return []domain.Notification{{ID: "n1"}}, nil
		},
		MarkNotificationsReadFunc: func(context.Context) error { return errors.New("boom") },
	}
	feed := NewFeed(mock)
	require.NoError(t, feed.Load(context.Background()))

	assert.Error(t, feed.MarkAllRead(context.Background()))
	assert.Equal(t, 1, feed.Unread())
}

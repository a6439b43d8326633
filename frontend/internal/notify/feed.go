// Package notify keeps the user's notification feed: the stored list plus
// notifications pushed while the client runs.
package notify

import (
	"context"
	"sync"

	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

type NotificationAPI interface {
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	MarkNotificationsRead(ctx context.Context) error
}

type Feed struct {
	api NotificationAPI

	mu    sync.RWMutex
	items []domain.Notification
	subs  transport.Group
	onNew func(domain.Notification)
}

func NewFeed(notifications NotificationAPI) *Feed {
	return &Feed{api: notifications}
}

// Load replaces the feed with the stored notifications, newest first.
func (f *Feed) Load(ctx context.Context) error {
	items, err := f.api.ListNotifications(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
	return nil
}

// Listen prepends pushed notifications until Close.
func (f *Feed) Listen(src transport.EventSource) {
	f.subs.Add(transport.Subscribe(src, api.EventNotification, f.prepend))
}

// OnNew registers a callback for pushed notifications.
func (f *Feed) OnNew(fn func(domain.Notification)) {
	f.mu.Lock()
	f.onNew = fn
	f.mu.Unlock()
}

func (f *Feed) prepend(n domain.Notification) {
	f.mu.Lock()
	f.items = append([]domain.Notification{n}, f.items...)
	fn := f.onNew
	f.mu.Unlock()

	logger.Log.Debug("notification received", "component", "notify", "id", n.ID)
	if fn != nil {
		fn(n)
	}
}

func (f *Feed) Items() []domain.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Notification(nil), f.items...)
}

func (f *Feed) Unread() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, item := range f.items {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// MarkAllRead marks every notification read on the server, then locally.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	if f.Unread() == 0 {
		return nil
	}
	if err := f.api.MarkNotificationsRead(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	for i := range f.items {
		f.items[i].IsRead = true
	}
	f.mu.Unlock()
	return nil
}

func (f *Feed) Close() {
	f.subs.Close()
}

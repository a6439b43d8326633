package apiclient

import (
	"context"
	"net/http"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

func (c *APIClient) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var items []domain.Notification
	if err := c.do(ctx, c.request(), http.MethodGet, "/notifications", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *APIClient) MarkNotificationsRead(ctx context.Context) error {
	return c.do(ctx, c.request(), http.MethodPost, "/notifications/read", nil)
}

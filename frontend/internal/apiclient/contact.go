package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/validation"
)

func (c *APIClient) ListContacts(ctx context.Context, q api.ContactsQuery) ([]domain.Contact, error) {
	if err := validation.Struct(q); err != nil {
		return nil, err
	}
	req := c.request()
	if q.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}
	if q.SortBy != "" {
		req.SetQueryParam("sortBy", q.SortBy)
	}
	if q.Order != "" {
		req.SetQueryParam("order", q.Order)
	}
	var page api.ContactPage
	if err := c.do(ctx, req, http.MethodGet, "/contacts", &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *APIClient) GetContact(ctx context.Context, id domain.ID) (*domain.Contact, error) {
	var contact domain.Contact
	if err := c.do(ctx, c.request(), http.MethodGet, fmt.Sprintf("/contacts/%s", id), &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// StartWhatsApp asks the server to bring up the tenant's WhatsApp session.
func (c *APIClient) StartWhatsApp(ctx context.Context) error {
	return c.do(ctx, c.request(), http.MethodPost, "/whatsapp/start", nil)
}

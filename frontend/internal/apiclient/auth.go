package apiclient

import (
	"context"
	"net/http"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/validation"
)

// Login exchanges credentials for a session token.
func (c *APIClient) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	body := api.LoginRequest{Email: email, Password: password}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	var out api.LoginResponse
	if err := c.do(ctx, c.request().SetBody(body), http.MethodPost, "/auth/login", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuperLogin exchanges super-admin credentials for a super token.
func (c *APIClient) SuperLogin(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	body := api.LoginRequest{Email: email, Password: password}
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	var out api.LoginResponse
	if err := c.do(ctx, c.request().SetBody(body), http.MethodPost, "/super/login", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me verifies the given token and returns its user. The token is passed
// explicitly because it has not been stored yet while a session is resumed.
func (c *APIClient) Me(ctx context.Context, token string) (*domain.User, error) {
	var user domain.User
	req := c.request().SetAuthToken(token)
	if err := c.do(ctx, req, http.MethodGet, "/auth/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

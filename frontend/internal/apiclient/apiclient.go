package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wavoo-crm/crmchat/shared/api"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

// TokenSource supplies the bearer credentials. Token is the tenant session
// token; SuperToken is the super-admin token used for /super routes.
type TokenSource interface {
	Token() string
	SuperToken() string
}

// APIClient handles all communication with the CRM REST API.
type APIClient struct {
	rest     *resty.Client
	tokens   TokenSource
	basePath string
}

// New creates a client for the API rooted at baseURL (e.g. http://host:5000/api).
func New(baseURL string, timeout time.Duration, tokens TokenSource) *APIClient {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &APIClient{
		rest:   resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		tokens: tokens,
	}
	if u, err := url.Parse(baseURL); err == nil {
		c.basePath = u.Path
	}
	c.rest.OnBeforeRequest(c.attachBearer)
	return c
}

// attachBearer picks the credential by inspecting the request path. A token
// set explicitly on the request wins.
func (c *APIClient) attachBearer(_ *resty.Client, req *resty.Request) error {
	if c.tokens == nil || req.Token != "" {
		return nil
	}
	var token string
	if isSuperRoute(c.routePath(req.URL)) {
		token = c.tokens.SuperToken()
	} else {
		token = c.tokens.Token()
	}
	if token != "" {
		req.SetAuthToken(token)
	}
	return nil
}

// routePath returns the path relative to the API root, whether the request
// was built with a relative path or an absolute URL.
func (c *APIClient) routePath(raw string) string {
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			return strings.TrimPrefix(u.Path, c.basePath)
		}
	}
	return raw
}

func isSuperRoute(path string) bool {
	return strings.HasPrefix(path, "/super")
}

// do is the single helper every endpoint goes through. It unwraps the
// {ok, data, error} envelope into out (which may be nil).
func (c *APIClient) do(ctx context.Context, req *resty.Request, method, path string, out any) error {
	var env api.Envelope
	resp, err := req.SetContext(ctx).
		SetResult(&env).
		SetError(&env).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}

	if resp.IsError() || !env.Ok {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("request failed: %s %s returned %s", method, path, resp.Status())
		}
		status := resp.StatusCode()
		if status < 400 {
			status = http.StatusBadGateway
		}
		return &internal_errors.APIError{Message: msg, StatusCode: status}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

func (c *APIClient) request() *resty.Request {
	return c.rest.R()
}

package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	"github.com/wavoo-crm/crmchat/shared/validation"
)

// ListMessages fetches the full history of a conversation.
func (c *APIClient) ListMessages(ctx context.Context, contactID domain.ID) ([]domain.Message, error) {
	var messages []domain.Message
	req := c.request().SetQueryParam("contactId", contactID.String())
	if err := c.do(ctx, req, http.MethodGet, "/messages", &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// SendMessage posts an outbound message. The created message is returned when
// the server includes it in the response, nil otherwise.
func (c *APIClient) SendMessage(ctx context.Context, body api.SendMessageRequest) (*domain.Message, error) {
	if err := validation.Struct(body); err != nil {
		return nil, err
	}
	var created domain.Message
	if err := c.do(ctx, c.request().SetBody(body), http.MethodPost, "/messages", &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, nil
	}
	return &created, nil
}

// UploadFile sends the binary as multipart field "file".
func (c *APIClient) UploadFile(ctx context.Context, file *domain.PendingFile) (*api.UploadResponse, error) {
	var out api.UploadResponse
	req := c.request().SetMultipartField("file", file.FileName, file.MimeType, bytes.NewReader(file.Data))
	if err := c.do(ctx, req, http.MethodPost, "/messages/upload", &out); err != nil {
		return nil, err
	}
	if out.URL == "" && out.Path == "" {
		return nil, fmt.Errorf("upload of %s returned no media descriptor", file.FileName)
	}
	return &out, nil
}

// DeleteMessage soft-deletes a message for the viewer or for everyone.
func (c *APIClient) DeleteMessage(ctx context.Context, id domain.ID, forEveryone bool) error {
	req := c.request().SetBody(api.DeleteMessageRequest{ForEveryone: forEveryone})
	return c.do(ctx, req, http.MethodPatch, fmt.Sprintf("/messages/%s/delete", id), nil)
}

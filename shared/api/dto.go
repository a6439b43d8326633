package api

import (
	"encoding/json"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

// Envelope is the response wrapper every REST endpoint uses.
type Envelope struct {
	Ok    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Request DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendMessageRequest struct {
	ContactID domain.ID          `json:"contactId" validate:"required"`
	Type      domain.Kind        `json:"type" validate:"required,oneof=text image video audio file"`
	Body      string             `json:"body" validate:"required_if=Type text"`
	Meta      domain.MessageMeta `json:"meta"`
}

type DeleteMessageRequest struct {
	ForEveryone bool `json:"forEveryone"`
}

type ContactsQuery struct {
	Limit  int    `validate:"gte=0"`
	SortBy string `validate:"omitempty,oneof=last_seen name createdAt"`
	Order  string `validate:"omitempty,oneof=asc desc"`
}

// Response DTOs

// LoginResponse carries the token next to the user fields.
type LoginResponse struct {
	Token string `json:"token"`
	domain.User
}

// UnmarshalJSON is needed because the embedded User has its own decoder,
// which would otherwise swallow the token field.
func (l *LoginResponse) UnmarshalJSON(data []byte) error {
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &l.User); err != nil {
		return err
	}
	l.Token = tok.Token
	return nil
}

type UploadResponse struct {
	Path      string `json:"path"`
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

// Meta converts an upload result into the message metadata sent with the file.
func (u UploadResponse) Meta() domain.MessageMeta {
	return domain.MessageMeta{
		Path:      u.Path,
		MediaURL:  u.URL,
		FileName:  u.FileName,
		MediaType: u.MediaType,
	}
}

type ContactPage struct {
	Items []domain.Contact `json:"items"`
}

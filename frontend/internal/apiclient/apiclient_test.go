package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
	"github.com/wavoo-crm/crmchat/shared/validation"
)

type staticTokens struct {
	token, super string
}

func (s staticTokens) Token() string      { return s.token }
func (s staticTokens) SuperToken() string { return s.super }

func writeOK(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(api.Envelope{Ok: true, Data: raw}))
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Envelope{Ok: false, Error: msg})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 5*time.Second, staticTokens{token: "session", super: "super"})
}

func TestBearerSelectionByPath(t *testing.T) {
	seen := map[string]string{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = r.Header.Get("Authorization")
		writeOK(t, w, map[string]any{"token": "t", "id": "u1"})
	})

	_, err := client.SuperLogin(context.Background(), "root@example.com", "pw")
	require.NoError(t, err)
	_, err = client.Login(context.Background(), "agent@example.com", "pw")
	require.NoError(t, err)

	assert.Equal(t, "Bearer super", seen["/api/super/login"])
	assert.Equal(t, "Bearer session", seen["/api/auth/login"])
}

func TestMeUsesExplicitToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer resumed", r.Header.Get("Authorization"))
		writeOK(t, w, map[string]any{"_id": "u9", "tenantId": "t1"})
	})

	user, err := client.Me(context.Background(), "resumed")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("u9"), user.ID)
	assert.Equal(t, domain.ID("t1"), user.TenantID)
}

func TestListMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "c1", r.URL.Query().Get("contactId"))
		writeOK(t, w, []map[string]any{
			{"_id": "m1", "contactId": "c1", "direction": "in", "type": "text", "body": "hi"},
			{"_id": "m2", "contactId": "c1", "direction": "out", "type": "text", "body": "yo", "meta": map[string]any{"ack": 3}},
		})
	})

	msgs, err := client.ListMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.AckRead, msgs[1].Meta.Ack)
}

func TestListMessagesEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(t, w, nil)
	})

	msgs, err := client.ListMessages(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestSendMessage(t *testing.T) {
	t.Run("server error message surfaces", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeErr(w, http.StatusBadRequest, "WhatsApp not ready")
		})

		_, err := client.SendMessage(context.Background(), api.SendMessageRequest{ContactID: "c1", Type: domain.KindText, Body: "hi"})
		var apiErr *internal_errors.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "WhatsApp not ready", apiErr.Message)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("generic fallback without body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.SendMessage(context.Background(), api.SendMessageRequest{ContactID: "c1", Type: domain.KindText, Body: "hi"})
		var apiErr *internal_errors.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Contains(t, apiErr.Message, "request failed")
	})

	t.Run("invalid request never reaches the server", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		_, err := client.SendMessage(context.Background(), api.SendMessageRequest{ContactID: "c1", Type: domain.KindText})
		assert.ErrorIs(t, err, validation.ErrInvalidRequest)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("created message returned", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body api.SendMessageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ref-1", body.Meta.ClientRef)
			writeOK(t, w, map[string]any{"_id": "abc123", "contactId": "c1", "body": body.Body, "type": "text"})
		})

		created, err := client.SendMessage(context.Background(), api.SendMessageRequest{
			ContactID: "c1", Type: domain.KindText, Body: "Hello", Meta: domain.MessageMeta{ClientRef: "ref-1"},
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, domain.ID("abc123"), created.ID)
	})
}

func TestUploadFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "voice.webm", hdr.Filename)
		assert.Equal(t, "audio/webm", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte("abc"), data)
		writeOK(t, w, api.UploadResponse{Path: "u/voice.webm", FileName: "voice.webm", URL: "https://cdn/voice.webm", MediaType: "audio/webm"})
	})

	res, err := client.UploadFile(context.Background(), &domain.PendingFile{FileName: "voice.webm", MimeType: "audio/webm", Data: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/voice.webm", res.URL)
}

func TestDeleteMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/messages/m1/delete", r.URL.Path)
		var body api.DeleteMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.ForEveryone)
		writeOK(t, w, nil)
	})

	require.NoError(t, client.DeleteMessage(context.Background(), "m1", true))
}

func TestListContacts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "last_seen", r.URL.Query().Get("sortBy"))
		writeOK(t, w, map[string]any{"items": []map[string]any{{"_id": "c1", "phone": "+100"}}})
	})

	contacts, err := client.ListContacts(context.Background(), api.ContactsQuery{Limit: 1000, SortBy: "last_seen", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "+100", contacts[0].DisplayName())
}

func TestBackendUnavailable(t *testing.T) {
	client := New("http://127.0.0.1:1/api", time.Second, staticTokens{})
	_, err := client.ListMessages(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

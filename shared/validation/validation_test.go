package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestStruct(t *testing.T) {
	t.Run("valid text send", func(t *testing.T) {
		req := api.SendMessageRequest{ContactID: "c1", Type: domain.KindText, Body: "hi"}
		assert.NoError(t, Struct(req))
	})

	t.Run("text send without body", func(t *testing.T) {
		req := api.SendMessageRequest{ContactID: "c1", Type: domain.KindText}
		err := Struct(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})

	t.Run("media send with empty caption", func(t *testing.T) {
		req := api.SendMessageRequest{ContactID: "c1", Type: domain.KindImage}
		assert.NoError(t, Struct(req))
	})

	t.Run("unknown kind", func(t *testing.T) {
		req := api.SendMessageRequest{ContactID: "c1", Type: "sticker", Body: "x"}
		assert.ErrorIs(t, Struct(req), ErrInvalidRequest)
	})
}

func TestPrepareUpload(t *testing.T) {
	t.Run("detects png", func(t *testing.T) {
		f := &domain.PendingFile{FileName: "photo.bin", Data: pngHeader}
		require.NoError(t, PrepareUpload(f, 1024))
		assert.Equal(t, "image/png", f.MimeType)
	})

	t.Run("keeps explicit type", func(t *testing.T) {
		f := &domain.PendingFile{FileName: "recording.webm", MimeType: "audio/webm", Data: []byte{1, 2, 3}}
		require.NoError(t, PrepareUpload(f, 1024))
		assert.Equal(t, "audio/webm", f.MimeType)
	})

	t.Run("falls back to extension for plain text", func(t *testing.T) {
		f := &domain.PendingFile{FileName: "notes.csv", Data: []byte("a,b\n1,2\n")}
		require.NoError(t, PrepareUpload(f, 1024))
		assert.Equal(t, "text/csv", f.MimeType)
	})

	t.Run("too large", func(t *testing.T) {
		f := &domain.PendingFile{FileName: "big.png", Data: make([]byte, 10)}
		assert.ErrorIs(t, PrepareUpload(f, 5), ErrPayloadTooLarge)
	})

	t.Run("empty", func(t *testing.T) {
		f := &domain.PendingFile{FileName: "empty.txt"}
		assert.ErrorIs(t, PrepareUpload(f, 5), ErrEmptyFile)
	})
}

package validation

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

// PrepareUpload checks the size limit and fills in the MIME type when the
// caller did not set one.
func PrepareUpload(f *domain.PendingFile, maxBytes int64) error {
	if f.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, f.FileName)
	}
	if maxBytes > 0 && f.Size() > maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrPayloadTooLarge, f.FileName, f.Size(), maxBytes)
	}
	if f.MimeType == "" {
		f.MimeType = DetectMimeType(f.FileName, f.Data)
	}
	return nil
}

// DetectMimeType sniffs the content first and falls back to the extension
// when the content is too generic to say anything.
func DetectMimeType(fileName string, data []byte) string {
	detected := mimetype.Detect(data)
	mimeType := detected.String()
	if detected.Is("application/octet-stream") || detected.Is("text/plain") {
		if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
			mimeType = byExt
		}
	}
	// drop parameters such as "; charset=utf-8"
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mediaType
	}
	return mimeType
}

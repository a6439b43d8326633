package errors

import "errors"

// APIError is a failed REST call. Message is the server-provided error text,
// or a generic fallback when the server sent none.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrNotConnected          = errors.New("socket not connected")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrTokenExpired          = errors.New("session token expired")
	ErrEmptyBody             = errors.New("message body is empty")
	ErrSendInFlight          = errors.New("a message is already being sent")
	ErrNoConversation        = errors.New("no active conversation")
	ErrNoAttachment          = errors.New("no file selected")
	ErrUploadFailed          = errors.New("file upload failed")
	ErrStaleConversation     = errors.New("conversation changed while loading")
	ErrMicrophoneUnavailable = errors.New("could not access microphone")
	ErrNotRecording          = errors.New("no recording in progress")
	ErrAlreadyRecording      = errors.New("already recording")
)

// Message extracts the text worth showing to a user.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

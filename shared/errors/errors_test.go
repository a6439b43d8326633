package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("send message: %w", &APIError{Message: "contact not found", StatusCode: 404})
	assert.Equal(t, "contact not found", Message(wrapped))
	assert.Equal(t, "message body is empty", Message(ErrEmptyBody))
}

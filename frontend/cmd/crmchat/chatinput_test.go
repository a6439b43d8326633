package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want chatInput
	}{
		{"blank", "   ", chatInput{action: actNone}},
		{"text", "hello there", chatInput{action: actText, text: "hello there"}},
		{"escaped slash", "//rec is a command", chatInput{action: actText, text: "/rec is a command"}},
		{"file", "/file ./a.png", chatInput{action: actFile, path: "./a.png"}},
		{"file with caption", "/file  ./a.png   look at this", chatInput{action: actFile, path: "./a.png", text: "look at this"}},
		{"record", "/rec", chatInput{action: actRecord}},
		{"stop", "/stop", chatInput{action: actStop}},
		{"cancel", "/cancel", chatInput{action: actCancel}},
		{"delete", "/delete 65f0c1", chatInput{action: actDelete, id: domain.ID("65f0c1")}},
		{"delete for everyone", "/delete 65f0c1 all", chatInput{action: actDelete, id: domain.ID("65f0c1"), forEveryone: true}},
		{"status", "/status", chatInput{action: actStatus}},
		{"quit", "/quit", chatInput{action: actQuit}},
		{"exit", "/exit", chatInput{action: actQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChatLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChatLineErrors(t *testing.T) {
	for _, line := range []string{"/file", "/delete", "/delete 1 some", "/delete 1 all extra"} {
		_, err := parseChatLine(line)
		assert.Error(t, err, line)
	}

	_, err := parseChatLine("/unknown")
	assert.ErrorIs(t, err, errUnknownCommand)
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wavoo-crm/crmchat/shared/domain"
)

type chatAction int

const (
	actNone chatAction = iota
	actText
	actFile
	actRecord
	actStop
	actCancel
	actDelete
	actStatus
	actHelp
	actQuit
)

type chatInput struct {
	action      chatAction
	text        string
	path        string
	id          domain.ID
	forEveryone bool
}

const chatHelp = `Type a message and press Enter to send it. Commands:
  /file <path> [caption]  send a file
  /rec                    start a voice note
  /stop                   stop and send the voice note
  /cancel                 discard the voice note
  /delete <id> [all]      delete a message, "all" deletes it for everyone
  /status                 show the connection status
  /quit                   leave the chat
Start a line with // to send text beginning with a slash.`

var errUnknownCommand = errors.New("unknown command, /help lists them")

func parseChatLine(line string) (chatInput, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return chatInput{action: actNone}, nil
	}
	if strings.HasPrefix(line, "//") {
		return chatInput{action: actText, text: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return chatInput{action: actText, text: line}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/file":
		if len(fields) < 2 {
			return chatInput{}, fmt.Errorf("usage: /file <path> [caption]")
		}
		rest := strings.TrimSpace(line[len("/file"):])
		caption := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		return chatInput{action: actFile, path: fields[1], text: caption}, nil
	case "/rec":
		return chatInput{action: actRecord}, nil
	case "/stop":
		return chatInput{action: actStop}, nil
	case "/cancel":
		return chatInput{action: actCancel}, nil
	case "/delete":
		if len(fields) < 2 || len(fields) > 3 || (len(fields) == 3 && fields[2] != "all") {
			return chatInput{}, fmt.Errorf("usage: /delete <id> [all]")
		}
		return chatInput{action: actDelete, id: domain.ID(fields[1]), forEveryone: len(fields) == 3}, nil
	case "/status":
		return chatInput{action: actStatus}, nil
	case "/help":
		return chatInput{action: actHelp}, nil
	case "/quit", "/exit":
		return chatInput{action: actQuit}, nil
	}
	return chatInput{}, errUnknownCommand
}

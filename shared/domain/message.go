package domain

import (
	"strings"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// KindFromMIME maps a MIME type to the message kind used on the wire.
func KindFromMIME(mediaType string) Kind {
	major, _, _ := strings.Cut(strings.ToLower(mediaType), "/")
	switch major {
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	default:
		return KindFile
	}
}

// Ack is the delivery acknowledgement level reported by WhatsApp.
type Ack int

const (
	AckNone Ack = iota
	AckSent
	AckDelivered
	AckRead
)

func (a Ack) String() string {
	switch a {
	case AckSent:
		return "sent"
	case AckDelivered:
		return "delivered"
	case AckRead:
		return "read"
	default:
		return "none"
	}
}

const TempIDPrefix = "temp-"

type MessageMeta struct {
	Path      string `json:"path,omitempty"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	Ack       Ack    `json:"ack,omitempty"`
	// ClientRef correlates an optimistic send with its server echo.
	ClientRef string `json:"clientRef,omitempty"`
}

type Message struct {
	ID                 ID          `json:"_id"`
	ContactID          ID          `json:"contactId"`
	Direction          Direction   `json:"direction"`
	Type               Kind        `json:"type"`
	Body               string      `json:"body"`
	Meta               MessageMeta `json:"meta"`
	CreatedAt          time.Time   `json:"createdAt"`
	Deleted            bool        `json:"deleted,omitempty"`
	DeletedForEveryone bool        `json:"deletedForEveryone,omitempty"`

	// Pending is client-side only: set until the server confirms the send.
	Pending bool `json:"-"`
}

func (m Message) IsTemp() bool {
	return strings.HasPrefix(string(m.ID), TempIDPrefix)
}

// SameSend reports whether a server message is the confirmation of this
// pending entry. An echoed correlation ref is authoritative; without one the
// body and attachment file name must match.
func (m Message) SameSend(confirmed Message) bool {
	if confirmed.Meta.ClientRef != "" {
		return m.Meta.ClientRef == confirmed.Meta.ClientRef
	}
	return m.Body == confirmed.Body && m.Meta.FileName == confirmed.Meta.FileName
}

// AckUpdate is the payload of a delivery acknowledgement push.
type AckUpdate struct {
	MessageID ID  `json:"messageId"`
	ContactID ID  `json:"contactId"`
	Ack       Ack `json:"ack"`
}

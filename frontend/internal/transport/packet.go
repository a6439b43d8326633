package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Engine.IO v4 packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO v5 packet types, carried inside an engine message.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
	sioBinaryEvent  = '5'
	sioBinaryAck    = '6'
)

var errEmptyFrame = errors.New("empty frame")

type frame struct {
	engine byte
	packet *packet // only for engineMessage
	data   string  // raw payload for non-message engine packets
}

type packet struct {
	kind      byte
	namespace string
	ackID     int // -1 when absent
	data      json.RawMessage
}

// openPayload is the body of the engine OPEN packet.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// liveness is how long the server may stay silent before the connection is
// considered dead: one ping interval plus the ping timeout.
func (o openPayload) liveness() time.Duration {
	interval, timeout := o.PingInterval, o.PingTimeout
	if interval <= 0 {
		interval = 25000
	}
	if timeout <= 0 {
		timeout = 20000
	}
	return time.Duration(interval+timeout) * time.Millisecond
}

func decodeFrame(raw string) (frame, error) {
	if raw == "" {
		return frame{}, errEmptyFrame
	}
	f := frame{engine: raw[0]}
	if f.engine != engineMessage {
		f.data = raw[1:]
		return f, nil
	}
	p, err := decodePacket(raw[1:])
	if err != nil {
		return frame{}, err
	}
	f.packet = p
	return f, nil
}

func decodePacket(s string) (*packet, error) {
	if s == "" {
		return nil, errEmptyFrame
	}
	p := &packet{kind: s[0], namespace: "/", ackID: -1}
	if p.kind < sioConnect || p.kind > sioBinaryAck {
		return nil, fmt.Errorf("unknown packet type %q", p.kind)
	}
	rest := s[1:]

	if p.kind == sioBinaryEvent || p.kind == sioBinaryAck {
		// "<attachments>-" prefix; binary attachments are not supported
		if i := strings.IndexByte(rest, '-'); i >= 0 {
			rest = rest[i+1:]
		}
	}

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.namespace = rest
			rest = ""
		} else {
			p.namespace = rest[:end]
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return nil, fmt.Errorf("bad ack id: %w", err)
		}
		p.ackID = id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return nil, fmt.Errorf("invalid packet payload")
		}
		p.data = json.RawMessage(rest)
	}
	return p, nil
}

// decodeEvent splits an EVENT payload ["name", arg, ...] into the name and
// its first argument. Extra arguments are dropped; no server event uses them.
func decodeEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("event payload is not an array: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event payload has no name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	if len(parts) == 1 {
		return name, nil, nil
	}
	return name, parts[1], nil
}

func encodeConnect(auth any) (string, error) {
	if auth == nil {
		return string([]byte{engineMessage, sioConnect}), nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("failed to encode auth: %w", err)
	}
	return string([]byte{engineMessage, sioConnect}) + string(body), nil
}

func encodeEvent(event string, payload any) (string, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return string([]byte{engineMessage, sioEvent}) + string(body), nil
}

func encodeDisconnect() string {
	return string([]byte{engineMessage, sioDisconnect})
}

// connectError is the body of a CONNECT_ERROR packet.
type connectError struct {
	Message string `json:"message"`
}

func decodeConnectError(data json.RawMessage) string {
	var ce connectError
	if len(data) > 0 && json.Unmarshal(data, &ce) == nil && ce.Message != "" {
		return ce.Message
	}
	var s string
	if len(data) > 0 && json.Unmarshal(data, &s) == nil && s != "" {
		return s
	}
	return "connection rejected"
}

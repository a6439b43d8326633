// Package transport owns the single Socket.IO connection of a session.
//
// A Handle is constructed once at bootstrap and never connects on its own;
// the session calls Connect after login and Disconnect on logout. Feature
// components only see the EventSource side of it.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"

	"github.com/wavoo-crm/crmchat/frontend/internal/metrics"
	"github.com/wavoo-crm/crmchat/shared/api"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
	"github.com/wavoo-crm/crmchat/shared/logger"
)

// Disconnect reasons, as reported in the disconnect event payload.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// QR data URLs for the WhatsApp link are far above the library's 32KiB default.
const readLimit = 4 << 20

var ErrClosed = errors.New("transport closed")

type Options struct {
	URL              string
	Path             string
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	EmitBuffer       int
	HandshakeTimeout time.Duration
}

type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, endpoint string) (wsConn, error)

func dialWebsocket(ctx context.Context, endpoint string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

type dispatch struct {
	event   string
	payload json.RawMessage
}

// run is one Connect..Disconnect cycle.
type run struct {
	ctx        context.Context
	cancel     context.CancelFunc
	credential string
}

type Handle struct {
	opts     Options
	endpoint string
	dial     dialFunc
	bus      *Bus
	log      *slog.Logger

	mu        sync.Mutex
	current   *run
	conn      wsConn
	connected bool
	outbox    []string
	closed    bool

	// Dispatch queue. It is unbounded so that publishing never blocks,
	// including from a handler running on the dispatcher itself.
	queueMu sync.Mutex
	queue   []dispatch
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func New(opts Options) (*Handle, error) {
	return newHandle(opts, dialWebsocket)
}

func newHandle(opts Options, dial dialFunc) (*Handle, error) {
	endpoint, err := socketEndpoint(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 20 * time.Second
	}
	if opts.EmitBuffer < 0 {
		opts.EmitBuffer = 0
	}

	h := &Handle{
		opts:     opts,
		endpoint: endpoint,
		dial:     dial,
		bus:      NewBus(),
		log:      logger.Component("transport"),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go h.dispatchLoop()
	return h, nil
}

// socketEndpoint turns the configured http(s) socket URL into the
// Engine.IO websocket endpoint.
func socketEndpoint(raw, path string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid socket url scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/socket.io"
	}
	u.Path = strings.TrimRight(path, "/") + "/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect starts a connection carrying credential. It is a no-op while a
// previous Connect is still active.
func (h *Handle) Connect(ctx context.Context, credential string) error {
	if credential == "" {
		return internal_errors.ErrNotAuthenticated
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.current != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ctx: runCtx, cancel: cancel, credential: credential}
	h.current = r
	go h.loop(r)
	return nil
}

// Disconnect tears the connection down and drops buffered emits. It does not
// wait for the connection goroutine, so it is safe to call from a handler.
func (h *Handle) Disconnect() {
	h.mu.Lock()
	r, conn, wasConnected := h.current, h.conn, h.connected
	h.current = nil
	h.conn = nil
	h.connected = false
	h.outbox = nil
	h.mu.Unlock()

	if r == nil {
		return
	}
	// The namespace disconnect must go out before the run is cancelled:
	// cancelling the pending read closes the websocket.
	if conn != nil {
		writeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := conn.Write(writeCtx, websocket.MessageText, []byte(encodeDisconnect())); err != nil {
			h.log.Warn("failed to send disconnect", "error", err)
		}
		cancel()
	}
	r.cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	if wasConnected {
		metrics.SocketConnected.Set(0)
		h.publish(api.EventDisconnect, ReasonClientDisconnect)
	}
}

func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *Handle) On(event string, fn Handler) *Subscription {
	return h.bus.On(event, fn)
}

// Emit sends an event now if connected. Otherwise it is buffered until the
// next successful connect; the oldest buffered emit is dropped when full.
func (h *Handle) Emit(event string, payload any) error {
	msg, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	conn, connected := h.conn, h.connected
	if !connected {
		if h.opts.EmitBuffer == 0 {
			h.mu.Unlock()
			return internal_errors.ErrNotConnected
		}
		if len(h.outbox) >= h.opts.EmitBuffer {
			h.log.Warn("emit buffer full, dropping oldest", "event", event)
			h.outbox = h.outbox[1:]
		}
		h.outbox = append(h.outbox, msg)
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close disconnects and stops the dispatcher. The handle cannot be reused.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.Disconnect()
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *Handle) publish(event string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.log.Error("failed to encode pseudo-event", "event", event, "error", err)
			return
		}
		raw = b
	}
	h.enqueue(dispatch{event: event, payload: raw})
}

func (h *Handle) enqueue(d dispatch) {
	h.queueMu.Lock()
	h.queue = append(h.queue, d)
	h.queueMu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) dispatchLoop() {
	for {
		select {
		case <-h.wake:
		case <-h.done:
			return
		}
		h.queueMu.Lock()
		batch := h.queue
		h.queue = nil
		h.queueMu.Unlock()

		for _, d := range batch {
			select {
			case <-h.done:
				return
			default:
			}
			h.bus.Publish(d.event, d.payload)
		}
	}
}

// errStop ends the reconnect loop.
type errStop struct{ reason string }

func (e *errStop) Error() string { return e.reason }

func (h *Handle) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.opts.ReconnectMin
	b.MaxInterval = h.opts.ReconnectMax
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (h *Handle) loop(r *run) {
	b := h.newBackoff()
	for {
		established, err := h.session(r)

		if r.ctx.Err() != nil {
			return
		}
		var stop *errStop
		if errors.As(err, &stop) {
			h.log.Info("not reconnecting", "reason", stop.reason)
			h.mu.Lock()
			if h.current == r {
				h.current = nil
			}
			h.mu.Unlock()
			return
		}
		if established {
			b.Reset()
		}

		wait := b.NextBackOff()
		metrics.SocketReconnectsTotal.Inc()
		h.log.Warn("socket connection lost, reconnecting", "error", err, "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one dial..close cycle. It reports whether the namespace
// connect succeeded.
func (h *Handle) session(r *run) (bool, error) {
	dialCtx, cancel := context.WithTimeout(r.ctx, h.opts.HandshakeTimeout)
	conn, err := h.dial(dialCtx, h.endpoint)
	if err != nil {
		cancel()
		if r.ctx.Err() == nil {
			h.publish(api.EventConnectError, connectError{Message: err.Error()})
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	open, err := h.handshake(dialCtx, conn, r.credential)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		var stop *errStop
		if errors.As(err, &stop) {
			h.publish(api.EventConnectError, connectError{Message: stop.reason})
		} else if r.ctx.Err() == nil {
			h.publish(api.EventConnectError, connectError{Message: err.Error()})
		}
		return false, err
	}

	h.mu.Lock()
	if h.current != r {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return false, r.ctx.Err()
	}
	h.conn = conn
	h.connected = true
	outbox := h.outbox
	h.outbox = nil
	h.mu.Unlock()

	metrics.SocketConnected.Set(1)
	h.log.Info("socket connected", "sid", open.SID)
	h.publish(api.EventConnect, nil)

	for _, msg := range outbox {
		writeCtx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		err := conn.Write(writeCtx, websocket.MessageText, []byte(msg))
		cancel()
		if err != nil {
			h.log.Warn("failed to flush buffered emit", "error", err)
			break
		}
	}

	reason, err := h.readLoop(r, conn, open.liveness())

	h.mu.Lock()
	stillCurrent := h.current == r
	if stillCurrent {
		h.conn = nil
		h.connected = false
	}
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")

	if !stillCurrent {
		// Disconnect already reported it.
		return true, r.ctx.Err()
	}
	metrics.SocketConnected.Set(0)
	h.publish(api.EventDisconnect, reason)
	if reason == ReasonServerDisconnect {
		return true, &errStop{reason: reason}
	}
	return true, err
}

// handshake reads the engine OPEN packet, sends the namespace CONNECT with
// the credential and waits for the server's verdict.
func (h *Handle) handshake(ctx context.Context, conn wsConn, credential string) (openPayload, error) {
	var open openPayload

	f, err := readFrame(ctx, conn)
	if err != nil {
		return open, fmt.Errorf("read open: %w", err)
	}
	if f.engine != engineOpen {
		return open, fmt.Errorf("expected open packet, got %q", f.engine)
	}
	if err := json.Unmarshal([]byte(f.data), &open); err != nil {
		return open, fmt.Errorf("decode open: %w", err)
	}

	connectMsg, err := encodeConnect(map[string]string{"token": credential})
	if err != nil {
		return open, err
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(connectMsg)); err != nil {
		return open, fmt.Errorf("send connect: %w", err)
	}

	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return open, fmt.Errorf("await connect: %w", err)
		}
		switch f.engine {
		case enginePing:
			if err := conn.Write(ctx, websocket.MessageText, []byte{enginePong}); err != nil {
				return open, fmt.Errorf("send pong: %w", err)
			}
			continue
		case engineClose:
			return open, errors.New("server closed during handshake")
		case engineMessage:
		default:
			continue
		}
		switch f.packet.kind {
		case sioConnect:
			return open, nil
		case sioConnectError:
			return open, &errStop{reason: decodeConnectError(f.packet.data)}
		}
	}
}

func (h *Handle) readLoop(r *run, conn wsConn, liveness time.Duration) (string, error) {
	for {
		ctx, cancel := context.WithTimeout(r.ctx, liveness)
		f, err := readFrame(ctx, conn)
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if r.ctx.Err() != nil {
				return ReasonClientDisconnect, r.ctx.Err()
			}
			if isDecodeError(err) {
				h.log.Warn("dropping undecodable frame", "error", err)
				continue
			}
			if timedOut {
				return ReasonPingTimeout, err
			}
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) {
				return ReasonTransportClose, err
			}
			return ReasonTransportError, err
		}

		switch f.engine {
		case enginePing:
			writeCtx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, []byte{enginePong})
			cancel()
			if err != nil {
				return ReasonTransportError, err
			}
		case engineClose:
			return ReasonTransportClose, nil
		case engineMessage:
			switch f.packet.kind {
			case sioDisconnect:
				return ReasonServerDisconnect, nil
			case sioEvent:
				name, payload, err := decodeEvent(f.packet.data)
				if err != nil {
					h.log.Warn("dropping malformed event", "error", err)
					continue
				}
				metrics.SocketEventsTotal.WithLabelValues(name).Inc()
				h.enqueue(dispatch{event: name, payload: payload})
			}
		}
	}
}

// decodeError marks a frame that arrived intact but could not be parsed.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var d *decodeError
	return errors.As(err, &d)
}

func readFrame(ctx context.Context, conn wsConn) (frame, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return frame{}, err
	}
	if typ != websocket.MessageText {
		return frame{}, &decodeError{err: errors.New("binary frames are not supported")}
	}
	f, err := decodeFrame(string(data))
	if err != nil {
		return frame{}, &decodeError{err: err}
	}
	return f, nil
}

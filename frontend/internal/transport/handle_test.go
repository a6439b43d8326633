package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

// socketServer is a minimal Socket.IO v5 server for tests.
type socketServer struct {
	t       *testing.T
	srv     *httptest.Server
	reject  string
	accepts atomic.Int32
	conns   chan *serverConn
}

type serverConn struct {
	ws       *websocket.Conn
	auth     map[string]string
	received chan string
}

func (c *serverConn) send(t *testing.T, msg string) {
	t.Helper()
	require.NoError(t, c.ws.Write(context.Background(), websocket.MessageText, []byte(msg)))
}

func (c *serverConn) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return ""
	}
}

func newSocketServer(t *testing.T) *socketServer {
	s := &socketServer{t: t, conns: make(chan *serverConn, 8)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *socketServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := context.Background()
	s.accepts.Add(1)

	_ = ws.Write(ctx, websocket.MessageText, []byte(`0{"sid":"eio1","pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))
	_, data, err := ws.Read(ctx)
	if err != nil {
		return
	}
	sc := &serverConn{ws: ws, received: make(chan string, 32)}
	if strings.HasPrefix(string(data), "40") {
		_ = json.Unmarshal(data[2:], &sc.auth)
	}
	if s.reject != "" {
		_ = ws.Write(ctx, websocket.MessageText, []byte(`44{"message":"`+s.reject+`"}`))
		_ = ws.Close(websocket.StatusNormalClosure, "")
		return
	}
	_ = ws.Write(ctx, websocket.MessageText, []byte(`40{"sid":"sio1"}`))
	s.conns <- sc

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		sc.received <- string(data)
	}
}

func (s *socketServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func newTestHandle(t *testing.T, url string) *Handle {
	t.Helper()
	h, err := New(Options{
		URL:          url,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
		EmitBuffer:   4,
	})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

// recorder captures events delivered by the dispatcher.
type recorder struct {
	ch chan string
}

func record(h *Handle, events ...string) *recorder {
	r := &recorder{ch: make(chan string, 64)}
	for _, event := range events {
		event := event
		h.On(event, func(payload json.RawMessage) {
			r.ch <- event + " " + string(payload)
		})
	}
	return r
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestSocketEndpoint(t *testing.T) {
	tests := []struct {
		url, path, want string
		wantErr         bool
	}{
		{url: "http://localhost:5000", want: "ws://localhost:5000/socket.io/?EIO=4&transport=websocket"},
		{url: "https://crm.example.com", path: "/rt/", want: "wss://crm.example.com/rt/?EIO=4&transport=websocket"},
		{url: "ftp://host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := socketEndpoint(tt.url, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandle_NoAutoConnect(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, h.Connected())
	assert.Equal(t, int32(0), srv.accepts.Load())

	assert.ErrorIs(t, h.Connect(context.Background(), ""), internal_errors.ErrNotAuthenticated)
}

func TestHandle_ConnectAndReceive(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventConnect, api.EventMessageNew)

	require.NoError(t, h.Connect(context.Background(), "tok-1"))
	require.NoError(t, h.Connect(context.Background(), "tok-1"))

	conn := srv.accept(t)
	assert.Equal(t, "tok-1", conn.auth["token"])
	assert.Equal(t, "connect ", rec.next(t))
	assert.True(t, h.Connected())

	conn.send(t, `42["msg:new",{"_id":"m1","body":"hi"}]`)
	conn.send(t, `42["msg:new",{"_id":"m2","body":"again"}]`)
	assert.Equal(t, `msg:new {"_id":"m1","body":"hi"}`, rec.next(t))
	assert.Equal(t, `msg:new {"_id":"m2","body":"again"}`, rec.next(t))

	conn.send(t, "2")
	assert.Equal(t, "3", conn.next(t))

	assert.Equal(t, int32(1), srv.accepts.Load())
}

func TestHandle_EmitBufferedUntilConnect(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)

	require.NoError(t, h.Emit(api.EventJoin, api.JoinRequest{TenantID: "t1"}))
	require.NoError(t, h.Connect(context.Background(), "tok"))

	conn := srv.accept(t)
	assert.Equal(t, `42["join",{"tenantId":"t1"}]`, conn.next(t))

	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Emit(api.EventRequestStatus, nil))
	assert.Equal(t, `42["wa:get_status"]`, conn.next(t))
}

func TestHandle_EmitBufferDropsOldest(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)

	for _, tenant := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		require.NoError(t, h.Emit(api.EventJoin, api.JoinRequest{TenantID: domain.ID(tenant)}))
	}
	require.NoError(t, h.Connect(context.Background(), "tok"))

	conn := srv.accept(t)
	for _, tenant := range []string{"t3", "t4", "t5", "t6"} {
		assert.Equal(t, `42["join",{"tenantId":"`+tenant+`"}]`, conn.next(t))
	}
}

func TestHandle_EmitWithoutBufferFails(t *testing.T) {
	srv := newSocketServer(t)
	h, err := New(Options{URL: srv.srv.URL})
	require.NoError(t, err)
	defer h.Close()

	assert.ErrorIs(t, h.Emit(api.EventJoin, api.JoinRequest{TenantID: "t1"}), internal_errors.ErrNotConnected)
}

func TestHandle_ConnectErrorStopsReconnect(t *testing.T) {
	srv := newSocketServer(t)
	srv.reject = "invalid token"
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventConnectError)

	require.NoError(t, h.Connect(context.Background(), "bad"))
	assert.Equal(t, `connect_error {"message":"invalid token"}`, rec.next(t))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepts.Load())
	assert.False(t, h.Connected())
}

func TestHandle_ReconnectsAfterTransportClose(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventConnect, api.EventDisconnect)

	require.NoError(t, h.Connect(context.Background(), "tok"))
	first := srv.accept(t)
	assert.Equal(t, "connect ", rec.next(t))

	require.NoError(t, first.ws.Close(websocket.StatusGoingAway, "restart"))
	assert.Equal(t, `disconnect "transport close"`, rec.next(t))

	second := srv.accept(t)
	assert.Equal(t, "tok", second.auth["token"])
	assert.Equal(t, "connect ", rec.next(t))
}

func TestHandle_ServerDisconnectStopsReconnect(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventDisconnect)

	require.NoError(t, h.Connect(context.Background(), "tok"))
	conn := srv.accept(t)
	conn.send(t, "41")

	assert.Equal(t, `disconnect "io server disconnect"`, rec.next(t))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepts.Load())
}

func TestHandle_Disconnect(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventConnect, api.EventDisconnect)

	h.Disconnect()

	require.NoError(t, h.Connect(context.Background(), "tok"))
	conn := srv.accept(t)
	assert.Equal(t, "connect ", rec.next(t))

	h.Disconnect()
	h.Disconnect()
	assert.False(t, h.Connected())
	assert.Equal(t, `disconnect "io client disconnect"`, rec.next(t))
	assert.Equal(t, "41", conn.next(t))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepts.Load())
}

func TestHandle_DisconnectFromHandler(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventDisconnect)
	h.On(api.EventForceLogout, func(json.RawMessage) { h.Disconnect() })

	require.NoError(t, h.Connect(context.Background(), "tok"))
	conn := srv.accept(t)
	conn.send(t, `42["force_logout",{"message":"session revoked"}]`)

	assert.Equal(t, `disconnect "io client disconnect"`, rec.next(t))
	assert.False(t, h.Connected())
}

func TestHandle_DisconnectFromHandlerWithBacklog(t *testing.T) {
	srv := newSocketServer(t)
	h := newTestHandle(t, srv.srv.URL)
	rec := record(h, api.EventDisconnect)

	var ticks atomic.Int32
	h.On("tick", func(json.RawMessage) { ticks.Add(1) })
	returned := make(chan struct{})
	h.On("kick", func(json.RawMessage) {
		// Let the reader queue everything behind this handler first.
		time.Sleep(300 * time.Millisecond)
		h.Disconnect()
		close(returned)
	})

	require.NoError(t, h.Connect(context.Background(), "tok"))
	conn := srv.accept(t)
	conn.send(t, `42["kick",{}]`)
	for i := 0; i < 400; i++ {
		conn.send(t, `42["tick",{}]`)
	}

	select {
	case <-returned:
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect called from a handler did not return")
	}
	assert.Equal(t, `disconnect "io client disconnect"`, rec.next(t))
	// The dispatcher keeps delivering the backlog after the handler returns.
	assert.Eventually(t, func() bool { return ticks.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough of the realtime protocol to drive a Client.
type fakeServer struct {
	t         *testing.T
	url       string
	received  chan map[string]any
	conns     chan *serverConn
	noSession bool
	dropEarly bool
	rejects   atomic.Int32
}

type serverConn struct {
	t    *testing.T
	mu   sync.Mutex
	conn *gorilla.Conn
}

func (s *serverConn) send(v any) {
	s.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(s.t, err)
	s.sendRaw(data)
}

func (s *serverConn) sendRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(gorilla.TextMessage, data)
}

type serverOption func(*fakeServer)

// withoutSession never sends session.created.
func withoutSession() serverOption {
	return func(s *fakeServer) { s.noSession = true }
}

// dropBeforeSession closes every connection right after the handshake.
func dropBeforeSession() serverOption {
	return func(s *fakeServer) { s.dropEarly = true }
}

// rejectFirst answers the first n handshakes with 503.
func rejectFirst(n int) serverOption {
	return func(s *fakeServer) { s.rejects.Store(int32(n)) }
}

func newFakeServer(t *testing.T, opts ...serverOption) *fakeServer {
	t.Helper()
	s := &fakeServer{
		t:        t,
		received: make(chan map[string]any, 1000),
		conns:    make(chan *serverConn, 10),
	}
	for _, opt := range opts {
		opt(s)
	}

	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rejects.Add(-1) >= 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if s.dropEarly {
			return
		}

		sc := &serverConn{t: t, conn: conn}
		if !s.noSession {
			sc.send(map[string]any{
				"type":     "session.created",
				"event_id": "event_1",
				"session":  map[string]any{"id": "sess_1", "object": "realtime.session"},
			})
		}
		s.conns <- sc

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err == nil {
				s.received <- m
			}
		}
	}))
	t.Cleanup(srv.Close)

	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return s
}

func (s *fakeServer) conn() *serverConn {
	s.t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		s.t.Fatal("no connection")
		return nil
	}
}

func (s *fakeServer) next() map[string]any {
	s.t.Helper()
	select {
	case m := <-s.received:
		return m
	case <-time.After(2 * time.Second):
		s.t.Fatal("no client event")
		return nil
	}
}

// waitType skips client events until one of type typ arrives.
func (s *fakeServer) waitType(typ string) map[string]any {
	s.t.Helper()
	for {
		m := s.next()
		if m["type"] == typ {
			return m
		}
	}
}

// expectNone asserts that no client event arrives within d.
func (s *fakeServer) expectNone(d time.Duration) {
	s.t.Helper()
	select {
	case m := <-s.received:
		s.t.Fatalf("unexpected client event: %v", m)
	case <-time.After(d):
	}
}

func (s *fakeServer) client(opts ...ClientOption) *Client {
	s.t.Helper()
	c := New(append([]ClientOption{
		WithKey("test"),
		WithURL(s.url),
		WithSessionTimeout(2 * time.Second),
		WithServices(NewServices(2, time.Millisecond, nil)),
	}, opts...)...)
	s.t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func itemCreated(item map[string]any) map[string]any {
	return map[string]any{"type": "conversation.item.created", "event_id": "event_ic", "item": item}
}

func delta(typ, itemID, d string) map[string]any {
	return map[string]any{"type": typ, "event_id": "event_d", "response_id": "resp_1", "item_id": itemID, "delta": d}
}

func itemDone(item map[string]any) map[string]any {
	return map[string]any{"type": "response.output_item.done", "event_id": "event_done", "response_id": "resp_1", "item": item}
}

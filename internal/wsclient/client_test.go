package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthview/internal/logger"
	"depthview/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) ApplySnapshot(snap model.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := "snapshot"
	if len(snap.Bids) > 0 {
		ev += " " + snap.Bids[0].Price.String()
	}
	s.events = append(s.events, ev)
}

func (s *recordingSink) SetStatus(st model.ConnectivityStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, st.String())
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type countingRecorder struct {
	mu         sync.Mutex
	drops      map[string]int
	snapshots  int
	reconnects int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{drops: map[string]int{}}
}

func (r *countingRecorder) RecordSnapshot(model.BookSnapshot) {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordDrop(reason string) {
	r.mu.Lock()
	r.drops[reason]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordReconnect() {
	r.mu.Lock()
	r.reconnects++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordStatus(model.ConnectivityStatus) {}

func (r *countingRecorder) Reconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconnects
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_ReconnectsAndKeepsLastSnapshot(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		if conns.Add(1) == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"bids":[{"price":100,"qty":1}],"asks":[{"price":101,"qty":2}]}`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"bids":[{"price":1}],"asks":[]}`))
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"asks":[]}`))
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	rec := newCountingRecorder()
	c := New(Config{
		URL:            wsURL(srv),
		BackoffInitial: 20 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
	}, sink, rec, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return conns.Load() >= 2 && len(sink.Events()) >= 4 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"connected", "snapshot 100", "disconnected", "connected"}, sink.Events()[:4])

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	events := sink.Events()
	assert.Equal(t, "disconnected", events[len(events)-1])
	for _, ev := range events[4:] {
		assert.NotContains(t, ev, "snapshot", "only one valid snapshot was sent")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.snapshots)
	assert.Equal(t, 1, rec.drops[ReasonInvalidJSON])
	assert.Equal(t, 1, rec.drops[ReasonInvalidLevel])
	assert.Equal(t, 1, rec.drops[ReasonMissingSide])
	assert.GreaterOrEqual(t, rec.reconnects, 1)
}

func TestClient_UnreachableFeedRetriesUntilCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	sink := &recordingSink{}
	rec := newCountingRecorder()
	c := New(Config{
		URL:              url,
		HandshakeTimeout: 200 * time.Millisecond,
		BackoffInitial:   5 * time.Millisecond,
		BackoffMax:       10 * time.Millisecond,
	}, sink, rec, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.Reconnects() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NotContains(t, sink.Events(), "connected")
	assert.Equal(t, "disconnected", sink.Events()[len(sink.Events())-1])
}

func TestClient_CancelClosesOpenSession(t *testing.T) {
	serverGone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer close(serverGone)
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	c := New(Config{URL: wsURL(srv)}, sink, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		ev := sink.Events()
		return len(ev) > 0 && ev[0] == "connected"
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-serverGone:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the session was not closed")
	}
	assert.Equal(t, []string{"connected", "disconnected"}, sink.Events())
}

func TestReadLoop_StopsApplyingAfterCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"bids":[{"price":100,"qty":1}],"asks":[]}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	sink := &recordingSink{}
	rec := newCountingRecorder()
	c := New(Config{URL: wsURL(srv)}, sink, rec, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered, err := c.readLoop(ctx, conn, logger.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, delivered)
	assert.Empty(t, sink.Events())
	assert.Zero(t, rec.snapshots)
}

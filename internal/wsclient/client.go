// Package wsclient maintains the websocket subscription to the book feed and
// pushes every well-formed snapshot into a Sink.
package wsclient

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"depthview/internal/logger"
	"depthview/internal/model"
)

// Sink receives snapshots and connectivity transitions. *book.Store satisfies it.
type Sink interface {
	ApplySnapshot(model.BookSnapshot)
	SetStatus(model.ConnectivityStatus)
}

// Recorder is the subset of metrics the feed reports.
type Recorder interface {
	RecordSnapshot(model.BookSnapshot)
	RecordDrop(reason string)
	RecordReconnect()
	RecordStatus(model.ConnectivityStatus)
}

type nopRecorder struct{}

func (nopRecorder) RecordSnapshot(model.BookSnapshot)     {}
func (nopRecorder) RecordDrop(string)                     {}
func (nopRecorder) RecordReconnect()                      {}
func (nopRecorder) RecordStatus(model.ConnectivityStatus) {}

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	Header           http.Header
}

type Client struct {
	cfg     Config
	sink    Sink
	rec     Recorder
	log     *logger.Logger
	dialer  *websocket.Dialer
	backoff *Backoff
	now     func() time.Time
}

// New builds a client. rec may be nil.
func New(cfg Config, sink Sink, rec Recorder, log *logger.Logger) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Client{
		cfg:  cfg,
		sink: sink,
		rec:  rec,
		log:  log,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		backoff: NewBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		now:     time.Now,
	}
}

// Run dials, reads and redials until ctx is cancelled. It always leaves the
// sink Disconnected and never calls ApplySnapshot after returning.
func (c *Client) Run(ctx context.Context) error {
	defer c.setStatus(model.Disconnected)

	for {
		delivered, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setStatus(model.Disconnected)

		// a session that produced data counts as healthy
		if delivered > 0 {
			c.backoff.Reset()
		}
		wait := c.backoff.Next()
		c.rec.RecordReconnect()
		c.log.Warn("feed closed; reconnecting",
			logger.NewField("error", errString(err)),
			logger.NewField("delivered", delivered),
			logger.NewField("retry_in", wait.String()),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one connection attempt end to end and reports how many
// snapshots it delivered.
func (c *Client) session(ctx context.Context) (int, error) {
	log := c.log.WithFields(logger.NewField("session", uuid.NewString()))

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, c.cfg.Header)
	cancel()
	if err != nil {
		return 0, errors.Wrapf(err, "dial %s", c.cfg.URL)
	}
	defer conn.Close()

	c.setStatus(model.Connected)
	log.Info("feed connected", logger.NewField("url", c.cfg.URL))

	done := make(chan struct{})
	defer close(done)
	go closeOnCancel(ctx, conn, done)
	go pingLoop(conn, done, log)

	return c.readLoop(ctx, conn, log)
}

func (c *Client) setStatus(s model.ConnectivityStatus) {
	c.sink.SetStatus(s)
	c.rec.RecordStatus(s)
}

func closeOnCancel(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	case <-done:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

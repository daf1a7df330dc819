package wsclient

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"depthview/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// readLoop decodes frames until the connection fails. Malformed frames are
// counted and skipped; the store keeps its previous snapshot. Once ctx is done
// no further frame reaches the sink.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, log *logger.Logger) (int, error) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	delivered := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return delivered, errors.Wrap(err, "read")
		}
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		snap, err := Decode(raw)
		if err != nil {
			reason := DropReason(err)
			c.rec.RecordDrop(reason)
			log.Debug("dropping feed message", logger.NewField("reason", reason), logger.NewField("error", err.Error()))
			continue
		}
		snap.ReceivedAt = c.now()
		c.sink.ApplySnapshot(snap)
		c.rec.RecordSnapshot(snap)
		delivered++
	}
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("ping failed", logger.NewField("error", err.Error()))
				return
			}
		}
	}
}

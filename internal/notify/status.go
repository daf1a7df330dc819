package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"depthview/internal/book"
	"depthview/internal/logger"
	"depthview/internal/model"
)

const sendTimeout = 5 * time.Second

// StatusWatcher sends one message per feed connectivity transition.
type StatusWatcher struct {
	store      *book.Store
	notifier   Notifier
	instrument string
	log        *logger.Logger
}

func NewStatusWatcher(store *book.Store, n Notifier, instrument string, log *logger.Logger) *StatusWatcher {
	return &StatusWatcher{store: store, notifier: n, instrument: instrument, log: log}
}

func (w *StatusWatcher) Run(ctx context.Context) error {
	mb, cancel := w.store.Subscribe()
	defer cancel()

	last := w.store.Status()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.C():
		}

		st, ok := mb.Take()
		if !ok || st.Status == last {
			continue
		}
		last = st.Status

		sendCtx, cancelSend := context.WithTimeout(ctx, sendTimeout)
		if err := w.notifier.Send(sendCtx, statusMessage(w.instrument, st.Status)); err != nil {
			w.log.Error(err, logger.NewField("status", st.Status.String()))
		}
		cancelSend()
	}
}

// statusMessage renders a transition. Recoveries are delivered silently.
func statusMessage(instrument string, st model.ConnectivityStatus) Message {
	icon := "🔴"
	if st == model.Connected {
		icon = "🟢"
	}
	return Message{
		Text:   fmt.Sprintf("%s <b>%s</b> feed %s", icon, html.EscapeString(instrument), st),
		Silent: st == model.Connected,
	}
}

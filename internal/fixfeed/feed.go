// Package fixfeed is the FIX 4.4 alternative to the websocket feed. It
// subscribes to full-refresh market data for one symbol and applies every
// 35=W message as a whole-book snapshot.
package fixfeed

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/marketdatarequest"
	"github.com/quickfixgo/fix44/marketdatasnapshotfullrefresh"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/store/file"

	"depthview/internal/logger"
	"depthview/internal/model"
)

const (
	msgTypeLogon        = "A"
	msgTypeFullRefresh  = "W"
	ReasonInvalidFIXMsg = "invalid_fix_message"
)

type Sink interface {
	ApplySnapshot(model.BookSnapshot)
	SetStatus(model.ConnectivityStatus)
}

type Recorder interface {
	RecordSnapshot(model.BookSnapshot)
	RecordDrop(reason string)
	RecordStatus(model.ConnectivityStatus)
}

type nopRecorder struct{}

func (nopRecorder) RecordSnapshot(model.BookSnapshot)     {}
func (nopRecorder) RecordDrop(string)                     {}
func (nopRecorder) RecordStatus(model.ConnectivityStatus) {}

type Config struct {
	SettingsPath string
	Symbol       string
	Username     string
	Password     string
}

// Feed implements quickfix.Application.
type Feed struct {
	cfg     Config
	sink    Sink
	rec     Recorder
	log     *logger.Logger
	now     func() time.Time
	stopped atomic.Bool
}

func New(cfg Config, sink Sink, rec Recorder, log *logger.Logger) *Feed {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Feed{cfg: cfg, sink: sink, rec: rec, log: log, now: time.Now}
}

// Run starts the initiator and blocks until ctx is done. quickfix handles
// reconnects itself according to the session settings.
func (f *Feed) Run(ctx context.Context) error {
	settings, err := loadSettings(f.cfg.SettingsPath)
	if err != nil {
		return err
	}

	initiator, err := quickfix.NewInitiator(f, file.NewStoreFactory(settings), settings, quickfix.NewNullLogFactory())
	if err != nil {
		return errors.Wrap(err, "create fix initiator")
	}
	if err := initiator.Start(); err != nil {
		return errors.Wrap(err, "start fix initiator")
	}
	f.log.Info("fix initiator started", logger.NewField("symbol", f.cfg.Symbol))

	<-ctx.Done()
	f.stopped.Store(true)
	initiator.Stop()
	f.setStatus(model.Disconnected)
	return ctx.Err()
}

func loadSettings(path string) (*quickfix.Settings, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	fh, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Wrap(err, "open fix settings")
	}
	defer fh.Close()

	settings, err := quickfix.ParseSettings(fh)
	if err != nil {
		return nil, errors.Wrap(err, "parse fix settings")
	}
	return settings, nil
}

func (f *Feed) OnCreate(quickfix.SessionID) {}

func (f *Feed) OnLogon(id quickfix.SessionID) {
	f.setStatus(model.Connected)
	f.log.Info("fix logon", logger.NewField("session", id.String()))

	if err := quickfix.SendToTarget(f.marketDataRequest(), id); err != nil {
		f.log.Error(errors.Wrap(err, "send market data request"), logger.NewField("session", id.String()))
	}
}

func (f *Feed) OnLogout(id quickfix.SessionID) {
	f.setStatus(model.Disconnected)
	f.log.Warn("fix logout", logger.NewField("session", id.String()))
}

func (f *Feed) ToApp(*quickfix.Message, quickfix.SessionID) error { return nil }

// ToAdmin attaches credentials to outgoing logons when configured.
func (f *Feed) ToAdmin(msg *quickfix.Message, _ quickfix.SessionID) {
	msgType, _ := msg.Header.GetString(quickfix.Tag(35))
	if msgType != msgTypeLogon || f.cfg.Username == "" {
		return
	}
	msg.Body.Set(field.NewUsername(f.cfg.Username))
	msg.Body.Set(field.NewPassword(f.cfg.Password))
}

func (f *Feed) FromAdmin(*quickfix.Message, quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

func (f *Feed) FromApp(msg *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	if f.stopped.Load() {
		return nil
	}
	msgType, _ := msg.Header.GetString(quickfix.Tag(35))
	if msgType != msgTypeFullRefresh {
		return nil
	}

	snap, err := parseFullRefresh(msg)
	if err != nil {
		f.rec.RecordDrop(ReasonInvalidFIXMsg)
		f.log.Debug("dropping market data message", logger.NewField("error", err.Error()))
		return nil
	}
	snap.ReceivedAt = f.now()
	f.sink.ApplySnapshot(snap)
	f.rec.RecordSnapshot(snap)
	return nil
}

func (f *Feed) setStatus(s model.ConnectivityStatus) {
	f.sink.SetStatus(s)
	f.rec.RecordStatus(s)
}

// marketDataRequest subscribes to the full book (depth 0) for one symbol,
// delivered as full refreshes.
func (f *Feed) marketDataRequest() marketdatarequest.MarketDataRequest {
	req := marketdatarequest.New(
		field.NewMDReqID(uuid.NewString()),
		field.NewSubscriptionRequestType(enum.SubscriptionRequestType_SNAPSHOT_PLUS_UPDATES),
		field.NewMarketDepth(0),
	)
	req.SetMDUpdateType(enum.MDUpdateType_FULL_REFRESH)

	types := marketdatarequest.NewNoMDEntryTypesRepeatingGroup()
	types.Add().SetMDEntryType(enum.MDEntryType_BID)
	types.Add().SetMDEntryType(enum.MDEntryType_OFFER)
	req.SetNoMDEntryTypes(types)

	syms := marketdatarequest.NewNoRelatedSymRepeatingGroup()
	syms.Add().SetSymbol(f.cfg.Symbol)
	req.SetNoRelatedSym(syms)
	return req
}

// parseFullRefresh keeps entries in message order. Entries without price or
// size are skipped, as are entry types other than bid and offer.
func parseFullRefresh(msg *quickfix.Message) (model.BookSnapshot, error) {
	w := marketdatasnapshotfullrefresh.FromMessage(msg)
	snap := model.EmptySnapshot()
	if !w.HasNoMDEntries() {
		return snap, nil
	}

	entries, rerr := w.GetNoMDEntries()
	if rerr != nil {
		return model.BookSnapshot{}, errors.Wrap(rerr, "read NoMDEntries")
	}
	for i := 0; i < entries.Len(); i++ {
		e := entries.Get(i)
		if !e.HasMDEntryPx() || !e.HasMDEntrySize() {
			continue
		}
		typ, err := e.GetMDEntryType()
		if err != nil {
			continue
		}
		px, err := e.GetMDEntryPx()
		if err != nil {
			continue
		}
		size, err := e.GetMDEntrySize()
		if err != nil {
			continue
		}

		lvl := model.PriceLevel{Price: px, Qty: size}
		switch typ {
		case enum.MDEntryType_BID:
			snap.Bids = append(snap.Bids, lvl)
		case enum.MDEntryType_OFFER:
			snap.Asks = append(snap.Asks, lvl)
		}
	}
	return snap, nil
}

var _ quickfix.Application = (*Feed)(nil)

// Package book holds the latest order-book snapshot and connectivity status.
package book

import (
	"sync"
	"sync/atomic"

	"depthview/internal/model"
)

// State is an immutable view of the store at one sequence number.
type State struct {
	Seq      uint64
	Snapshot model.BookSnapshot
	Status   model.ConnectivityStatus
}

// Store keeps exactly one current snapshot and status. Writes swap a pointer
// to a fresh State, so readers never see old bids next to new asks.
type Store struct {
	cur atomic.Pointer[State]

	// serializes writers so Seq and delivery order stay monotonic; readers
	// never take it
	writeMu sync.Mutex

	subMu sync.RWMutex
	subs  map[uint64]*Mailbox[State]
	next  uint64
}

func NewStore() *Store {
	s := &Store{subs: make(map[uint64]*Mailbox[State])}
	s.cur.Store(&State{Snapshot: model.EmptySnapshot(), Status: model.Disconnected})
	return s
}

// State returns the current state.
func (s *Store) State() State {
	return *s.cur.Load()
}

func (s *Store) Snapshot() model.BookSnapshot {
	return s.cur.Load().Snapshot
}

func (s *Store) Status() model.ConnectivityStatus {
	return s.cur.Load().Status
}

// ApplySnapshot replaces the stored snapshot wholesale. Nil sides are
// normalized to empty slices.
func (s *Store) ApplySnapshot(snap model.BookSnapshot) {
	if snap.Bids == nil {
		snap.Bids = []model.PriceLevel{}
	}
	if snap.Asks == nil {
		snap.Asks = []model.PriceLevel{}
	}

	s.writeMu.Lock()
	prev := s.cur.Load()
	next := &State{Seq: prev.Seq + 1, Snapshot: snap, Status: prev.Status}
	s.cur.Store(next)
	s.notify(*next)
	s.writeMu.Unlock()
}

// SetStatus changes connectivity without touching the snapshot. Repeating
// the current status is a no-op.
func (s *Store) SetStatus(st model.ConnectivityStatus) {
	s.writeMu.Lock()
	prev := s.cur.Load()
	if prev.Status == st {
		s.writeMu.Unlock()
		return
	}
	next := &State{Seq: prev.Seq + 1, Snapshot: prev.Snapshot, Status: st}
	s.cur.Store(next)
	s.notify(*next)
	s.writeMu.Unlock()
}

// Subscribe registers a latest-wins mailbox that receives every State written
// after this call. cancel unregisters and closes it.
func (s *Store) Subscribe() (*Mailbox[State], func()) {
	mb := NewMailbox[State]()

	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = mb
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			mb.Close()
		})
	}
	return mb, cancel
}

func (s *Store) notify(st State) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, mb := range s.subs {
		mb.Put(st)
	}
}

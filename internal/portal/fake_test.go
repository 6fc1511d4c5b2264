package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bnema/eiscreen/internal/event"
)

// fakeBroker answers requests by posting the configured results.
type fakeBroker struct {
	mu    sync.Mutex
	calls []string

	msgs chan Message
	// silent brokers never answer requests.
	silent bool

	createErr  error
	startErr   error
	connectErr error
	connectFD  int
	zoneSet    uint32
	zones      []Zone
	failed     []uint32

	submitted [][]Barrier
	enables   int

	// barrierGate, when set, holds BarriersApplied until it is closed.
	barrierGate chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{msgs: make(chan Message, 64), connectFD: 42, zoneSet: 1}
}

func (f *fakeBroker) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBroker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBroker) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeBroker) Submitted() [][]Barrier {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]Barrier(nil), f.submitted...)
}

func (f *fakeBroker) send(m Message) { f.msgs <- m }

func (f *fakeBroker) reply(m Message) {
	if !f.silent {
		f.send(m)
	}
}

func (f *fakeBroker) Messages() <-chan Message { return f.msgs }

func (f *fakeBroker) CreateSession(ctx context.Context, v Variant) error {
	f.record("CreateSession")
	f.reply(SessionCreated{Err: f.createErr})
	return nil
}

func (f *fakeBroker) Start(ctx context.Context) error {
	f.record("Start")
	f.reply(SessionStarted{Err: f.startErr})
	return nil
}

func (f *fakeBroker) ConnectToEIS(ctx context.Context) (int, error) {
	f.record("ConnectToEIS")
	if f.connectErr != nil {
		return -1, f.connectErr
	}
	return f.connectFD, nil
}

func (f *fakeBroker) GetZones(ctx context.Context) error {
	f.record("GetZones")
	f.mu.Lock()
	m := ZonesUpdated{ZoneSet: f.zoneSet, Zones: f.zones}
	f.mu.Unlock()
	f.reply(m)
	return nil
}

func (f *fakeBroker) SetPointerBarriers(ctx context.Context, zoneSet uint32, barriers []Barrier) error {
	f.record("SetPointerBarriers")
	f.mu.Lock()
	f.submitted = append(f.submitted, append([]Barrier(nil), barriers...))
	failed := f.failed
	gate := f.barrierGate
	f.mu.Unlock()
	if gate != nil {
		go func() {
			<-gate
			f.reply(BarriersApplied{Failed: failed})
		}()
		return nil
	}
	f.reply(BarriersApplied{Failed: failed})
	return nil
}

func (f *fakeBroker) Enable(ctx context.Context) error {
	f.record("Enable")
	f.mu.Lock()
	f.enables++
	f.mu.Unlock()
	return nil
}

func (f *fakeBroker) Disable(ctx context.Context) error {
	f.record("Disable")
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context) error {
	f.record("Subscribe")
	return nil
}

func (f *fakeBroker) Unsubscribe()        { f.record("Unsubscribe") }
func (f *fakeBroker) CloseSession() error { f.record("CloseSession"); return nil }
func (f *fakeBroker) ReleaseBarriers()    { f.record("ReleaseBarriers") }
func (f *fakeBroker) Close() error        { f.record("Close"); return nil }

// recordingSink collects events posted by the negotiator.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) AddEvent(e event.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *recordingSink) Count(t event.Type) int {
	n := 0
	for _, e := range s.Events() {
		if e.Type == t {
			n++
		}
	}
	return n
}

const waitFor = 2 * time.Second

func waitState(t *testing.T, n *Negotiator, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return n.State() == want }, waitFor, time.Millisecond,
		"state stuck at %s, want %s", n.State(), want)
}

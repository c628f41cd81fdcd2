package gameplay

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"github.com/stretchr/testify/require"
)

type event struct {
	name    string
	payload any
}

type fakeConn struct {
	id     Identity
	events chan event

	mu           sync.Mutex
	disconnected bool
}

func newFakeConn(id Identity) *fakeConn {
	return &fakeConn{id: id, events: make(chan event, 256)}
}

func (c *fakeConn) Identity() Identity { return c.id }

func (c *fakeConn) Profile() arenadto.PlayerProfile {
	return arenadto.PlayerProfile{ID: int64(c.id), Role: "user"}
}

func (c *fakeConn) Emit(name string, payload any) {
	c.events <- event{name: name, payload: payload}
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

// next waits for the next event named name, skipping others.
func (c *fakeConn) next(t *testing.T, name string) any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.name == name {
				return ev.payload
			}
		case <-deadline:
			t.Fatalf("conn %d: timed out waiting for %s", c.id, name)
			return nil
		}
	}
}

// quiet asserts that no event arrives for d.
func (c *fakeConn) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-c.events:
		t.Fatalf("conn %d: unexpected event %s %+v", c.id, ev.name, ev.payload)
	case <-time.After(d):
	}
}

func (c *fakeConn) drain() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeTicker) fire() { f.ch <- time.Now() }

// tickers hands out fake tickers and records them in creation order.
type tickers struct {
	created chan *fakeTicker
}

func newTickers() *tickers { return &tickers{created: make(chan *fakeTicker, 64)} }

func (ts *tickers) factory(time.Duration) Ticker {
	ft := &fakeTicker{ch: make(chan time.Time, 8)}
	ts.created <- ft
	return ft
}

func (ts *tickers) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case ft := <-ts.created:
		return ft
	case <-time.After(2 * time.Second):
		t.Fatalf("no ticker created")
		return nil
	}
}

func (ts *tickers) none(t *testing.T) {
	t.Helper()
	select {
	case <-ts.created:
		t.Fatalf("unexpected ticker created")
	default:
	}
}

type recordingObserver struct {
	created chan RoomInfo
	closed  chan Outcome
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{created: make(chan RoomInfo, 16), closed: make(chan Outcome, 16)}
}

func (o *recordingObserver) RoomCreated(info RoomInfo) { o.created <- info }
func (o *recordingObserver) RoomClosed(out Outcome)    { o.closed <- out }

func waitOutcome(t *testing.T, o *recordingObserver) Outcome {
	t.Helper()
	select {
	case out := <-o.closed:
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome observed")
		return Outcome{}
	}
}

type fixture struct {
	reg     *Registry
	tickers *tickers
	obs     *recordingObserver
	white   *fakeConn
	black   *fakeConn
	roomID  string
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	ts := newTickers()
	obs := newRecordingObserver()
	reg := NewRegistry(Options{NewTicker: ts.factory, Observers: []Observer{obs}})
	t.Cleanup(reg.Close)

	white, black := newFakeConn(1), newFakeConn(2)
	id, err := reg.CreateSession(white, black, settings)
	require.NoError(t, err)
	return &fixture{reg: reg, tickers: ts, obs: obs, white: white, black: black, roomID: id}
}

func gameOver(t *testing.T, c *fakeConn) arenadto.GameOver {
	t.Helper()
	msg, ok := c.next(t, arenadto.EventGameOver).(arenadto.GameOver)
	require.True(t, ok)
	return msg
}

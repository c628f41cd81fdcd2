package gameplay

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"go.uber.org/zap"
)

// Options configures a Registry. Zero values select the chess engine, a one second tick and
// real tickers.
type Options struct {
	Engine    rules.Engine
	Tick      time.Duration
	NewTicker TickerFunc
	NewID     func() string
	Observers []Observer
}

// Registry owns every live Session, keyed by room id.
// Lock order: a session may call into the registry while holding its own lock; the registry
// never calls into a session while holding mu.
type Registry struct {
	engine    rules.Engine
	tick      time.Duration
	newTicker TickerFunc
	newID     func() string

	mu     sync.RWMutex
	rooms  map[string]*Session
	closed bool

	notify *notifier
}

func NewRegistry(opts Options) *Registry {
	if opts.Engine == nil {
		opts.Engine = rules.NewChess()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTicker
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registry{
		engine:    opts.Engine,
		tick:      opts.Tick,
		newTicker: opts.NewTicker,
		newID:     opts.NewID,
		rooms:     make(map[string]*Session),
		notify:    newNotifier(opts.Observers),
	}
}

// CreateSession opens a room for a matched pair. first is the longer-waiting side and plays White.
func (r *Registry) CreateSession(first, second Conn, settings Settings) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	id := r.newID()
	for _, taken := r.rooms[id]; taken; _, taken = r.rooms[id] {
		id = r.newID()
	}
	s := newSession(id, first, second, settings, r.engine, r.newTicker, r.tick, r.sessionOver)
	r.rooms[id] = s
	r.mu.Unlock()

	info := s.info()
	obslog.L().Info("room_create",
		zap.String("room_id", id),
		zap.Int64("white", int64(info.White)),
		zap.Int64("black", int64(info.Black)),
		zap.Int("time_control", settings.TimeControl),
		zap.Int("time_increment", settings.TimeIncrement),
	)
	r.notify.push(func(o Observer) { o.RoomCreated(info) })
	s.start()
	return id, nil
}

// Pair adapts CreateSession to the matchmaking callback. A failure is reported to both players.
func (r *Registry) Pair(first, second Conn, settings Settings) {
	if _, err := r.CreateSession(first, second, settings); err != nil {
		obslog.L().Error("room_create_failed", zap.Error(err))
		exc := arenadto.Exception{Code: arenadto.CodeInternal, Message: err.Error(), Retryable: true}
		first.Emit(arenadto.EventException, exc)
		second.Emit(arenadto.EventException, exc)
	}
}

// Message is an inbound room-scoped request.
type Message interface {
	apply(s *Session, sender Conn) error
}

type MoveMessage struct{ Move string }

func (m MoveMessage) apply(s *Session, sender Conn) error { return s.PlayMove(m.Move, sender) }

type ResignMessage struct{}

func (ResignMessage) apply(s *Session, sender Conn) error { return s.Resign(sender) }

// RouteMessage forwards msg to the room's session, failing with ErrUnknownRoom for ids that are not live.
func (r *Registry) RouteMessage(roomID string, msg Message, sender Conn) error {
	s, ok := r.Lookup(roomID)
	if !ok {
		return ErrUnknownRoom
	}
	return msg.apply(s, sender)
}

func (r *Registry) Lookup(roomID string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok && s == nil {
		obslog.L().DPanic("room index holds nil session", zap.String("room_id", roomID))
		return nil, false
	}
	return s, ok
}

// OnSessionTerminated drops roomID from the index. It reports whether the room was live;
// repeated calls are no-ops.
func (r *Registry) OnSessionTerminated(roomID string) bool {
	r.mu.Lock()
	_, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	if ok {
		obslog.L().Info("room_remove", zap.String("room_id", roomID))
	}
	return ok
}

func (r *Registry) sessionOver(out Outcome) {
	if r.OnSessionTerminated(out.RoomID) {
		r.notify.push(func(o Observer) { o.RoomClosed(out) })
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns the live room ids in sorted order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close stops every live session without an outcome, rejects new rooms and flushes observers.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	live := make([]*Session, 0, len(r.rooms))
	for id, s := range r.rooms {
		live = append(live, s)
		delete(r.rooms, id)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.abort()
	}
	r.notify.close()
}

// notifier delivers observer callbacks in order on a single goroutine.
type notifier struct {
	observers []Observer

	mu      sync.Mutex
	pending []func(Observer)
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newNotifier(observers []Observer) *notifier {
	n := &notifier{
		observers: observers,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(fn func(Observer)) {
	if len(n.observers) == 0 {
		return
	}
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.pending = append(n.pending, fn)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			batch := n.pending
			n.pending = nil
			stopped := n.stopped
			n.mu.Unlock()
			for _, fn := range batch {
				for _, o := range n.observers {
					fn(o)
				}
			}
			if len(batch) == 0 {
				if stopped {
					return
				}
				break
			}
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.done
}

package matchmaking

import (
	"container/list"
	"errors"
	"sort"
	"sync"

	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrAlreadyQueued = errors.New("already searching for a game")
	ErrNoIdentity    = errors.New("connection has no identity")
)

// PairFunc receives a matched pair outside the queue lock. first waited longest.
type PairFunc func(first, second gameplay.Conn, settings gameplay.Settings)

type entry struct {
	settings gameplay.Settings
	elem     *list.Element
}

// Queue holds waiting connections bucketed by exact settings. The bucket, reverse and identity
// indexes change together, only through insertLocked and removeLocked.
type Queue struct {
	onPair PairFunc

	mu         sync.Mutex
	buckets    map[gameplay.Settings]*list.List
	reverse    map[gameplay.Conn]entry
	identities map[gameplay.Identity]gameplay.Conn
}

func NewQueue(onPair PairFunc) *Queue {
	return &Queue{
		onPair:     onPair,
		buckets:    make(map[gameplay.Settings]*list.List),
		reverse:    make(map[gameplay.Conn]entry),
		identities: make(map[gameplay.Identity]gameplay.Conn),
	}
}

// Enqueue adds conn to the bucket for settings. When the bucket holds two entries the two oldest
// are removed and handed to the pair callback; paired reports whether that happened.
func (q *Queue) Enqueue(conn gameplay.Conn, settings gameplay.Settings) (paired bool, err error) {
	if conn == nil || conn.Identity() == 0 {
		return false, ErrNoIdentity
	}
	id := conn.Identity()

	q.mu.Lock()
	if _, dup := q.identities[id]; dup {
		q.mu.Unlock()
		return false, ErrAlreadyQueued
	}
	q.insertLocked(conn, settings)
	obslog.L().Debug("mm_enqueue",
		zap.Int64("identity", int64(id)),
		zap.Int("time_control", settings.TimeControl),
		zap.Int("time_increment", settings.TimeIncrement),
	)

	var first, second gameplay.Conn
	if b := q.buckets[settings]; b != nil && b.Len() >= 2 {
		first = b.Front().Value.(gameplay.Conn)
		second = b.Front().Next().Value.(gameplay.Conn)
		q.removeLocked(first)
		q.removeLocked(second)
	}
	q.mu.Unlock()

	if first == nil {
		return false, nil
	}
	obslog.L().Info("mm_pair",
		zap.Int64("first", int64(first.Identity())),
		zap.Int64("second", int64(second.Identity())),
		zap.Int("time_control", settings.TimeControl),
		zap.Int("time_increment", settings.TimeIncrement),
	)
	if q.onPair != nil {
		q.onPair(first, second, settings)
	}
	return true, nil
}

// Dequeue removes conn if it is waiting. Unknown connections are ignored.
func (q *Queue) Dequeue(conn gameplay.Conn) bool {
	if conn == nil {
		return false
	}
	q.mu.Lock()
	ok := q.removeLocked(conn)
	q.mu.Unlock()
	if ok {
		obslog.L().Debug("mm_dequeue", zap.Int64("identity", int64(conn.Identity())))
	}
	return ok
}

func (q *Queue) insertLocked(conn gameplay.Conn, settings gameplay.Settings) {
	b := q.buckets[settings]
	if b == nil {
		b = list.New()
		q.buckets[settings] = b
	}
	q.reverse[conn] = entry{settings: settings, elem: b.PushBack(conn)}
	q.identities[conn.Identity()] = conn
}

func (q *Queue) removeLocked(conn gameplay.Conn) bool {
	e, ok := q.reverse[conn]
	if !ok {
		return false
	}
	if b := q.buckets[e.settings]; b != nil {
		b.Remove(e.elem)
		if b.Len() == 0 {
			delete(q.buckets, e.settings)
		}
	}
	delete(q.reverse, conn)
	if q.identities[conn.Identity()] == conn {
		delete(q.identities, conn.Identity())
	}
	return true
}

// Contains reports whether conn is waiting.
func (q *Queue) Contains(conn gameplay.Conn) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.reverse[conn]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reverse)
}

// Bucket is the number of waiting connections for one settings pair.
type Bucket struct {
	Settings gameplay.Settings `json:"settings"`
	Waiting  int               `json:"waiting"`
}

// Buckets lists non-empty buckets ordered by time control then increment.
func (q *Queue) Buckets() []Bucket {
	q.mu.Lock()
	out := make([]Bucket, 0, len(q.buckets))
	for s, b := range q.buckets {
		out = append(out, Bucket{Settings: s, Waiting: b.Len()})
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Settings.TimeControl != out[j].Settings.TimeControl {
			return out[i].Settings.TimeControl < out[j].Settings.TimeControl
		}
		return out[i].Settings.TimeIncrement < out[j].Settings.TimeIncrement
	})
	return out
}

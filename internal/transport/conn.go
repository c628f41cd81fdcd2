package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Conn is one authenticated websocket client. Emit only enqueues; a write pump owns the socket
// writes so sessions never block on a slow client.
type Conn struct {
	ws      *websocket.Conn
	profile arenadto.PlayerProfile

	send chan arenadto.Frame
	done chan struct{}
	once sync.Once
}

var _ gameplay.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, profile arenadto.PlayerProfile, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 64
	}
	return &Conn{
		ws:      ws,
		profile: profile,
		send:    make(chan arenadto.Frame, buffer),
		done:    make(chan struct{}),
	}
}

func (c *Conn) Identity() gameplay.Identity     { return gameplay.Identity(c.profile.ID) }
func (c *Conn) Profile() arenadto.PlayerProfile { return c.profile }

// Emit queues an event. A full buffer means the client stopped reading; the connection is dropped.
func (c *Conn) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("ws_encode_failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- arenadto.Frame{Event: event, Data: data}:
	case <-c.done:
	default:
		obslog.L().Warn("ws_send_overflow",
			zap.Int64("identity", c.profile.ID),
			zap.String("event", event),
		)
		c.Disconnect()
	}
}

// Disconnect stops the pumps; the read loop observes it and closes the socket.
func (c *Conn) Disconnect() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writePump(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.flush(timeout)
			return
		case f := <-c.send:
			if err := c.write(ctx, f, timeout); err != nil {
				c.Disconnect()
				return
			}
		}
	}
}

// flush writes frames queued before Disconnect so a final exception still reaches the client.
func (c *Conn) flush(timeout time.Duration) {
	for {
		select {
		case f := <-c.send:
			if err := c.write(context.Background(), f, timeout); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, f arenadto.Frame, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, f)
}

func (c *Conn) pingLoop(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.Int64("identity", c.profile.ID))
				c.Disconnect()
				return
			}
		}
	}
}

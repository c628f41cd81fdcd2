package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/matchmaking"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (arenadto.PlayerProfile, error)
}

type Matcher interface {
	Enqueue(conn gameplay.Conn, settings gameplay.Settings) (bool, error)
	Dequeue(conn gameplay.Conn) bool
}

type Router interface {
	RouteMessage(roomID string, msg gameplay.Message, sender gameplay.Conn) error
}

type Config struct {
	Auth    Authenticator
	Queue   Matcher
	Rooms   Router
	Catalog *msgcat.Catalog
	Limits  arenadto.Limits

	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

// Server upgrades authenticated requests to websockets and feeds their frames to the queue and rooms.
type Server struct {
	cfg Config

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 16 << 10
	}
	return &Server{cfg: cfg, conns: make(map[*Conn]struct{})}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	profile, err := s.cfg.Auth.Authenticate(r.Context(), r)
	if err != nil {
		obslog.L().Info("ws_reject", zap.String("remote", r.RemoteAddr), zap.Error(err))
		if errors.Is(err, auth.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	c := newConn(ws, profile, s.cfg.SendBuffer)
	s.track(c)
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.untrack(c)

	obslog.L().Info("ws_connect", zap.Int64("identity", profile.ID), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumps := sync.WaitGroup{}
	pumps.Add(2)
	go func() { defer pumps.Done(); c.writePump(ctx, s.cfg.WriteTimeout) }()
	go func() { defer pumps.Done(); c.pingLoop(ctx, s.cfg.PingInterval) }()

	reason := s.readLoop(ctx, c)

	s.cfg.Queue.Dequeue(c)
	c.Disconnect()
	pumps.Wait()
	cancel()
	_ = ws.Close(websocket.StatusNormalClosure, "")
	obslog.L().Info("ws_disconnect", zap.Int64("identity", profile.ID), zap.String("reason", reason))
}

func (s *Server) readLoop(ctx context.Context, c *Conn) string {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-rctx.Done():
		}
	}()

	for {
		typ, data, err := c.ws.Read(rctx)
		if err != nil {
			if c.closed() {
				return "server"
			}
			if st := websocket.CloseStatus(err); st != -1 {
				return st.String()
			}
			return err.Error()
		}
		if typ != websocket.MessageText {
			s.reject(c, "", "", arenadto.BadRequest("binary frames are not supported"))
			continue
		}
		var f arenadto.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			s.reject(c, "", "", arenadto.BadRequest("frame must be {\"event\", \"data\"}"))
			continue
		}
		obslog.L().Debug("ws_message", zap.Int64("identity", c.profile.ID), zap.String("event", f.Event))
		if roomID, err := s.dispatch(c, f); err != nil {
			s.reject(c, f.Event, roomID, err)
		}
	}
}

// dispatch handles one client frame. The returned room id is only used to render errors.
func (s *Server) dispatch(c *Conn, f arenadto.Frame) (string, error) {
	switch f.Event {
	case arenadto.EventSearchGame:
		var req arenadto.SearchGameRequest
		if err := decode(f.Data, &req); err != nil {
			return "", err
		}
		if err := req.Validate(s.cfg.Limits); err != nil {
			return "", err
		}
		_, err := s.cfg.Queue.Enqueue(c, gameplay.Settings{TimeControl: req.TimeControl, TimeIncrement: req.TimeIncrement})
		return "", err

	case arenadto.EventSearchCancel:
		s.cfg.Queue.Dequeue(c)
		return "", nil

	case arenadto.EventMakeMove:
		var req arenadto.MakeMoveRequest
		if err := decode(f.Data, &req); err != nil {
			return "", err
		}
		if err := req.Validate(); err != nil {
			return req.RoomID, err
		}
		return req.RoomID, s.cfg.Rooms.RouteMessage(req.RoomID, gameplay.MoveMessage{Move: req.Move}, c)

	case arenadto.EventResign:
		var req arenadto.ResignRequest
		if err := decode(f.Data, &req); err != nil {
			return "", err
		}
		if err := req.Validate(); err != nil {
			return req.RoomID, err
		}
		return req.RoomID, s.cfg.Rooms.RouteMessage(req.RoomID, gameplay.ResignMessage{}, c)
	}
	return "", arenadto.BadRequest(fmt.Sprintf("unknown event %q", f.Event))
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return arenadto.BadRequest("missing data")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return arenadto.BadRequest("malformed data")
	}
	return nil
}

// reject reports err to the originating connection only.
func (s *Server) reject(c *Conn, event, roomID string, err error) {
	exc := s.exception(roomID, err)
	obslog.L().Info("ws_reject",
		zap.Int64("identity", c.profile.ID),
		zap.String("event", event),
		zap.String("code", exc.Code),
		zap.Error(err),
	)
	c.Emit(arenadto.EventException, exc)
}

func (s *Server) exception(roomID string, err error) arenadto.Exception {
	data := map[string]string{"RoomID": roomID, "Reason": err.Error()}
	var (
		code      string
		retryable bool
		ime       *rules.IllegalMoveError
		de        arenadto.DomainError
	)
	switch {
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		code = arenadto.CodeAlreadyQueued
	case errors.Is(err, matchmaking.ErrNoIdentity):
		code = arenadto.CodeUnauthorized
	case errors.Is(err, gameplay.ErrUnknownRoom):
		code = arenadto.CodeUnknownRoom
	case errors.Is(err, gameplay.ErrTurnViolation):
		code = arenadto.CodeTurnViolation
	case errors.Is(err, gameplay.ErrNotParticipant):
		code = arenadto.CodeNotParticipant
	case errors.Is(err, gameplay.ErrSessionOver):
		code = arenadto.CodeSessionOver
	case errors.As(err, &ime):
		code = arenadto.CodeIllegalMove
		data["Move"] = ime.Move
		data["Reason"] = ime.Error()
	case errors.As(err, &de):
		code = de.Code
		retryable = de.Retryable
		if de.Message != "" {
			data["Reason"] = de.Message
		}
	default:
		code = arenadto.CodeInternal
		retryable = true
	}
	return arenadto.Exception{
		Code:      code,
		Message:   s.cfg.Catalog.ErrorText(code, data, err.Error()),
		Retryable: retryable,
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Count returns the number of open websocket connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown disconnects every client and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conns {
		c.Disconnect()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

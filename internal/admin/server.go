package admin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/matchmaking"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/roomstore"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type QueueStats interface {
	Len() int
	Buckets() []matchmaking.Bucket
}

type Rooms interface {
	Len() int
	Lookup(roomID string) (*gameplay.Session, bool)
}

// RecordLoader reads the Redis mirror. Optional.
type RecordLoader interface {
	Load(ctx context.Context, roomID string) (*roomstore.Record, error)
}

type Config struct {
	Queue       QueueStats
	Rooms       Rooms
	Records     RecordLoader
	Connections func() int
}

// Server exposes health and room status for operators on a separate port.
type Server struct {
	cfg     Config
	started time.Time
	srv     *fasthttp.Server
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg, started: time.Now()}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "arena-admin",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("admin_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

type statsResponse struct {
	Queued      int                  `json:"queued"`
	Buckets     []matchmaking.Bucket `json:"buckets"`
	Rooms       int                  `json:"rooms"`
	Connections int                  `json:"connections"`
	Uptime      string               `json:"uptime"`
}

func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case path == "/stats":
		resp := statsResponse{
			Queued:  s.cfg.Queue.Len(),
			Buckets: s.cfg.Queue.Buckets(),
			Rooms:   s.cfg.Rooms.Len(),
			Uptime:  time.Since(s.started).Round(time.Second).String(),
		}
		if s.cfg.Connections != nil {
			resp.Connections = s.cfg.Connections()
		}
		writeJSON(ctx, fasthttp.StatusOK, resp)
	case strings.HasPrefix(path, "/rooms/"):
		s.room(ctx, strings.TrimPrefix(path, "/rooms/"))
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) room(ctx *fasthttp.RequestCtx, id string) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}
	if sess, ok := s.cfg.Rooms.Lookup(id); ok {
		writeJSON(ctx, fasthttp.StatusOK, sess.State())
		return
	}
	if s.cfg.Records == nil {
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}
	lctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := s.cfg.Records.Load(lctx, id)
	if err != nil {
		obslog.L().Warn("admin_room_load_failed", zap.String("room_id", id), zap.Error(err))
		ctx.Error("store unavailable", fasthttp.StatusServiceUnavailable)
		return
	}
	if rec == nil {
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, rec)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

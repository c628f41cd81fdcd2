package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Cheese-Arena/internal/admin"
	"github.com/park285/Cheese-Arena/internal/auth"
	appcfg "github.com/park285/Cheese-Arena/internal/config"
	"github.com/park285/Cheese-Arena/internal/events"
	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/matchmaking"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/roomstore"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/internal/transport"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		obslog.L().Error("arena stopped", zap.Error(err))
	}
	_ = obslog.L().Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every resource it opens; all of them are closed before it returns, including on a
// failed boot.
func run(ctx context.Context, cfg *appcfg.AppConfig) error {
	logger := obslog.L()

	catalog, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		return fmt.Errorf("msgcat init: %w", err)
	}

	var observers []gameplay.Observer
	var store *roomstore.Store
	if cfg.RedisURL != "" {
		store, err = roomstore.Open(ctx, cfg.RedisURL, cfg.RoomTTL)
		if err != nil {
			return fmt.Errorf("room store init: %w", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.Reset(ctx); err != nil {
			logger.Warn("room store reset failed", zap.Error(err))
		}
		observers = append(observers, store)
	}
	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return fmt.Errorf("nats init: %w", err)
		}
		defer func() { _ = pub.Close() }()
		observers = append(observers, pub)
	}

	var users auth.UserDirectory
	if cfg.DatabaseURL != "" {
		dir, err := auth.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("user directory init: %w", err)
		}
		defer func() { _ = dir.Close() }()
		users = dir
	}

	rooms := gameplay.NewRegistry(gameplay.Options{
		Engine:    rules.NewChess(),
		Tick:      cfg.ClockTick,
		Observers: observers,
	})
	defer rooms.Close()
	queue := matchmaking.NewQueue(rooms.Pair)

	ws := transport.NewServer(transport.Config{
		Auth:    auth.NewGate(auth.NewVerifier([]byte(cfg.JWTSecret)), users),
		Queue:   queue,
		Rooms:   rooms,
		Catalog: catalog,
		Limits: arenadto.Limits{
			MaxTimeControl:   cfg.MaxTimeControl,
			MaxTimeIncrement: cfg.MaxTimeIncrement,
		},
	})
	mux := http.NewServeMux()
	mux.Handle(cfg.WSPath, ws)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("arena_listen", zap.String("addr", cfg.ListenAddr), zap.String("ws_path", cfg.WSPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var adminSrv *admin.Server
	if cfg.AdminAddr != "" {
		adminSrv = admin.New(admin.Config{
			Queue:       queue,
			Rooms:       rooms,
			Records:     recordLoader(store),
			Connections: ws.Count,
		})
		g.Go(func() error { return adminSrv.ListenAndServe(cfg.AdminAddr) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("arena_shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
		if err := ws.Shutdown(sctx); err != nil {
			logger.Warn("ws shutdown incomplete", zap.Error(err))
		}
		if adminSrv != nil {
			_ = adminSrv.Shutdown(sctx)
		}
		rooms.Close()
		return nil
	})

	return g.Wait()
}

// recordLoader avoids handing admin a typed-nil store.
func recordLoader(s *roomstore.Store) admin.RecordLoader {
	if s == nil {
		return nil
	}
	return s
}

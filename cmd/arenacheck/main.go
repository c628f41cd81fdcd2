package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// arenacheck signs two tokens, pairs them on the server, plays 1.e4 and resigns.
func main() {
	url := flag.String("url", envDefault("ARENA_WS_URL", "ws://localhost:8080/ws"), "websocket url")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret")
	tc := flag.Int("tc", 180, "time control in seconds")
	inc := flag.Int("inc", 2, "increment in seconds")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	if *secret == "" {
		log.Fatal("JWT_SECRET or -secret is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	players := make([]*player, 2)
	for i := range players {
		p, err := dial(ctx, *url, []byte(*secret), int64(900001+i))
		if err != nil {
			log.Fatalf("player %d connect: %v", i+1, err)
		}
		defer p.ws.Close(websocket.StatusNormalClosure, "done")
		players[i] = p
	}

	search := arenadto.SearchGameRequest{TimeControl: *tc, TimeIncrement: *inc}
	for _, p := range players {
		if err := p.send(ctx, arenadto.EventSearchGame, search); err != nil {
			log.Fatalf("search_game: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range players {
		g.Go(func() error { return p.play(gctx) })
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("check failed: %v", err)
	}
	fmt.Println("arenacheck ok")
}

type player struct {
	id int64
	ws *websocket.Conn
}

func dial(ctx context.Context, url string, secret []byte, id int64) (*player, error) {
	tok, err := auth.Issue(secret, id, fmt.Sprintf("check%d@arena.local", id), "user", time.Hour)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      http.Header{"Authorization": []string{"Bearer " + tok}},
	})
	if err != nil {
		return nil, err
	}
	return &player{id: id, ws: ws}, nil
}

func (p *player) send(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, p.ws, arenadto.Frame{Event: event, Data: raw})
}

// play prints every event. White opens with e4; Black resigns on the reply.
func (p *player) play(ctx context.Context) error {
	var meta arenadto.GameMetadata
	for {
		var f arenadto.Frame
		if err := wsjson.Read(ctx, p.ws, &f); err != nil {
			return fmt.Errorf("player %d read: %w", p.id, err)
		}
		fmt.Printf("[%d] %s %s\n", p.id, f.Event, strings.TrimSpace(string(f.Data)))

		switch f.Event {
		case arenadto.EventGameMetadata:
			if err := json.Unmarshal(f.Data, &meta); err != nil {
				return err
			}
			if meta.Color == "white" {
				if err := p.send(ctx, arenadto.EventMakeMove, arenadto.MakeMoveRequest{RoomID: meta.RoomID, Move: "e2e4"}); err != nil {
					return err
				}
			}
		case arenadto.EventBoardUpdate:
			var bu arenadto.BoardUpdate
			if err := json.Unmarshal(f.Data, &bu); err != nil {
				return err
			}
			if bu.YourTurn && meta.Color == "black" {
				if err := p.send(ctx, arenadto.EventResign, arenadto.ResignRequest{RoomID: meta.RoomID}); err != nil {
					return err
				}
			}
		case arenadto.EventGameOver:
			return nil
		case arenadto.EventException:
			return fmt.Errorf("player %d exception: %s", p.id, f.Data)
		}
	}
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

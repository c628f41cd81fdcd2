package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-Arena/internal/auth"
	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/matchmaking"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var testSecret = []byte("transport-secret")

type harness struct {
	url   string
	queue *matchmaking.Queue
	rooms *gameplay.Registry
	srv   *Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rooms := gameplay.NewRegistry(gameplay.Options{Tick: time.Hour})
	t.Cleanup(rooms.Close)
	queue := matchmaking.NewQueue(rooms.Pair)
	cat, err := msgcat.New("")
	require.NoError(t, err)

	srv := NewServer(Config{
		Auth:    auth.NewGate(auth.NewVerifier(testSecret), nil),
		Queue:   queue,
		Rooms:   rooms,
		Catalog: cat,
		Limits:  arenadto.Limits{MaxTimeControl: 3600, MaxTimeIncrement: 60},
	})
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &harness{url: "ws" + strings.TrimPrefix(hs.URL, "http"), queue: queue, rooms: rooms, srv: srv}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (h *harness) dial(t *testing.T, id int64) *client {
	t.Helper()
	tok, err := auth.Issue(testSecret, id, "", "user", time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, h.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + tok}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.t, wsjson.Write(ctx, c.ws, arenadto.Frame{Event: event, Data: raw}))
}

// expect reads frames until one named event arrives and decodes its data into dst.
func (c *client) expect(event string, dst any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var f arenadto.Frame
		require.NoError(c.t, wsjson.Read(ctx, c.ws, &f), "waiting for %s", event)
		if f.Event == event {
			if dst != nil {
				require.NoError(c.t, json.Unmarshal(f.Data, dst))
			}
			return
		}
	}
}

func TestMatchAndPlay(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, 1)
	b := h.dial(t, 2)

	a.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 600, TimeIncrement: 10})
	require.Eventually(t, func() bool { return h.queue.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	b.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 600, TimeIncrement: 10})

	var am, bm arenadto.GameMetadata
	a.expect(arenadto.EventGameMetadata, &am)
	b.expect(arenadto.EventGameMetadata, &bm)
	require.Equal(t, "white", am.Color)
	require.Equal(t, "black", bm.Color)
	require.Equal(t, am.RoomID, bm.RoomID)
	require.EqualValues(t, 2, am.Opponent.ID)
	require.Equal(t, 0, h.queue.Len())

	a.send(arenadto.EventMakeMove, arenadto.MakeMoveRequest{RoomID: am.RoomID, Move: "e2e4"})
	var au, bu arenadto.BoardUpdate
	a.expect(arenadto.EventBoardUpdate, &au)
	b.expect(arenadto.EventBoardUpdate, &bu)
	require.False(t, au.YourTurn)
	require.True(t, bu.YourTurn)

	// out of turn
	a.send(arenadto.EventMakeMove, arenadto.MakeMoveRequest{RoomID: am.RoomID, Move: "d2d4"})
	var exc arenadto.Exception
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeTurnViolation, exc.Code)
	require.Equal(t, "It is not your turn.", exc.Message)

	b.send(arenadto.EventMakeMove, arenadto.MakeMoveRequest{RoomID: am.RoomID, Move: "e7e4"})
	b.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeIllegalMove, exc.Code)
	require.Contains(t, exc.Message, "e7e4")

	b.send(arenadto.EventResign, arenadto.ResignRequest{RoomID: am.RoomID})
	var ao, bo arenadto.GameOver
	a.expect(arenadto.EventGameOver, &ao)
	b.expect(arenadto.EventGameOver, &bo)
	require.Equal(t, arenadto.ResultWin, ao.Result)
	require.Equal(t, arenadto.ResultLose, bo.Result)

	a.send(arenadto.EventResign, arenadto.ResignRequest{RoomID: am.RoomID})
	a.expect(arenadto.EventException, &exc)
	require.Contains(t, []string{arenadto.CodeUnknownRoom, arenadto.CodeSessionOver}, exc.Code)
	require.Eventually(t, func() bool { return h.rooms.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRejections(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, 5)
	var exc arenadto.Exception

	a.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 0})
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeBadRequest, exc.Code)

	a.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 60})
	a.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 120})
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeAlreadyQueued, exc.Code)

	a.send("dance", map[string]string{})
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeBadRequest, exc.Code)

	a.send(arenadto.EventMakeMove, arenadto.MakeMoveRequest{RoomID: "not-a-uuid", Move: "e2e4"})
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeBadRequest, exc.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.ws.Write(ctx, websocket.MessageText, []byte("{nope")))
	a.expect(arenadto.EventException, &exc)
	require.Equal(t, arenadto.CodeBadRequest, exc.Code)

	a.send(arenadto.EventSearchCancel, struct{}{})
	require.Eventually(t, func() bool { return h.queue.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectLeavesQueue(t *testing.T) {
	h := newHarness(t)
	a := h.dial(t, 9)
	a.send(arenadto.EventSearchGame, arenadto.SearchGameRequest{TimeControl: 60})
	require.Eventually(t, func() bool { return h.queue.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.ws.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return h.queue.Len() == 0 && h.srv.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestUnauthorizedHandshake(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, h.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad, err := auth.Issue([]byte("wrong"), 1, "", "", time.Hour)
	require.NoError(t, err)
	_, resp, err = websocket.Dial(ctx, h.url+"?access_token="+bad, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, h.srv.Count())
}

func TestExceptionCodes(t *testing.T) {
	cat, err := msgcat.New("")
	require.NoError(t, err)
	srv := NewServer(Config{Catalog: cat})

	exc := srv.exception("", matchmaking.ErrNoIdentity)
	require.Equal(t, arenadto.CodeUnauthorized, exc.Code)
	require.Equal(t, "Authentication required.", exc.Message)

	exc = srv.exception("", matchmaking.ErrAlreadyQueued)
	require.Equal(t, arenadto.CodeAlreadyQueued, exc.Code)
	require.False(t, exc.Retryable)
}

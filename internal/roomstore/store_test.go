package roomstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestSaveRoomAndOutcome(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()
	info := gameplay.RoomInfo{
		RoomID:    "room-1",
		White:     11,
		Black:     22,
		Settings:  gameplay.Settings{TimeControl: 300, TimeIncrement: 5},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, st.SaveRoom(ctx, info))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, time.Hour, mr.TTL("arena:room:room-1"))

	rec, err := st.Load(ctx, "room-1")
	require.NoError(t, err)
	require.Equal(t, StatusLive, rec.Status)
	require.Equal(t, gameplay.Identity(22), rec.Black)
	require.True(t, info.CreatedAt.Equal(rec.CreatedAt))
	require.Nil(t, rec.Outcome)

	out := gameplay.Outcome{RoomID: "room-1", Settings: info.Settings, Winner: 22, Loser: 11, Reason: gameplay.ReasonResignation}
	require.NoError(t, st.SaveOutcome(ctx, out))

	rec, err = st.Load(ctx, "room-1")
	require.NoError(t, err)
	require.Equal(t, StatusFinished, rec.Status)
	require.Equal(t, gameplay.Identity(11), rec.White)
	require.Equal(t, gameplay.ReasonResignation, rec.Outcome.Reason)
	require.Equal(t, finishedTTL, mr.TTL("arena:room:room-1"))

	live, err := st.Live(ctx)
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestLoadMissing(t *testing.T) {
	st, _ := newTestStore(t)
	rec, err := st.Load(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, rec)

	// outcome for a room the mirror never saw still produces a record
	require.NoError(t, st.SaveOutcome(context.Background(), gameplay.Outcome{RoomID: "ghost", Draw: true}))
	rec, err = st.Load(context.Background(), "ghost")
	require.NoError(t, err)
	require.True(t, rec.Outcome.Draw)
}

func TestReset(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveRoom(ctx, gameplay.RoomInfo{RoomID: "a"}))
	require.NoError(t, st.SaveRoom(ctx, gameplay.RoomInfo{RoomID: "b"}))
	require.NoError(t, st.Reset(ctx))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

type nopConn struct{ id gameplay.Identity }

func (c *nopConn) Identity() gameplay.Identity     { return c.id }
func (c *nopConn) Profile() arenadto.PlayerProfile { return arenadto.PlayerProfile{ID: int64(c.id)} }
func (c *nopConn) Emit(string, any)                {}
func (c *nopConn) Disconnect()                     {}

func TestObserverMirrorsRegistry(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	reg := gameplay.NewRegistry(gameplay.Options{Tick: time.Hour, Observers: []gameplay.Observer{st}})
	t.Cleanup(reg.Close)

	white, black := &nopConn{1}, &nopConn{2}
	id, err := reg.CreateSession(white, black, gameplay.Settings{TimeControl: 60})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := st.Load(ctx, id)
		return err == nil && rec != nil && rec.Status == StatusLive
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, reg.RouteMessage(id, gameplay.ResignMessage{}, white))
	require.Eventually(t, func() bool {
		rec, err := st.Load(ctx, id)
		return err == nil && rec != nil && rec.Status == StatusFinished && rec.Outcome.Winner == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://user:pw@localhost:6380/3")
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, "user", opts.Username)
	require.Equal(t, "pw", opts.Password)
	require.Equal(t, 3, opts.DB)

	_, err = parseRedisURL("http://localhost")
	require.Error(t, err)
	_, err = parseRedisURL("redis://localhost/x")
	require.Error(t, err)

	_, err = Open(context.Background(), "", time.Hour)
	require.Error(t, err)
}

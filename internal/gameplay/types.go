package gameplay

import (
	"time"

	"github.com/park285/Cheese-Arena/pkg/arenadto"
)

// Identity is the authenticated player id attached to a connection before it reaches the queue.
type Identity int64

type Side int

const (
	White Side = iota
	Black
)

func (s Side) Other() Side { return 1 - s }

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// Settings is the time control a pair was matched on. It is comparable and used as a bucket key.
type Settings struct {
	TimeControl   int `json:"timeControl"`
	TimeIncrement int `json:"timeIncrement"`
}

// Conn is a live client channel. Implementations must be pointer types: sessions and the queue
// compare connections by reference. Emit must not block.
type Conn interface {
	Identity() Identity
	Profile() arenadto.PlayerProfile
	Emit(event string, payload any)
	Disconnect()
}

// Terminal reasons reported in game_over and Outcome.
const (
	ReasonCheckmate   = "checkmate"
	ReasonDraw        = "draw"
	ReasonResignation = "resignation"
	ReasonTimeout     = "timeout"
)

// Outcome is the result of a finished room. Winner and Loser are zero for draws.
type Outcome struct {
	RoomID   string    `json:"roomId"`
	Settings Settings  `json:"settings"`
	Draw     bool      `json:"isDraw"`
	Winner   Identity  `json:"winner,omitempty"`
	Loser    Identity  `json:"loser,omitempty"`
	Reason   string    `json:"reason"`
	Moves    int       `json:"moves"`
	EndedAt  time.Time `json:"endedAt"`
}

// RoomInfo describes a room at creation time.
type RoomInfo struct {
	RoomID    string    `json:"roomId"`
	White     Identity  `json:"white"`
	Black     Identity  `json:"black"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt"`
}

// Observer receives room lifecycle notifications after the registry index has changed.
// Calls are serialized on one goroutine, never under a session or registry lock.
type Observer interface {
	RoomCreated(info RoomInfo)
	RoomClosed(out Outcome)
}

// State is a point-in-time view of a live room.
type State struct {
	RoomID    string   `json:"roomId"`
	White     Identity `json:"white"`
	Black     Identity `json:"black"`
	Settings  Settings `json:"settings"`
	Turn      string   `json:"turn"`
	WhiteTime int      `json:"whiteTime"`
	BlackTime int      `json:"blackTime"`
	FEN       string   `json:"fen"`
	Ply       int      `json:"ply"`
	Over      bool     `json:"over"`
}

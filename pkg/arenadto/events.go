package arenadto

import "encoding/json"

// Inbound events.
const (
	EventSearchGame   = "search_game"
	EventSearchCancel = "search_cancel"
	EventMakeMove     = "make_move"
	EventResign       = "resign"
)

// Outbound events.
const (
	EventGameMetadata = "game_metadata"
	EventBoardUpdate  = "board_update"
	EventTimeUpdate   = "time_update"
	EventGameOver     = "game_over"
	EventException    = "exception"
)

// Results reported in game_over.
const (
	ResultWin  = "win"
	ResultLose = "lose"
	ResultDraw = "draw"
)

// Frame is the envelope for every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type GameMetadata struct {
	Color         string        `json:"color"`
	Opponent      PlayerProfile `json:"opponent"`
	TimeControl   int           `json:"timeControl"`
	TimeIncrement int           `json:"timeIncrement"`
	RoomID        string        `json:"roomId"`
}

type BoardUpdate struct {
	FEN      string `json:"fen"`
	YourTurn bool   `json:"yourTurn"`
	LastMove string `json:"lastMove,omitempty"`
}

type TimeUpdate struct {
	WhiteTime int `json:"whiteTime"`
	BlackTime int `json:"blackTime"`
}

type GameOver struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
	RoomID string `json:"roomId,omitempty"`
}

type Exception struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

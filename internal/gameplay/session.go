package gameplay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/park285/Cheese-Arena/internal/rules"
	"github.com/park285/Cheese-Arena/pkg/arenadto"
	"go.uber.org/zap"
)

// Session is one match between two connections. All mutation happens under mu; over flips
// exactly once and is never reset.
type Session struct {
	id        string
	settings  Settings
	engine    rules.Engine
	conns     [2]Conn
	newTicker TickerFunc
	tick      time.Duration
	onOver    func(Outcome)
	createdAt time.Time

	mu        sync.Mutex
	over      atomic.Bool
	started   bool
	board     *rules.Board
	remaining [2]int
	turn      Side
	clocks    [2]*clock
}

func newSession(id string, white, black Conn, settings Settings, engine rules.Engine, newTicker TickerFunc, tick time.Duration, onOver func(Outcome)) *Session {
	if newTicker == nil {
		newTicker = NewTicker
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Session{
		id:        id,
		settings:  settings,
		engine:    engine,
		conns:     [2]Conn{white, black},
		newTicker: newTicker,
		tick:      tick,
		onOver:    onOver,
		createdAt: time.Now(),
		board:     engine.NewBoard(),
		remaining: [2]int{settings.TimeControl, settings.TimeControl},
		turn:      White,
	}
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Settings() Settings { return s.settings }
func (s *Session) Over() bool         { return s.over.Load() }

func (s *Session) info() RoomInfo {
	return RoomInfo{
		RoomID:    s.id,
		White:     s.conns[White].Identity(),
		Black:     s.conns[Black].Identity(),
		Settings:  s.settings,
		CreatedAt: s.createdAt,
	}
}

// start sends game_metadata to both sides and starts White's clock.
func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.over.Load() {
		return
	}
	s.started = true
	for _, side := range []Side{White, Black} {
		s.conns[side].Emit(arenadto.EventGameMetadata, arenadto.GameMetadata{
			Color:         side.String(),
			Opponent:      s.conns[side.Other()].Profile(),
			TimeControl:   s.settings.TimeControl,
			TimeIncrement: s.settings.TimeIncrement,
			RoomID:        s.id,
		})
	}
	s.clocks[White] = startClock(White, s.newTicker, s.tick, s.onTick)
}

func (s *Session) sideOf(c Conn) (Side, bool) {
	switch c {
	case s.conns[White]:
		return White, true
	case s.conns[Black]:
		return Black, true
	}
	return White, false
}

// PlayMove applies move for sender. Rejections leave board, turn and clocks untouched.
func (s *Session) PlayMove(move string, sender Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over.Load() {
		return ErrSessionOver
	}
	side, ok := s.sideOf(sender)
	if !ok {
		return ErrNotParticipant
	}
	if side != s.turn {
		return ErrTurnViolation
	}
	if err := s.engine.ApplyMove(s.board, move); err != nil {
		return err
	}

	fen := s.engine.Serialize(s.board)
	uci, san := s.board.LastMove()
	s.conns[side].Emit(arenadto.EventBoardUpdate, arenadto.BoardUpdate{FEN: fen, YourTurn: false, LastMove: uci})
	s.conns[side.Other()].Emit(arenadto.EventBoardUpdate, arenadto.BoardUpdate{FEN: fen, YourTurn: true, LastMove: uci})
	obslog.L().Debug("room_move",
		zap.String("room_id", s.id),
		zap.String("side", side.String()),
		zap.String("uci", uci),
		zap.String("san", san),
		zap.Int("ply", s.board.Ply()),
	)

	if s.engine.IsCheckmate(s.board) {
		s.finishLocked(false, side, ReasonCheckmate)
		return nil
	}
	if s.drawn() {
		reason := rules.DrawReason(s.engine, s.board)
		if reason == "" {
			reason = ReasonDraw
		}
		s.finishLocked(true, side, reason)
		return nil
	}

	s.remaining[side] += s.settings.TimeIncrement
	s.turn = side.Other()
	s.clocks[side].halt()
	s.clocks[side] = nil
	s.clocks[s.turn] = startClock(s.turn, s.newTicker, s.tick, s.onTick)
	return nil
}

func (s *Session) drawn() bool {
	e, b := s.engine, s.board
	return e.IsDraw(b) || e.IsStalemate(b) || e.IsThreefoldRepetition(b) || e.IsInsufficientMaterial(b)
}

// Resign ends the game in the opponent's favour regardless of whose turn it is.
func (s *Session) Resign(sender Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.over.Load() {
		return ErrSessionOver
	}
	side, ok := s.sideOf(sender)
	if !ok {
		return ErrNotParticipant
	}
	s.finishLocked(false, side.Other(), ReasonResignation)
	return nil
}

func (s *Session) onTick(c *clock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// stale tick from a clock that was already switched off
	if s.over.Load() || s.clocks[c.side] != c {
		return
	}
	side := c.side
	if s.remaining[side] > 0 {
		s.remaining[side]--
	}
	update := arenadto.TimeUpdate{WhiteTime: s.remaining[White], BlackTime: s.remaining[Black]}
	s.conns[White].Emit(arenadto.EventTimeUpdate, update)
	s.conns[Black].Emit(arenadto.EventTimeUpdate, update)

	if s.remaining[side] <= 0 {
		s.finishLocked(false, side.Other(), ReasonTimeout)
	}
}

// finishLocked is the only path into the terminal state. Callers hold mu.
func (s *Session) finishLocked(draw bool, winner Side, reason string) {
	if !s.over.CompareAndSwap(false, true) {
		return
	}
	s.stopClocksLocked()

	out := Outcome{
		RoomID:   s.id,
		Settings: s.settings,
		Draw:     draw,
		Reason:   reason,
		Moves:    s.board.Ply(),
		EndedAt:  time.Now(),
	}
	if draw {
		msg := arenadto.GameOver{Result: arenadto.ResultDraw, Reason: reason, RoomID: s.id}
		s.conns[White].Emit(arenadto.EventGameOver, msg)
		s.conns[Black].Emit(arenadto.EventGameOver, msg)
	} else {
		out.Winner = s.conns[winner].Identity()
		out.Loser = s.conns[winner.Other()].Identity()
		s.conns[winner].Emit(arenadto.EventGameOver, arenadto.GameOver{Result: arenadto.ResultWin, Reason: reason, RoomID: s.id})
		s.conns[winner.Other()].Emit(arenadto.EventGameOver, arenadto.GameOver{Result: arenadto.ResultLose, Reason: reason, RoomID: s.id})
	}

	obslog.L().Info("room_over",
		zap.String("room_id", s.id),
		zap.String("reason", reason),
		zap.Bool("draw", draw),
		zap.Int64("winner", int64(out.Winner)),
		zap.Int64("loser", int64(out.Loser)),
		zap.Int("ply", out.Moves),
	)
	if s.onOver != nil {
		s.onOver(out)
	}
}

func (s *Session) stopClocksLocked() {
	for i := range s.clocks {
		s.clocks[i].halt()
		s.clocks[i] = nil
	}
}

// abort stops the clocks without producing an outcome. Used on shutdown.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over.CompareAndSwap(false, true) {
		s.stopClocksLocked()
	}
}

// State returns a snapshot of the room.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		RoomID:    s.id,
		White:     s.conns[White].Identity(),
		Black:     s.conns[Black].Identity(),
		Settings:  s.settings,
		Turn:      s.turn.String(),
		WhiteTime: s.remaining[White],
		BlackTime: s.remaining[Black],
		FEN:       s.engine.Serialize(s.board),
		Ply:       s.board.Ply(),
		Over:      s.over.Load(),
	}
}

package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove is matched by every rejection ApplyMove returns.
var ErrIllegalMove = errors.New("illegal move")

// IllegalMoveError carries the engine's reason for rejecting a move.
type IllegalMoveError struct {
	Move   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid move: %s", e.Move)
	}
	return e.Reason
}

func (e *IllegalMoveError) Is(target error) bool { return target == ErrIllegalMove }

// Board is one mutable chess position together with its move history.
type Board struct {
	game    *nchess.Game
	lastUCI string
	lastSAN string
}

// Ply returns the number of half-moves played so far.
func (b *Board) Ply() int {
	if b == nil || b.game == nil {
		return 0
	}
	return len(b.game.Moves())
}

// LastMove returns the last applied move in UCI and SAN, or empty strings at the start position.
func (b *Board) LastMove() (uci, san string) {
	if b == nil {
		return "", ""
	}
	return b.lastUCI, b.lastSAN
}

// Engine validates and applies moves and reports terminal conditions.
type Engine interface {
	NewBoard() *Board
	ApplyMove(b *Board, move string) error
	IsCheckmate(b *Board) bool
	IsDraw(b *Board) bool
	IsStalemate(b *Board) bool
	IsThreefoldRepetition(b *Board) bool
	IsInsufficientMaterial(b *Board) bool
	Serialize(b *Board) string
}

// Chess is the standard-chess Engine.
type Chess struct{}

func NewChess() Chess { return Chess{} }

func (Chess) NewBoard() *Board { return &Board{game: nchess.NewGame()} }

// ApplyMove accepts UCI ("e2e4", "e7e8q") first and falls back to SAN ("Nf3", "O-O").
// The board is left untouched when the move is rejected.
func (Chess) ApplyMove(b *Board, move string) error {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return &IllegalMoveError{Move: move, Reason: "empty move"}
	}
	if b == nil || b.game == nil {
		return &IllegalMoveError{Move: raw, Reason: "no board"}
	}
	if b.game.Outcome() != nchess.NoOutcome {
		return &IllegalMoveError{Move: raw, Reason: "game is already decided"}
	}

	pos := b.game.Position()
	// UCI-shaped input is final: square-to-square text is never valid SAN, so an illegal UCI move
	// is reported as is rather than retried.
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); err == nil {
		if err := b.game.Move(mv, nil); err != nil {
			return &IllegalMoveError{Move: raw, Reason: fmt.Sprintf("invalid move: %s", raw)}
		}
		b.lastUCI = mv.String()
		b.lastSAN = nchess.AlgebraicNotation{}.Encode(pos, mv)
		return nil
	}
	if err := b.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return &IllegalMoveError{Move: raw, Reason: fmt.Sprintf("invalid move: %s", raw)}
	}
	if moves := b.game.Moves(); len(moves) > 0 {
		mv := moves[len(moves)-1]
		b.lastUCI = mv.String()
		b.lastSAN = nchess.AlgebraicNotation{}.Encode(pos, mv)
	}
	return nil
}

func (Chess) IsCheckmate(b *Board) bool {
	return b != nil && b.game.Method() == nchess.Checkmate
}

func (Chess) IsStalemate(b *Board) bool {
	return b != nil && b.game.Method() == nchess.Stalemate
}

func (Chess) IsInsufficientMaterial(b *Board) bool {
	return b != nil && b.game.Method() == nchess.InsufficientMaterial
}

// IsThreefoldRepetition reports a claimable threefold repetition. Fivefold ends the game outright
// and is reported here as well.
func (Chess) IsThreefoldRepetition(b *Board) bool {
	if b == nil {
		return false
	}
	if b.game.Method() == nchess.FivefoldRepetition {
		return true
	}
	return hasMethod(b.game.EligibleDraws(), nchess.ThreefoldRepetition)
}

// IsDraw covers every drawn position: decided draws plus the fifty-move and threefold claims,
// which are applied automatically here.
func (c Chess) IsDraw(b *Board) bool {
	if b == nil {
		return false
	}
	if b.game.Outcome() == nchess.Draw {
		return true
	}
	return hasMethod(b.game.EligibleDraws(), nchess.FiftyMoveRule) || c.IsThreefoldRepetition(b)
}

// Serialize returns the position as FEN.
func (Chess) Serialize(b *Board) string {
	if b == nil || b.game == nil {
		return ""
	}
	return b.game.FEN()
}

// DrawReason names the draw condition b is in, or "" when the position is not drawn.
func DrawReason(e Engine, b *Board) string {
	switch {
	case e.IsStalemate(b):
		return "stalemate"
	case e.IsInsufficientMaterial(b):
		return "insufficient_material"
	case e.IsThreefoldRepetition(b):
		return "threefold_repetition"
	case e.IsDraw(b):
		if b != nil && b.game != nil && b.game.Method() == nchess.SeventyFiveMoveRule {
			return "seventy_five_move_rule"
		}
		return "fifty_move_rule"
	default:
		return ""
	}
}

func hasMethod(list []nchess.Method, m nchess.Method) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

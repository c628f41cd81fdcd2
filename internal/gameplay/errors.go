package gameplay

import (
	"errors"

	"github.com/park285/Cheese-Arena/internal/rules"
)

var (
	ErrUnknownRoom    = errors.New("unknown room")
	ErrTurnViolation  = errors.New("not your turn")
	ErrNotParticipant = errors.New("not a participant of this room")
	ErrSessionOver    = errors.New("game is already over")
	ErrClosed         = errors.New("registry closed")
)

// IllegalMoveError is returned when the rules engine rejects a move. It matches rules.ErrIllegalMove.
type IllegalMoveError = rules.IllegalMoveError

package arenadto

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Limits bounds the time settings a client may request.
type Limits struct {
	MaxTimeControl   int
	MaxTimeIncrement int
}

type SearchGameRequest struct {
	TimeControl   int `json:"timeControl"`
	TimeIncrement int `json:"timeIncrement"`
}

// Validate rejects non-positive base times, negative increments and anything over the limits.
// A zero limit means unbounded.
func (r SearchGameRequest) Validate(l Limits) error {
	if r.TimeControl <= 0 {
		return BadRequest("timeControl must be a positive number of seconds")
	}
	if l.MaxTimeControl > 0 && r.TimeControl > l.MaxTimeControl {
		return BadRequest(fmt.Sprintf("timeControl must not exceed %d", l.MaxTimeControl))
	}
	if r.TimeIncrement < 0 {
		return BadRequest("timeIncrement must not be negative")
	}
	if l.MaxTimeIncrement > 0 && r.TimeIncrement > l.MaxTimeIncrement {
		return BadRequest(fmt.Sprintf("timeIncrement must not exceed %d", l.MaxTimeIncrement))
	}
	return nil
}

type MakeMoveRequest struct {
	RoomID string `json:"roomId"`
	Move   string `json:"move"`
}

func (r MakeMoveRequest) Validate() error {
	if err := validateRoomID(r.RoomID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Move) == "" {
		return BadRequest("move is required")
	}
	return nil
}

type ResignRequest struct {
	RoomID string `json:"roomId"`
}

func (r ResignRequest) Validate() error {
	return validateRoomID(r.RoomID)
}

func validateRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return BadRequest("roomId is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return BadRequest("roomId must be a UUID")
	}
	return nil
}

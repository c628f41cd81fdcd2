package arenadto

// Error codes carried in exception payloads.
const (
	CodeAlreadyQueued  = "already_queued"
	CodeUnknownRoom    = "unknown_room"
	CodeTurnViolation  = "turn_violation"
	CodeIllegalMove    = "illegal_move"
	CodeNotParticipant = "not_participant"
	CodeSessionOver    = "session_over"
	CodeBadRequest     = "bad_request"
	CodeUnauthorized   = "unauthorized"
	CodeInternal       = "internal"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena service error"
}

// BadRequest wraps a validation failure.
func BadRequest(msg string) DomainError {
	return DomainError{Code: CodeBadRequest, Message: msg}
}

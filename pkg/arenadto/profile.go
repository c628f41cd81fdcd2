package arenadto

// PlayerProfile is the public view of an authenticated player shown to opponents.
type PlayerProfile struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

package domain

import "time"

// Session is the server-side record behind an issued access token.
// The token's sid claim points at it; deleting it revokes the token early.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}

// BelongsTo reports whether the session was issued to userID.
func (s *Session) BelongsTo(userID string) bool {
	return s != nil && s.UserID == userID
}

package session

import "time"

// Session is the durable record behind an opaque client-held identifier.
// UserID stays empty until login; CSRFSecret stays empty until the first
// token is issued.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	CSRFSecret string    `json:"csrf_secret,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsAuthenticated reports whether an identity is bound to the session.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != ""
}

// IsExpiredAt reports whether the session is past its absolute expiry at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return s == nil || !t.Before(s.ExpiresAt)
}

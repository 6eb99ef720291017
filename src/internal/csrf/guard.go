package csrf

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/sirupsen/logrus"
)

// HeaderName carries the token on mutating requests.
const HeaderName = "X-CSRF-Token"

// Guard issues and validates session-bound CSRF tokens.
//
// A session starts without a secret; the first Issue stores one. The token is
// a pure function of (secret, session id), so repeated Issue calls return the
// same value until the session is rotated.
type Guard struct {
	store session.Store
}

func NewGuard(store session.Store) *Guard {
	return &Guard{store: store}
}

// Requires reports whether requests with method must carry a token.
func (g *Guard) Requires(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Issue returns the token for s, creating the session secret on first use.
// s.CSRFSecret is updated in place.
func (g *Guard) Issue(ctx context.Context, s *session.Session) (string, error) {
	if s == nil {
		return "", models.ErrSessionNotFound
	}

	if s.CSRFSecret == "" {
		candidate, err := session.GenerateSecret()
		if err != nil {
			return "", err
		}
		secret, err := g.store.InitSecret(ctx, s.ID, candidate)
		if err != nil {
			return "", err
		}
		s.CSRFSecret = secret

		logrus.WithField("user_id", s.UserID).Debug("CSRF secret issued")
	}

	return derive(s.CSRFSecret, s.ID), nil
}

// Validate checks supplied against the token derived from s.
func (g *Guard) Validate(s *session.Session, supplied string) error {
	if s == nil || s.CSRFSecret == "" || supplied == "" {
		return models.ErrCSRFRejected
	}

	expected := derive(s.CSRFSecret, s.ID)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
		return models.ErrCSRFRejected
	}
	return nil
}

func derive(secret, sessionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("csrf:"))
	mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

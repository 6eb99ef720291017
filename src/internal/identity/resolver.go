package identity

import (
	"context"
	"errors"
	"net/http"

	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/session"
)

// Resolver turns a request credential into a session and a user id. The HTTP
// pipeline and the push gateway both go through it so they agree on who the
// caller is.
type Resolver struct {
	store  session.Store
	cookie *session.CookieCodec
}

func NewResolver(store session.Store, cookie *session.CookieCodec) *Resolver {
	return &Resolver{store: store, cookie: cookie}
}

// UserID returns the authenticated user bound to s.
func (r *Resolver) UserID(s *session.Session) (string, error) {
	if !s.IsAuthenticated() {
		return "", models.ErrUnauthenticated
	}
	return s.UserID, nil
}

// Session loads the session named by the request cookie. A missing, tampered,
// unknown or expired credential yields models.ErrSessionNotFound.
func (r *Resolver) Session(ctx context.Context, req *http.Request) (*session.Session, error) {
	id, err := r.cookie.Read(req)
	if err != nil {
		return nil, models.ErrSessionNotFound
	}
	return r.store.Load(ctx, id)
}

// FromRequest resolves both the session and its user. Anonymous sessions and
// missing credentials are reported as models.ErrUnauthenticated; storage
// failures are returned as-is.
func (r *Resolver) FromRequest(ctx context.Context, req *http.Request) (*session.Session, string, error) {
	s, err := r.Session(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, "", models.ErrUnauthenticated
		}
		return nil, "", err
	}

	userID, err := r.UserID(s)
	if err != nil {
		return s, "", err
	}
	return s, userID, nil
}

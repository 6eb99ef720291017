package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, *session.RedisStore, *session.CookieCodec, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewRedisStore(client, time.Hour)
	cookie := session.NewCookieCodec("connect.sid", "test-secret", false, time.Hour)
	return NewResolver(store, cookie), store, cookie, mr
}

func requestWith(cookie *session.CookieCodec, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: value})
	}
	return req
}

func TestResolver_FromRequest(t *testing.T) {
	resolver, store, cookie, _ := newTestResolver(t)
	ctx := context.Background()

	authed, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	anonymous, err := store.Create(ctx, "")
	require.NoError(t, err)

	s, userID, err := resolver.FromRequest(ctx, requestWith(cookie, cookie.Encode(authed.ID)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, authed.ID, s.ID)

	tests := []struct {
		name  string
		value string
	}{
		{name: "no cookie", value: ""},
		{name: "tampered cookie", value: authed.ID + ".forged"},
		{name: "unknown session", value: cookie.Encode("unknown")},
		{name: "anonymous session", value: cookie.Encode(anonymous.ID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resolver.FromRequest(ctx, requestWith(cookie, tt.value))
			assert.ErrorIs(t, err, models.ErrUnauthenticated)
		})
	}
}

func TestResolver_SessionStorageFailure(t *testing.T) {
	resolver, _, cookie, mr := newTestResolver(t)
	mr.Close()

	_, _, err := resolver.FromRequest(context.Background(), requestWith(cookie, cookie.Encode("some-id")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthenticated)
}

func TestResolver_UserID(t *testing.T) {
	resolver := &Resolver{}

	_, err := resolver.UserID(nil)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = resolver.UserID(&session.Session{ID: "x"})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	userID, err := resolver.UserID(&session.Session{ID: "x", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

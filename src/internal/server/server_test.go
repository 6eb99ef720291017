package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"challengehub-realtime-svc/src/clients"
	"challengehub-realtime-svc/src/clients/portal"
	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/dependency"
	"challengehub-realtime-svc/src/internal/identity"
	"challengehub-realtime-svc/src/internal/notification"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepository keeps notifications in memory with the same semantics as
// the Mongo repository.
type memoryRepository struct {
	mu    sync.Mutex
	items map[string]*notification.Notification
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{items: make(map[string]*notification.Notification)}
}

func (r *memoryRepository) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *n
	r.items[n.ID] = &stored
	return nil
}

func (r *memoryRepository) List(_ context.Context, userID string, page, pageSize int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []*notification.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			copied := *n
			owned = append(owned, &copied)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})

	start := (page - 1) * pageSize
	if start >= len(owned) {
		return []*notification.Notification{}, nil
	}
	end := start + pageSize
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], nil
}

func (r *memoryRepository) CountUnread(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) Owners(_ context.Context, ids []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make(map[string]string)
	for _, id := range ids {
		if n, ok := r.items[id]; ok {
			owners[id] = n.UserID
		}
	}
	return owners, nil
}

func (r *memoryRepository) MarkRead(_ context.Context, userID string, ids []string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range ids {
		if n, ok := r.items[id]; ok && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			updated++
		}
	}
	return updated, nil
}

func (r *memoryRepository) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			updated++
		}
	}
	return updated, nil
}

func (r *memoryRepository) EnsureIndexes(context.Context) error {
	return nil
}

type testService struct {
	server *httptest.Server
	deps   *dependency.Manager
	repo   *memoryRepository
	signer *identity.AssertionVerifier
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Security.JwtKey = "jwt-key"
	cfg.Security.SessionSecret = "session-secret"
	cfg.Session.TTLMinutes = 60
	cfg.Server.MaxBodyBytes = 4 << 10

	mr := miniredis.RunT(t)
	redisClient := &clients.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = redisClient.Client.Close() })

	repo := newMemoryRepository()
	router := gin.New()
	deps := dependency.Build(router, redisClient, nil, repo, cfg)
	SetupRoutes(deps)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testService{
		server: server,
		deps:   deps,
		repo:   repo,
		signer: identity.NewAssertionVerifier(cfg.Security.JwtKey),
	}
}

func (s *testService) login(t *testing.T, userID string) *portal.Client {
	t.Helper()

	assertion, err := s.signer.Sign(identity.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	client, err := portal.New(s.server.URL, portal.WithTimeout(2*time.Second))
	require.NoError(t, err)

	res, err := client.Login(context.Background(), assertion)
	require.NoError(t, err)
	require.Equal(t, userID, res.UserID)
	require.NotEmpty(t, res.CSRFToken)
	return client
}

func (s *testService) notify(t *testing.T, userID, message string) *notification.Notification {
	t.Helper()
	n, err := s.deps.NotificationService.Notify(context.Background(), userID, notification.KindCommentCreated,
		notification.Payload{Message: message})
	require.NoError(t, err)
	return n
}

func TestHealth(t *testing.T) {
	s := newTestService(t)

	resp, err := http.Get(s.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["redis"])
	assert.Equal(t, "disabled", body["mongodb"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestOversizedBodyIsRefused(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")

	ids := make([]string, 0, 400)
	for i := 0; i < cap(ids); i++ {
		ids = append(ids, "0123456789abcdef0123456789")
	}

	_, err := client.MarkRead(context.Background(), ids)
	var apiErr *portal.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", apiErr.Code)
}

func TestNotificationsRequireSession(t *testing.T) {
	s := newTestService(t)

	client, err := portal.New(s.server.URL)
	require.NoError(t, err)

	_, err = client.UnreadCount(context.Background())
	assert.ErrorIs(t, err, portal.ErrUnauthenticated)
}

func TestNotificationPrefixesServeTheSameData(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")
	s.notify(t, "user-1", "hello")

	for _, prefix := range notificationPrefixes {
		var out struct {
			Count int64 `json:"count"`
		}
		require.NoError(t, client.Do(context.Background(), http.MethodGet, prefix+"/unread-count", nil, &out), prefix)
		assert.Equal(t, int64(1), out.Count, prefix)
	}
}

func TestMarkReadRejectsForeignNotifications(t *testing.T) {
	s := newTestService(t)
	alice := s.login(t, "alice")

	own := s.notify(t, "alice", "mine")
	foreign := s.notify(t, "bob", "not yours")

	_, err := alice.MarkRead(context.Background(), []string{own.ID, foreign.ID})
	assert.ErrorIs(t, err, portal.ErrForbidden)

	count, err := alice.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// A session renewed outside the client's knowledge leaves the cached token
// stale; the next mutation is rejected once, refreshed and retried.
func TestStaleTokenRecoversWithOneRetry(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")
	s.notify(t, "user-1", "one")
	s.notify(t, "user-1", "two")

	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/auth/renew", struct{}{}, nil))

	res, err := client.MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Updated)
	assert.Equal(t, int64(0), res.UnreadCount)
}

func TestLogoutEndsTheSession(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")

	require.NoError(t, client.Logout(context.Background()))

	_, err := client.UnreadCount(context.Background())
	assert.ErrorIs(t, err, portal.ErrUnauthenticated)
}

func TestPushDeliversPersistedNotification(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan portal.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, func(ev portal.Event) { events <- ev })
	}()

	ready := waitEvent(t, events)
	assert.Equal(t, "ready", ready.Event)

	n := s.notify(t, "user-1", "pushed")

	pushed := waitEvent(t, events)
	require.Equal(t, "notification:new", pushed.Event)
	var got portal.Notification
	require.NoError(t, json.Unmarshal(pushed.Data, &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "pushed", got.Payload.Message)

	view := portal.NewView(client, 10)
	require.NoError(t, view.Load(context.Background()))
	assert.Equal(t, int64(1), view.Unread())
	assert.False(t, view.Apply(pushed))

	require.NoError(t, view.MarkRead(context.Background(), []string{n.ID}))
	assert.Equal(t, int64(0), view.Unread())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestPushIsNotDeliveredToOtherUsers(t *testing.T) {
	s := newTestService(t)
	bob := s.login(t, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan portal.Event, 4)
	go func() {
		_ = bob.Subscribe(ctx, func(ev portal.Event) { events <- ev })
	}()
	require.Equal(t, "ready", waitEvent(t, events).Event)

	s.notify(t, "alice", "for alice")

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q", ev.Event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLogoutClosesPushConnection(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")

	events := make(chan portal.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(context.Background(), func(ev portal.Event) { events <- ev })
	}()
	require.Equal(t, "ready", waitEvent(t, events).Event)

	require.NoError(t, client.Logout(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("push connection survived logout")
	}
	assert.Zero(t, s.deps.Registry.Connections("user-1"))
}

func TestLogoutAfterRenewClosesPushConnection(t *testing.T) {
	s := newTestService(t)
	client := s.login(t, "user-1")

	events := make(chan portal.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(context.Background(), func(ev portal.Event) { events <- ev })
	}()
	require.Equal(t, "ready", waitEvent(t, events).Event)

	require.NoError(t, client.Do(context.Background(), http.MethodPost, "/auth/renew", struct{}{}, nil))

	// The socket opened before renewal still belongs to the live session.
	s.notify(t, "user-1", "after renew")
	require.Equal(t, "notification:new", waitEvent(t, events).Event)

	require.NoError(t, client.Logout(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("push connection survived logout after renewal")
	}
	assert.Zero(t, s.deps.Registry.Connections("user-1"))

	n := s.notify(t, "user-1", "after logout")
	assert.NotEmpty(t, n.ID)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q after logout", ev.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitEvent(t *testing.T, events <-chan portal.Event) portal.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push event")
		return portal.Event{}
	}
}

package notification

import (
	"context"
	"sync"
	"time"

	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/realtime"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, n *Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockRepository) List(ctx context.Context, userID string, page, pageSize int) ([]*Notification, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Notification), args.Error(1)
}

func (m *MockRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Owners(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, ids, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type recordingEmitter struct {
	mu        sync.Mutex
	events    map[string][]realtime.Event
	delivered int
}

func newRecordingEmitter(delivered int) *recordingEmitter {
	return &recordingEmitter{events: make(map[string][]realtime.Event), delivered: delivered}
}

func (e *recordingEmitter) Emit(userID string, ev realtime.Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events[userID] = append(e.events[userID], ev)
	return e.delivered
}

func (e *recordingEmitter) For(userID string) []realtime.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[userID]
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishActivity(msg *models.ActivityMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

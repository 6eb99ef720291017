package notification

import (
	"context"
	"errors"
	"testing"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.NotificationConfig {
	return &config.Default().Notifications
}

func TestService_NotifyPersistsThenEmits(t *testing.T) {
	repo := new(MockRepository)
	emitter := newRecordingEmitter(2)
	publisher := new(MockPublisher)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *Notification) bool {
		return n.UserID == "user-x" && n.Kind == KindCommentCreated && !n.IsRead && n.ID != ""
	})).Return(nil).Once()
	publisher.On("PublishActivity", mock.MatchedBy(func(msg *models.ActivityMessage) bool {
		return msg.Action == models.ActionNotificationCreated && msg.UserID == "user-x"
	})).Return(nil).Once()

	svc := NewService(repo, emitter, publisher, testConfig())
	n, err := svc.Notify(context.Background(), "user-x", KindCommentCreated, Payload{Message: "hello"})
	require.NoError(t, err)

	events := emitter.For("user-x")
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventNotificationNew, events[0].Event)
	assert.Same(t, n, events[0].Data)
	assert.Empty(t, emitter.For("user-y"))

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestService_NotifyWithoutConnectionsStillPersists(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewService(repo, newRecordingEmitter(0), nil, testConfig())
	n, err := svc.Notify(context.Background(), "user-offline", KindPostLiked, Payload{Message: "liked"})

	require.NoError(t, err)
	assert.Equal(t, "user-offline", n.UserID)
	repo.AssertExpectations(t)
}

func TestService_NotifyPersistenceFailureIsReturned(t *testing.T) {
	repo := new(MockRepository)
	emitter := newRecordingEmitter(1)
	repo.On("Create", mock.Anything, mock.Anything).Return(models.ErrDatabaseInsert).Once()

	svc := NewService(repo, emitter, nil, testConfig())
	_, err := svc.Notify(context.Background(), "user-x", KindPostLiked, Payload{})

	assert.ErrorIs(t, err, models.ErrDatabaseInsert)
	assert.Empty(t, emitter.For("user-x"))
}

func TestService_NotifyPublishFailureIsNotFatal(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	publisher.On("PublishActivity", mock.Anything).Return(errors.New("broker down"))

	svc := NewService(repo, newRecordingEmitter(1), publisher, testConfig())
	_, err := svc.Notify(context.Background(), "user-x", KindPostLiked, Payload{})

	assert.NoError(t, err)
}

func TestService_NotifyValidation(t *testing.T) {
	svc := NewService(new(MockRepository), newRecordingEmitter(0), nil, testConfig())

	_, err := svc.Notify(context.Background(), "", KindPostLiked, Payload{})
	assert.ErrorIs(t, err, models.ErrInvalidParams)

	_, err = svc.Notify(context.Background(), "user-x", " ", Payload{})
	assert.ErrorIs(t, err, models.ErrInvalidParams)
}

func TestService_MarkRead(t *testing.T) {
	tests := []struct {
		name      string
		ids       []string
		setupMock func(*MockRepository)
		want      *ReadResult
		wantErr   error
	}{
		{
			name:    "empty ids",
			ids:     []string{"", " "},
			wantErr: models.ErrInvalidParams,
		},
		{
			name: "no such notifications",
			ids:  []string{"n-1"},
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-1"}).Return(map[string]string{}, nil)
			},
			wantErr: models.ErrNotFound,
		},
		{
			name: "foreign id refuses the whole request",
			ids:  []string{"mine", "theirs"},
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"mine", "theirs"}).
					Return(map[string]string{"mine": "user-x", "theirs": "user-y"}, nil)
			},
			wantErr: models.ErrForbidden,
		},
		{
			name: "own ids are marked and the count is authoritative",
			ids:  []string{"n-1", "n-2", "n-1", "missing"},
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-1", "n-2", "missing"}).
					Return(map[string]string{"n-1": "user-x", "n-2": "user-x"}, nil)
				m.On("MarkRead", mock.Anything, "user-x", []string{"n-1", "n-2", "missing"}, mock.Anything).
					Return(int64(2), nil)
				m.On("CountUnread", mock.Anything, "user-x").Return(int64(3), nil)
			},
			want: &ReadResult{Updated: 2, UnreadCount: 3},
		},
		{
			name: "storage failure",
			ids:  []string{"n-1"},
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-1"}).Return(nil, models.ErrDatabaseQuery)
			},
			wantErr: models.ErrDatabaseQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := NewService(repo, newRecordingEmitter(0), nil, testConfig())
			got, err := svc.MarkRead(context.Background(), "user-x", tt.ids)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_MarkAllRead(t *testing.T) {
	repo := new(MockRepository)
	publisher := new(MockPublisher)
	repo.On("MarkAllRead", mock.Anything, "user-x", mock.Anything).Return(int64(4), nil)
	repo.On("CountUnread", mock.Anything, "user-x").Return(int64(0), nil)
	publisher.On("PublishActivity", mock.MatchedBy(func(msg *models.ActivityMessage) bool {
		return msg.Action == models.ActionNotificationsRead && msg.Metadata["updated"] == "4"
	})).Return(nil).Once()

	svc := NewService(repo, newRecordingEmitter(0), publisher, testConfig())
	got, err := svc.MarkAllRead(context.Background(), "user-x")

	require.NoError(t, err)
	assert.Equal(t, &ReadResult{Updated: 4, UnreadCount: 0}, got)
	publisher.AssertExpectations(t)
}

func TestService_ListClampsPaging(t *testing.T) {
	tests := []struct {
		name             string
		page, pageSize   int
		wantPage, wantPS int
	}{
		{name: "defaults", page: 0, pageSize: 0, wantPage: 1, wantPS: 10},
		{name: "explicit", page: 3, pageSize: 25, wantPage: 3, wantPS: 25},
		{name: "capped", page: 1, pageSize: 1000, wantPage: 1, wantPS: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			repo.On("List", mock.Anything, "user-x", tt.wantPage, tt.wantPS).Return([]*Notification{}, nil).Once()

			svc := NewService(repo, newRecordingEmitter(0), nil, testConfig())
			got, err := svc.List(context.Background(), "user-x", tt.page, tt.pageSize)

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantPS, got.PageSize)
			assert.NotNil(t, got.Items)
			repo.AssertExpectations(t)
		})
	}
}

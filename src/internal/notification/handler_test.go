package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/middleware"
	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newHandlerRouter(repo *MockRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	h := NewHandler(cfg, NewService(repo, newRecordingEmitter(0), nil, &cfg.Notifications))

	asUser := func(c *gin.Context) {
		middleware.SetSession(c, &session.Session{ID: "s-1", UserID: "user-x"})
		c.Next()
	}

	router := gin.New()
	group := router.Group("/notifications", asUser)
	group.GET("", h.List)
	group.GET("/unread-count", h.UnreadCount)
	group.POST("/mark-read", h.MarkRead)
	group.POST("/mark-all-read", h.MarkAllRead)
	return router
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepository)
	repo.On("List", mock.Anything, "user-x", 2, 5).Return([]*Notification{
		{ID: "n-2", UserID: "user-x", Kind: KindPostLiked, Payload: Payload{Message: "b"}},
		{ID: "n-1", UserID: "user-x", Kind: KindPostLiked, Payload: Payload{Message: "a"}, IsRead: true},
	}, nil)

	rec := serve(newHandlerRouter(repo), http.MethodGet, "/notifications?page=2&pageSize=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items    []map[string]interface{} `json:"items"`
		Page     int                      `json:"page"`
		PageSize int                      `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 5, body.PageSize)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "n-2", body.Items[0]["id"])
	assert.Equal(t, false, body.Items[0]["isRead"])
	assert.Equal(t, "b", body.Items[0]["payload"].(map[string]interface{})["message"])
}

func TestHandler_UnreadCount(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CountUnread", mock.Anything, "user-x").Return(int64(7), nil)

	rec := serve(newHandlerRouter(repo), http.MethodGet, "/notifications/unread-count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":7}`, rec.Body.String())
}

func TestHandler_MarkRead(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Owners", mock.Anything, []string{"n-1"}).Return(map[string]string{"n-1": "user-x"}, nil)
	repo.On("MarkRead", mock.Anything, "user-x", []string{"n-1"}, mock.Anything).Return(int64(1), nil)
	repo.On("CountUnread", mock.Anything, "user-x").Return(int64(0), nil)

	rec := serve(newHandlerRouter(repo), http.MethodPost, "/notifications/mark-read", `{"ids":["n-1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1,"unreadCount":0}`, rec.Body.String())
}

func TestHandler_MarkReadErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockRepository)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			body:       `{"ids":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMS",
		},
		{
			name:       "empty ids",
			body:       `{"ids":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PARAMS",
		},
		{
			name: "foreign notification",
			body: `{"ids":["n-9"]}`,
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-9"}).Return(map[string]string{"n-9": "user-y"}, nil)
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name: "unknown notification",
			body: `{"ids":["n-0"]}`,
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-0"}).Return(map[string]string{}, nil)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name: "storage failure",
			body: `{"ids":["n-1"]}`,
			setupMock: func(m *MockRepository) {
				m.On("Owners", mock.Anything, []string{"n-1"}).Return(nil, models.ErrDatabaseQuery)
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			rec := serve(newHandlerRouter(repo), http.MethodPost, "/notifications/mark-read", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestHandler_MarkAllRead(t *testing.T) {
	repo := new(MockRepository)
	repo.On("MarkAllRead", mock.Anything, "user-x", mock.Anything).Return(int64(3), nil)
	repo.On("CountUnread", mock.Anything, "user-x").Return(int64(0), nil)

	rec := serve(newHandlerRouter(repo), http.MethodPost, "/notifications/mark-all-read", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":3,"unreadCount":0}`, rec.Body.String())
}

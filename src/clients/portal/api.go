package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const notificationsPath = "/api/notifications"

type Payload struct {
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      string     `json:"kind"`
	Payload   Payload    `json:"payload"`
	CreatedAt time.Time  `json:"createdAt"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

type Page struct {
	Items    []Notification `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type ReadResult struct {
	Updated     int64 `json:"updated"`
	UnreadCount int64 `json:"unreadCount"`
}

type LoginResult struct {
	UserID    string `json:"userId"`
	CSRFToken string `json:"csrfToken"`
}

// Event is a frame received on the push connection.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Login exchanges an identity assertion for an authenticated session. The
// server rotates the session, so the token it returns replaces the cache.
func (c *Client) Login(ctx context.Context, assertion string) (*LoginResult, error) {
	var out LoginResult
	if err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]string{"assertion": assertion}, &out); err != nil {
		return nil, err
	}
	c.setToken(out.CSRFToken)
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.Do(ctx, http.MethodPost, "/auth/logout", struct{}{}, nil); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out Page
	if err := c.Do(ctx, http.MethodGet, notificationsPath+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.Do(ctx, http.MethodGet, notificationsPath+"/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, ids []string) (*ReadResult, error) {
	var out ReadResult
	if err := c.Do(ctx, http.MethodPost, notificationsPath+"/mark-read", map[string][]string{"ids": ids}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkAllRead(ctx context.Context) (*ReadResult, error) {
	var out ReadResult
	if err := c.Do(ctx, http.MethodPost, notificationsPath+"/mark-all-read", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

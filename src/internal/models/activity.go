package models

import "time"

type ActivityMessage struct {
	UserID      string            `json:"user_id"`
	ServiceName string            `json:"service_name"`
	Action      string            `json:"action"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Activity action constants
const (
	ActionNotificationCreated = "notification_created"
	ActionNotificationsRead   = "notifications_read"
	ActionSessionLogin        = "session_login"
	ActionSessionLogout       = "session_logout"
)

// Service name constants
const (
	ServiceNotificationDispatcher = "realtime.notification.dispatcher"
	ServiceAuthHandler            = "realtime.handler.auth"
)

package notification

import "time"

// Kinds produced by the business events this service consumes.
const (
	KindChallengeApproved = "challenge.approved"
	KindChallengeRejected = "challenge.rejected"
	KindCommentCreated    = "comment.created"
	KindPostLiked         = "post.liked"
)

type Payload struct {
	Message  string                 `json:"message" bson:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Notification is one persisted message for a single user. It is mutated only
// by the read-state operations.
type Notification struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"userId" bson:"user_id"`
	Kind      string     `json:"kind" bson:"kind"`
	Payload   Payload    `json:"payload" bson:"payload"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	IsRead    bool       `json:"isRead" bson:"is_read"`
	ReadAt    *time.Time `json:"readAt,omitempty" bson:"read_at,omitempty"`
}

type ListResult struct {
	Items    []*Notification `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// ReadResult carries the authoritative unread count after a read-state change.
type ReadResult struct {
	Updated     int64 `json:"updated"`
	UnreadCount int64 `json:"unreadCount"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"challengehub-realtime-svc/src/internal/config"
	"challengehub-realtime-svc/src/internal/models"
	"challengehub-realtime-svc/src/internal/realtime"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Notifier is what business code depends on to raise a notification.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload Payload) (*Notification, error)
}

type Service interface {
	Notifier
	List(ctx context.Context, userID string, page, pageSize int) (*ListResult, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, ids []string) (*ReadResult, error)
	MarkAllRead(ctx context.Context, userID string) (*ReadResult, error)
}

// Emitter pushes an event to every live connection of a user and reports
// how many accepted it. realtime.Registry satisfies it.
type Emitter interface {
	Emit(userID string, ev realtime.Event) int
}

type ActivityPublisher interface {
	PublishActivity(msg *models.ActivityMessage) error
}

type notificationService struct {
	repo      Repository
	emitter   Emitter
	publisher ActivityPublisher
	cfg       *config.NotificationConfig
	now       func() time.Time
}

// NewService builds the dispatcher. publisher may be nil.
func NewService(repo Repository, emitter Emitter, publisher ActivityPublisher, cfg *config.NotificationConfig) Service {
	return &notificationService{
		repo:      repo,
		emitter:   emitter,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Notify persists first and only then pushes. A user with no open
// connections still finds the notification on the next list; push failures
// are logged and never returned.
func (s *notificationService) Notify(ctx context.Context, userID, kind string, payload Payload) (*Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidParams)
	}
	if strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("%w: kind is required", models.ErrInvalidParams)
	}

	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	delivered := s.emitter.Emit(userID, realtime.Event{
		Event: realtime.EventNotificationNew,
		Data:  n,
	})

	logrus.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         userID,
		"kind":            kind,
		"delivered":       delivered,
	}).Info("Notification dispatched")

	s.publish(&models.ActivityMessage{
		UserID:      userID,
		ServiceName: models.ServiceNotificationDispatcher,
		Action:      models.ActionNotificationCreated,
		Metadata: map[string]string{
			"notification_id": n.ID,
			"kind":            kind,
		},
		Timestamp: n.CreatedAt,
	})

	return n, nil
}

func (s *notificationService) List(ctx context.Context, userID string, page, pageSize int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	items, err := s.repo.List(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks ids read for userID. If any id belongs to someone else the
// whole request is refused and nothing changes.
func (s *notificationService) MarkRead(ctx context.Context, userID string, ids []string) (*ReadResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids must not be empty", models.ErrInvalidParams)
	}

	owners, err := s.repo.Owners(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, models.ErrNotFound
	}
	for id, owner := range owners {
		if owner != userID {
			logrus.WithFields(logrus.Fields{
				"user_id":         userID,
				"notification_id": id,
			}).Warn("Attempt to mark another user's notification read")
			return nil, models.ErrForbidden
		}
	}

	updated, err := s.repo.MarkRead(ctx, userID, ids, s.now().UTC())
	if err != nil {
		return nil, err
	}

	return s.readResult(ctx, userID, updated)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (*ReadResult, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.readResult(ctx, userID, updated)
}

func (s *notificationService) readResult(ctx context.Context, userID string, updated int64) (*ReadResult, error) {
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	if updated > 0 {
		s.publish(&models.ActivityMessage{
			UserID:      userID,
			ServiceName: models.ServiceNotificationDispatcher,
			Action:      models.ActionNotificationsRead,
			Metadata:    map[string]string{"updated": fmt.Sprint(updated)},
		})
	}

	logrus.WithFields(logrus.Fields{
		"user_id":      userID,
		"updated":      updated,
		"unread_count": unread,
	}).Debug("Notifications marked read")

	return &ReadResult{Updated: updated, UnreadCount: unread}, nil
}

func (s *notificationService) publish(msg *models.ActivityMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActivity(msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"action":  msg.Action,
		}).Warn("Failed to publish activity")
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

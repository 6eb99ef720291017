package portal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

const maxCountAttempts = 3

// NotificationAPI is the part of Client a View needs.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, page, pageSize int) (*Page, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, ids []string) (*ReadResult, error)
	MarkAllRead(ctx context.Context) (*ReadResult, error)
}

// View is the client-side notification state: an unread count that never
// goes below zero and the loaded items, most recent first. Local changes
// are applied optimistically and then replaced by the server's answer.
type View struct {
	api      NotificationAPI
	page     int
	pageSize int

	mu     sync.Mutex
	items  []Notification
	unread int64
	// pushes counts applied push events. A read-state answer computed while
	// a push arrived may not include it, so the count is refetched instead.
	pushes uint64
}

func NewView(api NotificationAPI, pageSize int) *View {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &View{
		api:      api,
		page:     1,
		pageSize: pageSize,
	}
}

func (v *View) Unread() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

func (v *View) Items() []Notification {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Notification, len(v.items))
	copy(out, v.items)
	return out
}

// Load replaces the state with the server's first page and unread count.
// Items pushed while the page was in flight are kept ahead of it.
func (v *View) Load(ctx context.Context) error {
	before := v.pushCount()
	page, err := v.api.ListNotifications(ctx, v.page, v.pageSize)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.items = withPushed(v.items, int(v.pushes-before), page.Items)
	v.mu.Unlock()

	return v.fetchUnread(ctx)
}

// Apply folds a push event into the view. It reports whether the event
// changed anything.
func (v *View) Apply(ev Event) bool {
	if ev.Event != "notification:new" {
		return false
	}

	var n Notification
	if err := json.Unmarshal(ev.Data, &n); err != nil {
		logrus.WithError(err).Warn("Malformed notification event")
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.items {
		if existing.ID == n.ID {
			return false
		}
	}

	v.items = append([]Notification{n}, v.items...)
	if !n.IsRead {
		v.unread++
	}
	v.pushes++
	return true
}

func (v *View) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	v.mu.Lock()
	changed := make(map[string]struct{})
	for i := range v.items {
		if _, ok := wanted[v.items[i].ID]; ok && !v.items[i].IsRead {
			v.items[i].IsRead = true
			changed[v.items[i].ID] = struct{}{}
		}
	}
	v.unread = clamp(v.unread - int64(len(wanted)))
	before := v.pushes
	v.mu.Unlock()

	res, err := v.api.MarkRead(ctx, ids)
	if err != nil {
		v.revert(changed)
		v.resync(ctx)
		return err
	}

	v.reconcile(ctx, res.UnreadCount, before)
	return nil
}

func (v *View) MarkAllRead(ctx context.Context) error {
	v.mu.Lock()
	changed := make(map[string]struct{})
	for i := range v.items {
		if !v.items[i].IsRead {
			v.items[i].IsRead = true
			changed[v.items[i].ID] = struct{}{}
		}
	}
	v.unread = 0
	before := v.pushes
	v.mu.Unlock()

	res, err := v.api.MarkAllRead(ctx)
	if err != nil {
		v.revert(changed)
		v.resync(ctx)
		return err
	}

	v.reconcile(ctx, res.UnreadCount, before)
	return nil
}

func (v *View) reconcile(ctx context.Context, count int64, before uint64) {
	v.mu.Lock()
	if v.pushes == before {
		v.unread = clamp(count)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	v.resync(ctx)
}

// resync replaces the unread count with the server's.
func (v *View) resync(ctx context.Context) {
	if err := v.fetchUnread(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to resynchronise unread count")
	}
}

// fetchUnread takes the server's unread count. A count fetched while pushes
// were applied may predate them, so it is fetched again; after the last
// attempt those pushes are added on top.
func (v *View) fetchUnread(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		before := v.pushCount()
		count, err := v.api.UnreadCount(ctx)
		if err != nil {
			return err
		}

		v.mu.Lock()
		landed := v.pushes - before
		if landed == 0 || attempt == maxCountAttempts {
			v.unread = clamp(count + int64(landed))
			v.mu.Unlock()
			return nil
		}
		v.mu.Unlock()
	}
}

func (v *View) pushCount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pushes
}

func (v *View) revert(changed map[string]struct{}) {
	if len(changed) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.items {
		if _, ok := changed[v.items[i].ID]; ok {
			v.items[i].IsRead = false
		}
	}
}

// withPushed returns page preceded by the newest n of current that page does
// not already hold.
func withPushed(current []Notification, n int, page []Notification) []Notification {
	if n <= 0 {
		return page
	}
	if n > len(current) {
		n = len(current)
	}

	loaded := make(map[string]struct{}, len(page))
	for _, item := range page {
		loaded[item.ID] = struct{}{}
	}

	merged := make([]Notification, 0, n+len(page))
	for _, item := range current[:n] {
		if _, ok := loaded[item.ID]; !ok {
			merged = append(merged, item)
		}
	}
	return append(merged, page...)
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

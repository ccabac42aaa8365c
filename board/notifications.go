package board

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"noticeboard/models"
)

// NotificationTTL is how long a notification stays in the queue
const NotificationTTL = 3 * time.Second

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Notifications is a queue of status messages that expire on their own.
// It is safe for concurrent use.
type Notifications struct {
	mu       sync.Mutex
	items    []models.Notification
	timers   map[string]stopper
	ttl      time.Duration
	after    afterFunc
	now      func() time.Time
	onChange func([]models.Notification)
}

func NewNotifications() *Notifications {
	return &Notifications{
		timers: make(map[string]stopper),
		ttl:    NotificationTTL,
		after:  realAfterFunc,
		now:    time.Now,
	}
}

// OnChange registers a callback receiving the queue contents after every
// change. The callback runs outside the queue lock.
func (n *Notifications) OnChange(fn func([]models.Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = fn
}

// Push appends a notification and schedules its removal. Returns the id.
func (n *Notifications) Push(message string, severity models.Severity) string {
	n.mu.Lock()
	now := n.now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	n.items = append(n.items, models.Notification{
		Id:        id,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
	})
	n.timers[id] = n.after(n.ttl, func() { n.remove(id) })
	snapshot, fn := n.snapshot()
	n.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return id
}

// Dismiss removes the notification right away and cancels its timer.
// Unknown ids are ignored.
func (n *Notifications) Dismiss(id string) {
	n.mu.Lock()
	if t, ok := n.timers[id]; ok {
		t.Stop()
	}
	n.mu.Unlock()
	n.remove(id)
}

// List returns the queued notifications in insertion order
func (n *Notifications) List() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.items...)
}

// Close cancels all pending removals and empties the queue
func (n *Notifications) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	n.items = nil
}

func (n *Notifications) remove(id string) {
	n.mu.Lock()
	delete(n.timers, id)
	_, idx, found := lo.FindIndexOf(n.items, func(item models.Notification) bool {
		return item.Id == id
	})
	if !found {
		n.mu.Unlock()
		return
	}
	n.items = append(n.items[:idx], n.items[idx+1:]...)
	snapshot, fn := n.snapshot()
	n.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// snapshot must be called with the lock held
func (n *Notifications) snapshot() ([]models.Notification, func([]models.Notification)) {
	return append([]models.Notification(nil), n.items...), n.onChange
}

package board

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"noticeboard/models"
)

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func post(id int64, minutes int) models.Post {
	return models.Post{
		Id:        id,
		Title:     "title",
		Content:   "content",
		Author:    "author",
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

// fakeService is an in-memory DataService
type fakeService struct {
	mu      sync.Mutex
	posts   map[int64]models.Post
	nextId  int64
	listErr error
	getErr  error
	mutErr  error
	lists   int
	deleted []int64
	// listHook runs inside ListPosts before the snapshot is taken
	listHook func()
}

func newFakeService(posts ...models.Post) *fakeService {
	svc := &fakeService{posts: make(map[int64]models.Post), nextId: 100}
	for _, p := range posts {
		svc.posts[p.Id] = p
	}
	return svc
}

func (s *fakeService) ListPosts(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	hook := s.listHook
	s.lists++
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeService) GetPost(ctx context.Context, id int64) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return models.Post{}, s.getErr
	}
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, &models.APIError{Message: "not found", Code: "PGRST116", Status: http.StatusNotFound}
	}
	return p, nil
}

func (s *fakeService) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutErr != nil {
		return models.Post{}, s.mutErr
	}
	s.nextId++
	p.Id = s.nextId
	p.CreatedAt = time.Now().UTC()
	s.posts[p.Id] = p
	return p, nil
}

func (s *fakeService) UpdatePost(ctx context.Context, id int64, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutErr != nil {
		return models.Post{}, s.mutErr
	}
	existing, ok := s.posts[id]
	if !ok {
		return models.Post{}, &models.APIError{Message: "not found", Status: http.StatusNotFound}
	}
	existing.Title, existing.Content, existing.Author = p.Title, p.Content, p.Author
	existing.UpdatedAt = p.UpdatedAt
	s.posts[id] = existing
	return existing, nil
}

func (s *fakeService) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutErr != nil {
		return s.mutErr
	}
	delete(s.posts, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeService) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// fakeFeed hands out fakeSubs and remembers them
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

func (f *fakeFeed) Subscribe(ctx context.Context, scope models.Scope) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSub{
		scope:  scope,
		events: make(chan models.ChangeEvent, 16),
		status: make(chan models.SubscriptionStatus, 4),
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeSub struct {
	scope  models.Scope
	events chan models.ChangeEvent
	status chan models.SubscriptionStatus

	mu     sync.Mutex
	closes int
}

func (s *fakeSub) Events() <-chan models.ChangeEvent       { return s.events }
func (s *fakeSub) Status() <-chan models.SubscriptionStatus { return s.status }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSub) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeClock drives notification expiry by hand
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newTestNotifications(clock *fakeClock) *Notifications {
	n := NewNotifications()
	n.after = clock.AfterFunc
	n.now = clock.Now
	return n
}

// recordingNavigator collects navigations
type recordingNavigator struct {
	mu     sync.Mutex
	routes []Route
}

func (n *recordingNavigator) Navigate(r Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, r)
}

func (n *recordingNavigator) Routes() []Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Route(nil), n.routes...)
}

func severities(items []models.Notification) []models.Severity {
	out := make([]models.Severity, len(items))
	for i, item := range items {
		out[i] = item.Severity
	}
	return out
}

func ids(posts []models.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.Id
	}
	return out
}

package cmd

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticeboard/board"
	"noticeboard/models"
)

type memoryService struct {
	mu     sync.Mutex
	posts  map[int64]models.Post
	nextId int64
}

func newMemoryService(posts ...models.Post) *memoryService {
	svc := &memoryService{posts: make(map[int64]models.Post), nextId: 10}
	for _, p := range posts {
		svc.posts[p.Id] = p
	}
	return svc
}

func (s *memoryService) ListPosts(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	return out, nil
}

func (s *memoryService) GetPost(ctx context.Context, id int64) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, &models.APIError{Message: "not found", Code: "PGRST116", Status: http.StatusNotFound}
	}
	return p, nil
}

func (s *memoryService) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	p.Id = s.nextId
	p.CreatedAt = time.Now().UTC()
	s.posts[p.Id] = p
	return p, nil
}

func (s *memoryService) UpdatePost(ctx context.Context, id int64, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.posts[id]
	existing.Title, existing.Content, existing.Author, existing.UpdatedAt = p.Title, p.Content, p.Author, p.UpdatedAt
	s.posts[id] = existing
	return existing, nil
}

func (s *memoryService) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

func (s *memoryService) get(id int64) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	return p, ok
}

// silentFeed opens subscriptions that never deliver anything
type silentFeed struct{}

func (silentFeed) Subscribe(ctx context.Context, scope models.Scope) (board.Subscription, error) {
	return &silentSub{
		events: make(chan models.ChangeEvent),
		status: make(chan models.SubscriptionStatus),
	}, nil
}

type silentSub struct {
	once   sync.Once
	events chan models.ChangeEvent
	status chan models.SubscriptionStatus
}

func (s *silentSub) Events() <-chan models.ChangeEvent       { return s.events }
func (s *silentSub) Status() <-chan models.SubscriptionStatus { return s.status }

func (s *silentSub) Close() error {
	s.once.Do(func() {
		close(s.events)
		close(s.status)
	})
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runInput(t *testing.T, svc board.DataService, start board.Route, input string) string {
	t.Helper()
	out := &lockedBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := newSession(svc, silentFeed{}, strings.NewReader(input), out).run(ctx, start)
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "session did not end on its own")
	return out.String()
}

func TestSessionWritePost(t *testing.T) {
	svc := newMemoryService()

	out := runInput(t, svc, board.ListRoute(), "w\nHello there\nkari\nFirst post\nq\n")

	p, ok := svc.get(11)
	require.True(t, ok)
	assert.Equal(t, "Hello there", p.Title)
	assert.Equal(t, "kari", p.Author)
	assert.Equal(t, "First post", p.Content)
	assert.Contains(t, out, "Title []")
	assert.Contains(t, out, "Hello there")
}

func TestSessionEditKeepsEmptyFields(t *testing.T) {
	svc := newMemoryService(models.Post{Id: 1, Title: "Old", Content: "Body", Author: "ola", CreatedAt: time.Now()})

	runInput(t, svc, board.DetailRoute(1), "e\nNew\n\n\nq\n")

	p, ok := svc.get(1)
	require.True(t, ok)
	assert.Equal(t, "New", p.Title)
	assert.Equal(t, "Body", p.Content)
	assert.Equal(t, "ola", p.Author)
	assert.NotNil(t, p.UpdatedAt)
}

func TestSessionDeleteFromDetail(t *testing.T) {
	svc := newMemoryService(models.Post{Id: 1, Title: "Doomed", Content: "c", Author: "a", CreatedAt: time.Now()})

	out := runInput(t, svc, board.DetailRoute(1), "d\ny\nq\n")

	_, ok := svc.get(1)
	assert.False(t, ok)
	assert.Contains(t, out, "Delete post 1? (y/N)")
	assert.Contains(t, out, listHelp)
}

func TestSessionDeclinedDelete(t *testing.T) {
	svc := newMemoryService(models.Post{Id: 1, Title: "Kept", Content: "c", Author: "a", CreatedAt: time.Now()})

	runInput(t, svc, board.DetailRoute(1), "d\nn\nq\n")

	_, ok := svc.get(1)
	assert.True(t, ok)
}

func TestSessionListDeleteAsksFirst(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		kept   bool
	}{
		{name: "declined", answer: "n", kept: true},
		{name: "empty answer", answer: "", kept: true},
		{name: "confirmed", answer: "y", kept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMemoryService(models.Post{Id: 1, Title: "Maybe", Content: "c", Author: "a", CreatedAt: time.Now()})

			out := runInput(t, svc, board.ListRoute(), "d 1\n"+tt.answer+"\nq\n")

			_, ok := svc.get(1)
			assert.Equal(t, tt.kept, ok)
			assert.Contains(t, out, "Delete post 1? (y/N)")
		})
	}
}

func TestSessionDismissCommand(t *testing.T) {
	out := runInput(t, newMemoryService(), board.ListRoute(), "bogus\nx\nq\n")

	frames := strings.Split(out, clearScreen)
	require.Greater(t, len(frames), 2)
	assert.Contains(t, out, `Unknown command "bogus"`)
	assert.NotContains(t, frames[len(frames)-1], "Unknown command")
	assert.Contains(t, frames[len(frames)-1], "x [n] dismiss")
}

func TestSessionDismissPicksShownPosition(t *testing.T) {
	s := newSession(newMemoryService(), silentFeed{}, strings.NewReader(""), &lockedBuffer{})
	defer s.notes.Close()

	s.notes.Push("first", models.SeverityInfo)
	s.notes.Push("second", models.SeverityWarning)
	s.notes.Push("third", models.SeveritySuccess)

	s.dismiss(2)
	s.dismiss(9)
	messages := func() []string {
		var out []string
		for _, n := range s.notes.List() {
			out = append(out, n.Message)
		}
		return out
	}
	assert.Equal(t, []string{"first", "third"}, messages())

	s.dismiss(0)
	assert.Equal(t, []string{"third"}, messages())
}

func TestSessionCancelledForm(t *testing.T) {
	svc := newMemoryService()

	runInput(t, svc, board.ListRoute(), "w\nHalf written\n.\nq\n")

	posts, err := svc.ListPosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestSessionEndsWithInput(t *testing.T) {
	out := runInput(t, newMemoryService(), board.ListRoute(), "bogus\n")
	assert.Contains(t, out, `Unknown command "bogus"`)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  string
		id   int64
	}{
		{line: "", cmd: "", id: 0},
		{line: "q", cmd: "q", id: 0},
		{line: "O 12", cmd: "o", id: 12},
		{line: "d  7 extra", cmd: "d", id: 7},
		{line: "e x", cmd: "e", id: 0},
		{line: "e -3", cmd: "e", id: 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, id := parseCommand(tt.line)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.id, id)
		})
	}
}

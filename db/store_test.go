package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticeboard/models"
)

func openSQLite(t *testing.T, migrated bool) (*SQLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.db")
	if migrated {
		require.NoError(t, Migrate(DriverSQLite, path))
	}
	s, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newPost(title string) models.Post {
	return models.Post{Title: title, Content: "content of " + title, Author: "tester"}
}

func TestSQLiteCRUD(t *testing.T) {
	s, _ := openSQLite(t, true)
	ctx := context.Background()

	first, err := s.CreatePost(ctx, newPost("first"))
	require.NoError(t, err)
	assert.NotZero(t, first.Id)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Nil(t, first.UpdatedAt)

	second := newPost("second")
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	second, err = s.CreatePost(ctx, second)
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []int64{second.Id, first.Id}, []int64{posts[0].Id, posts[1].Id})

	got, err := s.GetPost(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	edited := got
	edited.Title = "first, edited"
	updated, err := s.UpdatePost(ctx, first.Id, edited)
	require.NoError(t, err)
	assert.Equal(t, "first, edited", updated.Title)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, first.CreatedAt.Equal(updated.CreatedAt))

	require.NoError(t, s.DeletePost(ctx, first.Id))
	_, err = s.GetPost(ctx, first.Id)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error
	assert.NoError(t, s.DeletePost(ctx, first.Id))
}

func TestSQLiteUpdateMissing(t *testing.T) {
	s, _ := openSQLite(t, true)

	_, err := s.UpdatePost(context.Background(), 404, newPost("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteRejectsInvalidPost(t *testing.T) {
	s, _ := openSQLite(t, true)

	_, err := s.CreatePost(context.Background(), models.Post{Title: "only a title"})
	assert.ErrorIs(t, err, models.ErrInvalidPost)
}

func TestSQLiteMissingTable(t *testing.T) {
	s, _ := openSQLite(t, false)

	_, err := s.ListPosts(context.Background())

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "42P01", apiErr.Code)
	assert.Contains(t, apiErr.Message, "does not exist")
	assert.Equal(t, 404, apiErr.Status)
}

func TestSQLiteRollback(t *testing.T) {
	s, path := openSQLite(t, true)
	ctx := context.Background()

	_, err := s.CreatePost(ctx, newPost("doomed"))
	require.NoError(t, err)

	require.NoError(t, Rollback(DriverSQLite, path, 1))
	_, err = s.ListPosts(ctx)
	var apiErr *models.APIError
	assert.ErrorAs(t, err, &apiErr)

	assert.Error(t, Rollback(DriverSQLite, path, 0))
}

func TestSQLiteListenPublishesInCommitOrder(t *testing.T) {
	s, _ := openSQLite(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	events := make(chan models.ChangeEvent, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx, func(evt models.ChangeEvent) { events <- evt })
	}()
	assert.Eventually(t, func() bool {
		s.local.mu.Lock()
		defer s.local.mu.Unlock()
		return len(s.local.handlers) == 1
	}, time.Second, 5*time.Millisecond)

	created, err := s.CreatePost(ctx, newPost("live"))
	require.NoError(t, err)
	_, err = s.UpdatePost(ctx, created.Id, newPost("live, edited"))
	require.NoError(t, err)
	require.NoError(t, s.DeletePost(ctx, created.Id))
	// A delete that matched nothing is not published
	require.NoError(t, s.DeletePost(ctx, created.Id))

	var types []models.EventType
	for i := 0; i < 3; i++ {
		evt := <-events
		assert.Equal(t, created.Id, evt.Post.Id)
		types = append(types, evt.Type)
	}
	assert.Equal(t, []models.EventType{models.EventInsert, models.EventUpdate, models.EventDelete}, types)
	assert.Empty(t, events)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		driver  string
		dsn     string
		want    string
		wantErr bool
	}{
		{driver: DriverSQLite, dsn: "board.db", want: "sqlite://board.db"},
		{driver: DriverPostgres, dsn: "postgres://u:p@localhost:5432/board", want: "pgx5://u:p@localhost:5432/board"},
		{driver: DriverPostgres, dsn: "postgresql://localhost/board", want: "pgx5://localhost/board"},
		{driver: DriverPostgres, dsn: "host=localhost dbname=board", wantErr: true},
		{driver: "mysql", dsn: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver+" "+tt.dsn, func(t *testing.T) {
			got, err := migrationURL(tt.driver, tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.EqualError(t, err, `unknown database driver "oracle"`)
}

package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticeboard/models"
)

func mockPostgres(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return &SQLStore{db: conn, driver: DriverPostgres, flavor: sqlbuilder.PostgreSQL}, mock
}

var postColumns = []string{"id", "title", "content", "author", "created_at", "updated_at"}

func TestPostgresListPosts(t *testing.T) {
	s, mock := mockPostgres(t)
	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	edited := created.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, content, author, created_at, updated_at FROM board_posts ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(postColumns).
			AddRow(int64(2), "second", "b", "bob", created.Add(time.Minute), edited).
			AddRow(int64(1), "first", "a", "alice", created, nil))

	posts, err := s.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(2), posts[0].Id)
	require.NotNil(t, posts[0].UpdatedAt)
	assert.Equal(t, edited, *posts[0].UpdatedAt)
	assert.Nil(t, posts[1].UpdatedAt)
}

func TestPostgresCreateUsesReturning(t *testing.T) {
	s, mock := mockPostgres(t)
	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO board_posts (title, content, author, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, title, content, author, created_at, updated_at")).
		WithArgs("hello", "body", "alice", created, nil).
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(int64(7), "hello", "body", "alice", created, nil))

	post, err := s.CreatePost(context.Background(), models.Post{Title: "hello", Content: "body", Author: "alice", CreatedAt: created})
	require.NoError(t, err)
	assert.Equal(t, int64(7), post.Id)
}

func TestPostgresErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{
			name:   "missing table",
			err:    &pgconn.PgError{Code: "42P01", Message: `relation "board_posts" does not exist`},
			code:   "42P01",
			status: 404,
		},
		{
			name:   "permission denied",
			err:    &pgconn.PgError{Code: "42501", Message: "permission denied for table board_posts"},
			code:   "42501",
			status: 403,
		},
		{
			name:   "check violation",
			err:    &pgconn.PgError{Code: "23514", Message: "new row violates check constraint"},
			code:   "23514",
			status: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := mockPostgres(t)
			mock.ExpectQuery("SELECT (.+) FROM board_posts WHERE id = \\$1").
				WithArgs(int64(3)).
				WillReturnError(tt.err)

			_, err := s.GetPost(context.Background(), 3)

			var apiErr *models.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestPostgresNotFound(t *testing.T) {
	s, mock := mockPostgres(t)
	mock.ExpectQuery("SELECT (.+) FROM board_posts WHERE id = \\$1").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(postColumns))

	_, err := s.GetPost(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresDeleteDoesNotPublishLocally(t *testing.T) {
	s, mock := mockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM board_posts WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.DeletePost(context.Background(), 4))
}

func TestListenerDecode(t *testing.T) {
	fetched := models.Post{Id: 8, Title: "big", Content: "very long", Author: "alice"}
	l := NewListener("postgres://unused", func(ctx context.Context, id int64) (models.Post, error) {
		if id == 8 {
			return fetched, nil
		}
		return models.Post{}, ErrNotFound
	})
	ctx := context.Background()

	evt, err := l.decode(ctx, []byte(`{"type":"INSERT","record":{"id":5,"title":"t","content":"c","author":"a","created_at":"2026-10-17T09:00:00.123456+00:00","updated_at":null}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventInsert, evt.Type)
	assert.Equal(t, int64(5), evt.Post.Id)
	assert.Equal(t, 123456000, evt.Post.CreatedAt.Nanosecond())
	assert.Nil(t, evt.Post.UpdatedAt)

	evt, err = l.decode(ctx, []byte(`{"type":"DELETE","record":{"id":5}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventDelete, evt.Type)

	evt, err = l.decode(ctx, []byte(`{"type":"UPDATE","record":{"id":8},"truncated":true}`))
	require.NoError(t, err)
	assert.Equal(t, fetched, evt.Post)

	_, err = l.decode(ctx, []byte(`{"type":"UPDATE","record":{"id":9},"truncated":true}`))
	assert.True(t, errors.Is(err, ErrNotFound))

	for _, bad := range []string{`not json`, `{"type":"TRUNCATE","record":{"id":1}}`, `{"type":"INSERT","record":{}}`} {
		_, err := l.decode(ctx, []byte(bad))
		assert.Error(t, err, bad)
	}
}

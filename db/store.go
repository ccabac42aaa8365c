package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

var ErrNotFound = errors.New("post not found")

var columns = []string{"id", "title", "content", "author", "created_at", "updated_at"}

// Fixed width so timestamps stored as text sort the same as they compare
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const queryTimeout = 30 * time.Second

// Store is what the HTTP layer needs from the database
type Store interface {
	ListPosts(ctx context.Context) ([]models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	CreatePost(ctx context.Context, post models.Post) (models.Post, error)
	UpdatePost(ctx context.Context, id int64, post models.Post) (models.Post, error)
	DeletePost(ctx context.Context, id int64) error
	// Listen calls fn for every committed change until ctx is done
	Listen(ctx context.Context, fn func(models.ChangeEvent)) error
	Close() error
}

// SQLStore keeps board posts in PostgreSQL or SQLite
type SQLStore struct {
	db     *sql.DB
	driver string
	flavor sqlbuilder.Flavor

	// PostgreSQL publishes changes through a trigger
	listener *Listener

	// SQLite has no NOTIFY, changes are published after commit
	local   *localFeed
	writeMu sync.Mutex
}

// Open connects to the database named by driver and dsn
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres:
		db, err := postgresConnection(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		s := &SQLStore{db: db, driver: driver, flavor: sqlbuilder.PostgreSQL}
		s.listener = NewListener(dsn, s.GetPost)
		return s, nil
	case DriverSQLite:
		db, err := sqliteConnection(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return &SQLStore{db: db, driver: driver, flavor: sqlbuilder.SQLite, local: newLocalFeed()}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := s.flavor.NewSelectBuilder()
	sb.Select(columns...).From(models.Table).OrderBy("created_at DESC", "id DESC")

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("list posts", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, s.wrap("scan post", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list posts", err)
	}
	return posts, nil
}

func (s *SQLStore) GetPost(ctx context.Context, id int64) (models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := s.flavor.NewSelectBuilder()
	sb.Select(columns...).From(models.Table).Where(sb.Equal("id", id))

	query, args := sb.Build()
	post, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Post{}, s.wrap("get post", err)
	}
	return post, nil
}

func (s *SQLStore) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	if err := post.Validate(); err != nil {
		return models.Post{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	ib := s.flavor.NewInsertBuilder()
	ib.InsertInto(models.Table).
		Cols("title", "content", "author", "created_at", "updated_at").
		Values(post.Title, post.Content, post.Author, s.timeArg(&post.CreatedAt), s.timeArg(post.UpdatedAt))
	ib.SQL("RETURNING " + strings.Join(columns, ", "))

	query, args := ib.Build()
	created, err := s.mutate(ctx, models.EventInsert, query, args)
	if err != nil {
		return models.Post{}, s.wrap("create post", err)
	}

	log.WithFields(log.Fields{"id": created.Id, "author": created.Author}).Info("Created post")
	return created, nil
}

func (s *SQLStore) UpdatePost(ctx context.Context, id int64, post models.Post) (models.Post, error) {
	if err := post.Validate(); err != nil {
		return models.Post{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if post.UpdatedAt == nil {
		now := time.Now().UTC()
		post.UpdatedAt = &now
	}

	ub := s.flavor.NewUpdateBuilder()
	ub.Update(models.Table).
		Set(
			ub.Assign("title", post.Title),
			ub.Assign("content", post.Content),
			ub.Assign("author", post.Author),
			ub.Assign("updated_at", s.timeArg(post.UpdatedAt)),
		).
		Where(ub.Equal("id", id))
	ub.SQL("RETURNING " + strings.Join(columns, ", "))

	query, args := ub.Build()
	updated, err := s.mutate(ctx, models.EventUpdate, query, args)
	if err != nil {
		return models.Post{}, s.wrap("update post", err)
	}

	log.WithFields(log.Fields{"id": updated.Id}).Info("Updated post")
	return updated, nil
}

// DeletePost removes a post, deleting a missing post is not an error
func (s *SQLStore) DeletePost(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	del := s.flavor.NewDeleteBuilder()
	del.DeleteFrom(models.Table).Where(del.Equal("id", id))
	query, args := del.Build()

	if s.local != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.wrap("delete post", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return s.wrap("delete post", err)
	}

	log.WithFields(log.Fields{"id": id, "affected": affected}).Info("Deleted post")
	if affected > 0 && s.local != nil {
		s.local.publish(models.ChangeEvent{Type: models.EventDelete, Post: models.Post{Id: id}})
	}
	return nil
}

// mutate runs a statement returning the written row and publishes it for SQLite
func (s *SQLStore) mutate(ctx context.Context, kind models.EventType, query string, args []interface{}) (models.Post, error) {
	if s.local != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	post, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Post{}, err
	}
	if s.local != nil {
		s.local.publish(models.ChangeEvent{Type: kind, Post: post})
	}
	return post, nil
}

// Listen blocks delivering committed changes to fn until ctx is done
func (s *SQLStore) Listen(ctx context.Context, fn func(models.ChangeEvent)) error {
	if s.listener != nil {
		return s.listener.Listen(ctx, fn)
	}

	unsubscribe := s.local.subscribe(fn)
	defer unsubscribe()
	<-ctx.Done()
	return ctx.Err()
}

func (s *SQLStore) timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	if s.flavor == sqlbuilder.SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var post models.Post
	var created, updated sqlTime
	if err := row.Scan(&post.Id, &post.Title, &post.Content, &post.Author, &created, &updated); err != nil {
		return models.Post{}, err
	}
	if !created.Valid {
		return models.Post{}, fmt.Errorf("post %d has no created_at", post.Id)
	}
	post.CreatedAt = created.Time
	if updated.Valid {
		t := updated.Time
		post.UpdatedAt = &t
	}
	return post, nil
}

// sqlTime accepts native timestamps as well as the text SQLite hands back
type sqlTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *sqlTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time, t.Valid = time.Unix(v, 0).UTC(), true
		return nil
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

// wrap turns driver errors into API errors shaped like PostgREST's
func (s *SQLStore) wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, &models.APIError{
			Message: pgErr.Message,
			Code:    pgErr.Code,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Status:  statusForCode(pgErr.Code),
		})
	}

	if s.flavor == sqlbuilder.SQLite {
		if apiErr := sqliteAPIError(err); apiErr != nil {
			return fmt.Errorf("%s: %w", op, apiErr)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// sqliteAPIError maps the SQLite messages callers act on to PostgreSQL codes
func sqliteAPIError(err error) *models.APIError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return &models.APIError{
			Message: fmt.Sprintf("relation %q does not exist", models.Table),
			Code:    "42P01",
			Status:  statusForCode("42P01"),
		}
	case strings.Contains(msg, "CHECK constraint failed"):
		return &models.APIError{Message: msg, Code: "23514", Status: statusForCode("23514")}
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return &models.APIError{Message: msg, Code: "23502", Status: statusForCode("23502")}
	}
	return nil
}

func statusForCode(code string) int {
	switch {
	case code == "42P01":
		return http.StatusNotFound
	case code == "42501":
		return http.StatusForbidden
	case code == "23505":
		return http.StatusConflict
	case strings.HasPrefix(code, "23"), strings.HasPrefix(code, "22"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
